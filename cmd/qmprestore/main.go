package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"

	"github.com/valvemist/vmbackup/hypervisor"
	"github.com/valvemist/vmbackup/imagecreator"
	"github.com/valvemist/vmbackup/restoreengine"
)

var logger *slog.Logger

type customHandler struct {
	level slog.Leveler
}

func (h *customHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	return lvl >= h.level.Level()
}

func (h *customHandler) Handle(_ context.Context, r slog.Record) error {
	fmt.Printf("[%s] %s ", r.Level, r.Message)
	r.Attrs(func(a slog.Attr) bool {
		fmt.Printf("%s=%v ", a.Key, a.Value)
		return true
	})
	if src := r.Source(); src != nil {
		fmt.Printf("(%s:%d) ", filepath.Base(src.File), src.Line)
	}
	fmt.Println()
	return nil
}

func (h *customHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *customHandler) WithGroup(_ string) slog.Handler      { return h }

func parseFlags() (verbose, dump bool, cfg restoreengine.RestoreConfig) {
	var diskFilter, excludeDisks string

	flag.BoolVar(&verbose, "v", false, "Verbose output")
	flag.BoolVar(&dump, "dump", false, "Print stream file metadata for the input directory and exit")
	flag.StringVar(&cfg.InputDir, "input", "", "Directory holding backup stream files (required)")
	flag.StringVar(&cfg.OutputDir, "output", "", "Directory to restore disk images into (required unless -dump)")
	flag.StringVar(&cfg.Until, "until", "", "Stop chain replay after this checkpoint name")
	flag.StringVar(&diskFilter, "disks", "", "Comma-separated disk targets to restore (default: all)")
	flag.StringVar(&excludeDisks, "exclude-disks", "", "Comma-separated disk targets to drop from the adjusted domain config")
	flag.BoolVar(&cfg.AdjustConfig, "adjust-config", false, "Rewrite disk source paths in the domain config to the restored location")
	flag.BoolVar(&cfg.Define, "define", false, "Define the restored domain with libvirt")
	flag.Parse()

	if cfg.InputDir == "" || (cfg.OutputDir == "" && !dump) {
		flag.Usage()
		os.Exit(1)
	}
	if diskFilter != "" {
		cfg.DiskFilter = strings.Split(diskFilter, ",")
	}
	if excludeDisks != "" {
		cfg.ExcludeDisks = strings.Split(excludeDisks, ",")
	}
	return
}

func main() {
	level := slog.LevelInfo
	logger = slog.New(&customHandler{level: level})

	verbose, dump, cfg := parseFlags()
	if verbose {
		logger = slog.New(&customHandler{level: slog.LevelDebug})
	}

	if dump {
		records, err := restoreengine.DumpMetadata(cfg.InputDir, cfg.DiskFilter)
		if err != nil {
			logger.Error("dump failed", "error", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			logger.Error("encode metadata", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		logger.Error("create output dir", "error", err)
		os.Exit(1)
	}

	conn := libvirt.NewWithDialer(dialers.NewLocal())
	var hv hypervisor.Hypervisor
	if err := conn.Connect(); err != nil {
		logger.Warn("libvirt unavailable, restoring without domain adjustment/define", "error", err)
		if cfg.AdjustConfig || cfg.Define {
			logger.Error("adjust-config/define requested but libvirt is unavailable")
			os.Exit(1)
		}
	} else {
		defer conn.Disconnect()
		hv = hypervisor.NewLibvirtHypervisor(conn, "")
	}

	ic := imagecreator.QemuImgCreator{}
	if err := restoreengine.RestoreDomain(context.Background(), cfg, hv, ic); err != nil {
		logger.Error("restore failed", "error", err)
		os.Exit(1)
	}
	logger.Info("restore finished")
}
