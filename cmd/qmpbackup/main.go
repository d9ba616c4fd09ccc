package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"

	"github.com/valvemist/vmbackup/checkpoint"
	"github.com/valvemist/vmbackup/hypervisor"
	"github.com/valvemist/vmbackup/orchestrator"
	"github.com/valvemist/vmbackup/runconfig"
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

func parseFlags() (verbose bool, cfg runconfig.RunConfig) {
	var mode, include, exclude string

	flag.BoolVar(&verbose, "v", false, "Verbose output")
	flag.StringVar(&cfg.Domain, "domain", "", "Domain name to back up (required)")
	flag.StringVar(&mode, "mode", "auto", "Backup mode: auto, full, inc, diff, copy")
	flag.StringVar(&cfg.Output, "output", "", `Output directory, "-" for a zip archive on stdout, or "host:path" for a remote directory (required)`)
	flag.StringVar(&cfg.CheckpointPrefix, "checkpoint-prefix", "", "Checkpoint name prefix (defaults to domain name)")
	flag.StringVar(&include, "disks", "", "Comma-separated disk targets to include (default: all)")
	flag.StringVar(&exclude, "exclude-disks", "", "Comma-separated disk targets to exclude")
	flag.IntVar(&cfg.Workers, "workers", 0, "Concurrent disk workers (default: one per disk)")
	flag.BoolVar(&cfg.Compress, "compress", false, "Compress DATA frames with lz4")
	flag.IntVar(&cfg.CompressLevel, "compress-level", 0, "lz4 compression level (0: default level 2)")
	flag.BoolVar(&cfg.Strict, "strict", false, "Treat warnings as a non-zero exit code")
	flag.BoolVar(&cfg.Offline, "offline", false, "Back up an offline disk image via a local qemu-storage-daemon instead of libvirt")
	flag.IntVar(&cfg.BasePort, "base-port", 0, "First TCP port for offline remote NBD servers (0: use unix sockets)")
	flag.BoolVar(&cfg.RawPassthrough, "raw", false, "Write raw disks as a flat image instead of the stream container format")
	flag.BoolVar(&cfg.StartOnly, "start-only", false, "Start the hypervisor backup job(s) and exit without reading any data")
	flag.BoolVar(&cfg.KillOnly, "kill-only", false, "Abort any running backup job for the domain and exit")
	flag.BoolVar(&cfg.PrintEstimateOnly, "print-estimate-only", false, "Print the thin backup size per disk and exit without writing data")
	flag.StringVar(&cfg.RemoteUser, "remote-user", "", "SSH user for a remote output host")
	flag.StringVar(&cfg.RemoteKeyPath, "remote-key", "", "Path to an SSH private key for a remote output host")
	flag.IntVar(&cfg.RemotePort, "remote-port", 0, "SSH port for a remote output host (default 22)")
	flag.Parse()

	if cfg.Domain == "" || (cfg.Output == "" && !cfg.KillOnly) {
		flag.Usage()
		os.Exit(1)
	}
	if cfg.CheckpointPrefix == "" {
		cfg.CheckpointPrefix = cfg.Domain
	}
	cfg.Mode = checkpoint.Mode(mode)
	if include != "" {
		cfg.IncludeDisks = strings.Split(include, ",")
	}
	if exclude != "" {
		cfg.ExcludeDisks = strings.Split(exclude, ",")
	}
	return
}

func main() {
	level := slog.LevelInfo
	logger = slog.New(&customHandler{level: level})
	orchestrator.SetLogger(logger)

	verbose, cfg := parseFlags()
	if verbose {
		level = slog.LevelDebug
		logger = slog.New(&customHandler{level: level})
		orchestrator.SetLogger(logger)
	}

	conn := libvirt.NewWithDialer(dialers.NewLocal())
	if err := conn.Connect(); err != nil {
		logger.Error("failed to connect to libvirt", "error", err)
		os.Exit(orchestrator.ExitError)
	}
	defer conn.Disconnect()

	hv := hypervisor.NewLibvirtHypervisor(conn, cfg.CheckpointPrefix)

	code := orchestrator.Run(context.Background(), cfg, hv)
	logger.Info("backup run finished", "exit_code", code)
	os.Exit(code)
}
