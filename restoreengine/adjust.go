package restoreengine

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/pkg/errors"

	"github.com/valvemist/vmbackup/hypervisor"
	"github.com/valvemist/vmbackup/imagecreator"
)

var qcowSidecarRe = regexp.MustCompile(`^(.+?)\.(.+)\.qcow\.json$`)

// latestQcowSidecar returns the recovered sidecar fields from the most
// recently modified "<diskTarget>.<ident>.qcow.json" file for
// diskTarget, or the zero value if none is present (spec §6: absent
// sidecar falls back silently to qemu-img defaults).
func latestQcowSidecar(dir, diskTarget string) imagecreator.QcowSidecar {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return imagecreator.QcowSidecar{}
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var candidates []candidate
	for _, e := range entries {
		m := qcowSidecarRe.FindStringSubmatch(e.Name())
		if m == nil || m[1] != diskTarget {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: filepath.Join(dir, e.Name()), modTime: info.ModTime().UnixNano()})
	}
	if len(candidates) == 0 {
		return imagecreator.QcowSidecar{}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime > candidates[j].modTime })

	raw, err := os.ReadFile(candidates[0].path)
	if err != nil {
		return imagecreator.QcowSidecar{}
	}
	return imagecreator.LoadSidecar(raw)
}

// adjustAndDefine implements spec §4.E.3: optionally rewrite disk
// source paths and remove excluded disks from the domain configuration,
// persist the result into the output directory, and optionally define
// the domain with the hypervisor.
func adjustAndDefine(ctx context.Context, cfg RestoreConfig, hv hypervisor.Hypervisor, restoredDisks []string) error {
	configXML, err := latestDomainConfig(cfg.InputDir)
	if err != nil {
		// Missing domain config is not fatal and is not reported: spec
		// only requires adjustment/definition when a config file exists.
		return nil
	}

	outXML := configXML
	if cfg.AdjustConfig {
		rewrites := make(map[string]string, len(restoredDisks))
		for _, target := range restoredDisks {
			rewrites[target] = filepath.Join(cfg.OutputDir, target)
		}
		adjusted, err := hv.AdjustDomainConfig(ctx, configXML, rewrites)
		if err != nil {
			return errors.Wrap(err, "restore: adjust domain config")
		}

		for _, target := range cfg.ExcludeDisks {
			adjusted, err = hv.AdjustDomainConfigRemoveDisk(ctx, adjusted, target)
			if err != nil {
				return errors.Wrapf(err, "restore: remove excluded disk %s from config", target)
			}
		}
		outXML = adjusted
	}

	outPath := filepath.Join(cfg.OutputDir, filepath.Base(findDomainConfigName(cfg.InputDir)))
	if err := os.WriteFile(outPath, outXML, 0o644); err != nil {
		return errors.Wrapf(err, "restore: write domain config %s", outPath)
	}

	if cfg.Define {
		if err := hv.DefineDomain(ctx, outXML); err != nil {
			return errors.Wrap(err, "restore: define domain")
		}
	}
	return nil
}

func findDomainConfigName(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "vmconfig.restored.xml"
	}
	var best string
	var bestMod int64
	for _, e := range entries {
		if !vmconfigRe.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().UnixNano() > bestMod {
			best = e.Name()
			bestMod = info.ModTime().UnixNano()
		}
	}
	if best == "" {
		return "vmconfig.restored.xml"
	}
	return best
}
