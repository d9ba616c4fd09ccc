package restoreengine

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/pkg/errors"
)

// RestoreConfig parameterizes one restore run. It is built once by the
// CLI and never mutated, mirroring runconfig.RunConfig on the backup
// side.
type RestoreConfig struct {
	InputDir  string
	OutputDir string

	// Until, when non-empty, stops chain replay after the stream file
	// whose checkpointName matches (spec §4.E.2.f).
	Until string

	DiskFilter []string

	// ExcludeDisks names disks to drop from the adjusted domain
	// configuration entirely, distinct from DiskFilter which selects
	// which disks' data gets restored.
	ExcludeDisks []string

	AdjustConfig bool
	Define       bool
}

var vmconfigRe = regexp.MustCompile(`^vmconfig\.(.+)\.xml$`)

// latestDomainConfig returns the bytes of the most recently modified
// "vmconfig.<ident>.xml" file in dir (spec §6 domain configuration
// contract).
func latestDomainConfig(dir string) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "restore: read input dir %s", dir)
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var candidates []candidate
	for _, e := range entries {
		if !vmconfigRe.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: filepath.Join(dir, e.Name()), modTime: info.ModTime().UnixNano()})
	}
	if len(candidates) == 0 {
		return nil, errors.Errorf("restore: no vmconfig.*.xml found in %s", dir)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime > candidates[j].modTime })
	return os.ReadFile(candidates[0].path)
}
