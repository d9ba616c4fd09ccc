package restoreengine

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/pkg/errors"

	"github.com/valvemist/vmbackup/stream"
)

var streamFileRe = regexp.MustCompile(`^(.+)\.(full|copy|inc|diff)\.`)

// DumpMetadata emits the metadata of every stream file in dir, filtered
// by disk when diskFilter is non-empty, newest-first within each disk
// (spec §4.D dump mode; no writes performed).
func DumpMetadata(dir string, diskFilter []string) ([]stream.Metadata, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "restore: read input dir %s", dir)
	}

	type found struct {
		path    string
		modTime int64
	}
	var files []found
	for _, e := range entries {
		m := streamFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		target := m[1]
		if len(diskFilter) > 0 && !contains(diskFilter, target) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, found{path: filepath.Join(dir, e.Name()), modTime: info.ModTime().UnixNano()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime > files[j].modTime })

	var out []stream.Metadata
	for _, f := range files {
		r, err := stream.Open(f.path)
		if err != nil {
			return nil, errors.Wrapf(err, "restore: dump %s", f.path)
		}
		out = append(out, r.Metadata())
		r.Close()
	}
	return out, nil
}
