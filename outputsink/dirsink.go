package outputsink

import (
	"io"
	"os"
	"path/filepath"
)

// partialSuffix marks a stream file that has not yet been finalized.
// An orphaned file with this suffix in the target directory signals a
// prior failed run (spec §4.G partial-residue detection).
const partialSuffix = ".partial"

// DirSink writes each stream file as a plain file in a directory,
// staged under name+".partial" and atomically renamed to name on
// Finalize.
type DirSink struct {
	Dir string
}

func (s DirSink) Create(name string) (io.WriteCloser, error) {
	path := filepath.Join(s.Dir, name+partialSuffix)
	f, err := os.Create(path)
	if err != nil {
		return nil, outputErr("create "+path, err)
	}
	return f, nil
}

func (s DirSink) Finalize(name string) error {
	partial := filepath.Join(s.Dir, name+partialSuffix)
	final := filepath.Join(s.Dir, name)
	if err := os.Rename(partial, final); err != nil {
		return outputErr("rename "+partial+" -> "+final, err)
	}
	return nil
}

func (s DirSink) SerializesWriters() bool { return false }

// PartialResidue lists the final names (with the .partial suffix
// stripped) of every staged-but-unfinalized stream file in dir. A
// non-empty result means a prior run failed before renaming; the
// orchestrator rejects inc/diff runs against such a directory.
func PartialResidue(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, outputErr("read dir "+dir, err)
	}

	var residue []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == partialSuffix {
			residue = append(residue, e.Name()[:len(e.Name())-len(partialSuffix)])
		}
	}
	return residue, nil
}
