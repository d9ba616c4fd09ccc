package orchestrator

import (
	"os"
	"regexp"
)

var baseFileRe = regexp.MustCompile(`^(.+)\.(full|copy)\.`)

// targetDirEmpty reports whether dir holds no prior backup output,
// resolving "auto" to full mode (spec §4.G). A directory that does not
// exist yet counts as empty.
func targetDirEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// hasBaseFile reports whether dir contains a full or copy stream file
// for diskTarget, the precondition "auto" validates before resolving
// to inc mode.
func hasBaseFile(dir, diskTarget string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		m := baseFileRe.FindStringSubmatch(e.Name())
		if m != nil && m[1] == diskTarget {
			return true
		}
	}
	return false
}
