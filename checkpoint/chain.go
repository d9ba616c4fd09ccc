package checkpoint

import (
	"encoding/json"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Mode is one of the backup modes that drive chain decisions.
type Mode string

const (
	ModeCopy Mode = "copy"
	ModeFull Mode = "full"
	ModeInc  Mode = "inc"
	ModeDiff Mode = "diff"
	ModeAuto Mode = "auto"
)

// Chain is the ordered, JSON-persisted sequence of checkpoint names for
// one domain. It is owned exclusively by the orchestrator.
type Chain struct {
	Path   string
	Prefix string
	Names  []string
}

// Load reads the chain file at path. A missing file is treated as an
// empty chain (spec §6); invalid JSON is a fatal ReadCheckpointsError.
func Load(path, prefix string) (*Chain, error) {
	c := &Chain{Path: path, Prefix: prefix}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, newError(ReadCheckpointsError, "read %s: %v", path, err)
	}

	if err := json.Unmarshal(data, &c.Names); err != nil {
		return nil, newError(ReadCheckpointsError, "parse %s: %v", path, err)
	}
	return c, nil
}

// Save persists the chain as a JSON array of strings.
func (c *Chain) Save() error {
	names := c.Names
	if names == nil {
		names = []string{}
	}
	data, err := json.Marshal(names)
	if err != nil {
		return newError(SaveCheckpointError, "encode %s: %v", c.Path, err)
	}
	if err := os.WriteFile(c.Path, data, 0o644); err != nil {
		return newError(SaveCheckpointError, "write %s: %v", c.Path, err)
	}
	return nil
}

// Last returns the most recently appended checkpoint name, which is
// always the parent for the next inc/diff backup (invariant I2).
func (c *Chain) Last() (string, bool) {
	if len(c.Names) == 0 {
		return "", false
	}
	return c.Names[len(c.Names)-1], true
}

// Append adds name to the chain. Callers must only do this after the
// hypervisor has confirmed the backup job started (invariant I4).
func (c *Chain) Append(name string) {
	c.Names = append(c.Names, name)
}

// Reset empties the chain in memory; the caller pairs this with Save
// to overwrite the on-disk chain with an empty one (full-mode
// truncation, invariant I3).
func (c *Chain) Reset() {
	c.Names = nil
}

var suffixPattern = regexp.MustCompile(`^(.+)\.(\d+)$`)

// ParseSuffix splits "<prefix>.<n>" and reports whether name matches
// the expected prefix pattern and n parses as a non-negative integer.
func ParseSuffix(prefix, name string) (n int, ok bool) {
	m := suffixPattern.FindStringSubmatch(name)
	if m == nil || m[1] != prefix {
		return 0, false
	}
	v, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	return v, true
}

// MaxSuffix returns the largest numeric suffix among the chain's own
// checkpoint names (invariant: suffixes strictly increase, I1 unique).
func (c *Chain) MaxSuffix() (int, bool) {
	max := -1
	found := false
	for _, name := range c.Names {
		if n, ok := ParseSuffix(c.Prefix, name); ok {
			found = true
			if n > max {
				max = n
			}
		}
	}
	return max, found
}

// DetectForeign returns every hypervisor-reported checkpoint name that
// does not match "<prefix>.<n>". Presence of any foreign checkpoint is
// fatal: callers must refuse to continue (spec §4.F).
func DetectForeign(prefix string, hypervisorCheckpoints []string) []string {
	var foreign []string
	for _, name := range hypervisorCheckpoints {
		if _, ok := ParseSuffix(prefix, name); !ok {
			foreign = append(foreign, name)
		}
	}
	return foreign
}

// ForeignError builds the fatal Foreign error naming the offending
// checkpoints, for the orchestrator to surface before calling StartBackup.
func ForeignError(foreign []string) error {
	return newError(Foreign, "hypervisor reports foreign checkpoint(s): %s", strings.Join(foreign, ", "))
}
