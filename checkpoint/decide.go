package checkpoint

import "fmt"

// Decision is the outcome of HandleCheckpoints: the name to use for
// this backup (empty for copy, which never mints one), the parent
// checkpoint to base an inc/diff on, and whether the run must truncate
// the chain (full mode dropping prior history) or extend it (full and
// inc modes appending a new entry; diff and copy never extend).
type Decision struct {
	Name          string
	Parent        string
	TruncateChain bool
	ExtendChain   bool
}

// HandleCheckpoints implements the mode table of spec §4.F. targetEmpty
// resolves ModeAuto to full or inc, mirroring the orchestrator's
// target-directory inspection.
func HandleCheckpoints(mode Mode, chain *Chain, targetEmpty bool) (Decision, error) {
	if mode == ModeAuto {
		if targetEmpty {
			mode = ModeFull
		} else {
			mode = ModeInc
		}
	}

	_, hasLast := chain.Last()

	switch mode {
	case ModeCopy:
		parent, _ := chain.Last()
		return Decision{Parent: parent}, nil

	case ModeFull:
		name := fmt.Sprintf("%s.0", chain.Prefix)
		return Decision{Name: name, TruncateChain: hasLast, ExtendChain: true}, nil

	case ModeInc:
		if !hasLast {
			return Decision{}, newError(NoCheckpointsFound, "mode inc requires an existing chain for %s", chain.Prefix)
		}
		max, _ := chain.MaxSuffix()
		parent, _ := chain.Last()
		return Decision{
			Name:        fmt.Sprintf("%s.%d", chain.Prefix, max+1),
			Parent:      parent,
			ExtendChain: true,
		}, nil

	case ModeDiff:
		if !hasLast {
			return Decision{}, newError(NoCheckpointsFound, "mode diff requires an existing chain for %s", chain.Prefix)
		}
		parent, _ := chain.Last()
		return Decision{Name: parent, Parent: parent}, nil

	default:
		return Decision{}, newError(ReadCheckpointsError, "unknown backup mode %q", mode)
	}
}

// Commit persists the decision to the chain file. It must only be
// called after the hypervisor has confirmed the backup job started
// (invariant I4); diff and copy decisions never extend the chain, so
// Commit is a no-op for them beyond the full-mode truncation performed
// before the job was started.
func (d Decision) Commit(chain *Chain) error {
	if !d.ExtendChain {
		return nil
	}
	chain.Append(d.Name)
	return chain.Save()
}
