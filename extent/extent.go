package extent

import "fmt"

// Extent is a contiguous region of a disk: [Offset, Offset+Length).
// Data true means "allocated and/or dirty" under the active metadata
// context; Data false means "hole/zero". A full Extent sequence
// returned by a Handler covers [0, diskSize) with no gaps or overlaps,
// and no two adjacent entries share the same Data flag.
type Extent struct {
	Offset uint64
	Length uint64
	Data   bool
}

func (e Extent) String() string {
	return fmt.Sprintf("[%d,%d) data=%v", e.Offset, e.Offset+e.Length, e.Data)
}

// Handler enumerates extents for one disk. A nil result with a nil
// error means "no extent information available" — the backup engine
// treats that as success with no data, logging a warning.
type Handler interface {
	QueryBlockStatus() ([]Extent, error)
}

// Merge coalesces adjacent extents with the same Data flag and clips
// the final entry so the sequence exactly covers [0, diskSize).
func Merge(raw []Extent, diskSize uint64) []Extent {
	if len(raw) == 0 {
		return nil
	}

	merged := make([]Extent, 0, len(raw))
	for _, e := range raw {
		if e.Offset >= diskSize {
			break
		}
		if e.Offset+e.Length > diskSize {
			e.Length = diskSize - e.Offset
		}
		if n := len(merged); n > 0 && merged[n-1].Data == e.Data && merged[n-1].Offset+merged[n-1].Length == e.Offset {
			merged[n-1].Length += e.Length
			continue
		}
		merged = append(merged, e)
	}
	return merged
}

// MetaContextName computes the NBD metadata context used to query
// extents for the given backup mode, per spec §4.C: the offline
// context is derived from the checkpoint name, the online context from
// the disk target. copy mode mints no checkpoint name; with nothing to
// track against, extents come from plain allocation status instead of
// a dirty bitmap.
func MetaContextName(offline bool, checkpointName, diskTarget string) string {
	if offline {
		if checkpointName == "" {
			return "base:allocation"
		}
		return "qemu:dirty-bitmap:" + checkpointName
	}
	return "qemu:dirty-bitmap:backup-" + diskTarget
}
