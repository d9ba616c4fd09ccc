package backupengine

import (
	"fmt"

	"github.com/valvemist/vmbackup/checkpoint"
)

// StreamFileName implements the file-naming grammar of spec §4.D:
// "<diskTarget>.<level>.data" for full/copy, "<diskTarget>.<level>.
// <checkpointName>.data" for inc, "<diskTarget>.diff.<epochSeconds>.
// data" for diff.
func StreamFileName(diskTarget string, mode checkpoint.Mode, checkpointName string, nowUnix int64) string {
	switch mode {
	case checkpoint.ModeFull, checkpoint.ModeCopy:
		return fmt.Sprintf("%s.%s.data", diskTarget, mode)
	case checkpoint.ModeInc:
		return fmt.Sprintf("%s.%s.%s.data", diskTarget, mode, checkpointName)
	case checkpoint.ModeDiff:
		return fmt.Sprintf("%s.diff.%d.data", diskTarget, nowUnix)
	default:
		return fmt.Sprintf("%s.%s.data", diskTarget, mode)
	}
}

// QcowSidecarName implements "<diskTarget>.<ident>.qcow.json".
func QcowSidecarName(diskTarget, ident string) string {
	return fmt.Sprintf("%s.%s.qcow.json", diskTarget, ident)
}
