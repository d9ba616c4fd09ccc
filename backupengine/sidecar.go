package backupengine

import (
	"context"
	"encoding/json"
	"os/exec"

	"github.com/valvemist/vmbackup/checkpoint"
	"github.com/valvemist/vmbackup/hypervisor"
	"github.com/valvemist/vmbackup/outputsink"
)

// writeQcowSidecar records the source qcow2 image's own creation
// options (compat level, cluster size, lazy refcounts) next to the
// backup stream, via the same "qemu-img info --output=json" shape
// imagecreator.LoadSidecar already knows how to parse. A restore can
// then recreate an equivalent target image instead of falling back to
// qemu-img's built-in defaults.
//
// This is advisory only: a failure (qemu-img missing, disk.Source not
// a local path the backup host can stat) is silently ignored, never
// failing the backup itself.
func writeQcowSidecar(ctx context.Context, disk hypervisor.DomainDisk, decision checkpoint.Decision, mode checkpoint.Mode, sink outputsink.Sink) {
	if disk.Format != "qcow2" {
		return
	}

	out, err := exec.CommandContext(ctx, "qemu-img", "info", "--output=json", disk.Source).Output()
	if err != nil || !json.Valid(out) {
		return
	}

	ident := decision.Name
	if ident == "" {
		ident = string(mode)
	}
	name := QcowSidecarName(disk.Target, ident)

	w, err := sink.Create(name)
	if err != nil {
		return
	}
	if _, err := w.Write(out); err != nil {
		w.Close()
		return
	}
	if err := w.Close(); err != nil {
		return
	}
	sink.Finalize(name)
}
