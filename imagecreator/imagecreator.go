package imagecreator

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

// QcowSidecar is the subset of "qemu-img info --output=json" kept on
// restore, recovered from the latest "<diskTarget>.<ident>.qcow.json"
// sidecar. Each field is optional; an absent field falls back silently
// to qemu-img's own defaults.
type QcowSidecar struct {
	Compat        string
	ClusterSize   int64
	LazyRefcounts bool
}

// Creator allocates one target image file. The restore engine depends
// only on this interface.
type Creator interface {
	Create(ctx context.Context, path, format string, virtualSize int64, opts QcowSidecar) error
}

// ErrTargetExists reports that Create was asked to allocate a file that
// already exists; the restore engine refuses to overwrite targets.
type ErrTargetExists struct {
	Path string
}

func (e *ErrTargetExists) Error() string {
	return fmt.Sprintf("imagecreator: target %s already exists", e.Path)
}

// QemuImgCreator shells out to the qemu-img binary.
type QemuImgCreator struct {
	// ExecPath overrides the qemu-img binary; empty means "qemu-img"
	// resolved from PATH.
	ExecPath string
}

// Create allocates path as a fresh image of the given format and
// virtual size. For format "qcow2", opts is applied as -o create
// options when present. Create refuses to overwrite an existing file.
func (c QemuImgCreator) Create(ctx context.Context, path, format string, virtualSize int64, opts QcowSidecar) error {
	if _, err := os.Stat(path); err == nil {
		return &ErrTargetExists{Path: path}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "imagecreator: stat %s", path)
	}

	args := []string{"create", "-f", format}
	if format == "qcow2" {
		if o := qcowCreateOptions(opts); o != "" {
			args = append(args, "-o", o)
		}
	}
	args = append(args, path, fmt.Sprintf("%d", virtualSize))

	cmd := exec.CommandContext(ctx, c.execPath(), args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "imagecreator: qemu-img create failed: %s", string(out))
	}
	return nil
}

func (c QemuImgCreator) execPath() string {
	if c.ExecPath != "" {
		return c.ExecPath
	}
	return "qemu-img"
}

// qcowCreateOptions renders the recovered sidecar fields as a
// comma-separated "-o" option string; an all-empty sidecar yields "".
func qcowCreateOptions(opts QcowSidecar) string {
	var o string
	add := func(kv string) {
		if o != "" {
			o += ","
		}
		o += kv
	}
	if opts.Compat != "" {
		add("compat=" + opts.Compat)
	}
	if opts.ClusterSize > 0 {
		add(fmt.Sprintf("cluster_size=%d", opts.ClusterSize))
	}
	if opts.LazyRefcounts {
		add("lazy_refcounts=on")
	}
	return o
}

// LoadSidecar parses the verbatim qemu-img info JSON in raw into a
// QcowSidecar, honoring the nested keys named in the image-format
// sidecar contract: format-specific.data.compat, cluster-size,
// format-specific.data.lazy-refcounts. Missing keys are left zero/false.
func LoadSidecar(raw []byte) QcowSidecar {
	return parseSidecarJSON(raw)
}
