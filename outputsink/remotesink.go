package outputsink

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
)

// Uploader is the narrow surface RemoteSink needs from a remote shell
// connection; remoteshell.SSHShell satisfies it.
type Uploader interface {
	Upload(ctx context.Context, remotePath string, r io.Reader) error
}

// RemoteSink stages each stream file under a local scratch directory
// and uploads it to remoteDir over an Uploader on Finalize, so a
// worker's write is never in flight over the network while extents are
// still being read (spec §6 "host:path" output form).
type RemoteSink struct {
	Ctx       context.Context
	Uploader  Uploader
	RemoteDir string
	StageDir  string
}

func (s RemoteSink) Create(name string) (io.WriteCloser, error) {
	stagePath := filepath.Join(s.StageDir, name)
	f, err := os.Create(stagePath)
	if err != nil {
		return nil, outputErr("create staging file "+stagePath, err)
	}
	return f, nil
}

func (s RemoteSink) Finalize(name string) error {
	stagePath := filepath.Join(s.StageDir, name)
	f, err := os.Open(stagePath)
	if err != nil {
		return outputErr("reopen staging file "+stagePath, err)
	}
	defer f.Close()

	remotePath := path.Join(s.RemoteDir, name)
	if err := s.Uploader.Upload(s.Ctx, remotePath, f); err != nil {
		return outputErr("upload "+remotePath, err)
	}
	return outputErr("remove staging file "+stagePath, os.Remove(stagePath))
}

func (s RemoteSink) SerializesWriters() bool { return false }
