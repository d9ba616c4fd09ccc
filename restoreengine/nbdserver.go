package restoreengine

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/pkg/errors"
)

// restoreNBDServer is a background qemu-nbd process exposing the
// freshly allocated target image for writing (spec §4.E.2.d).
type restoreNBDServer struct {
	cmd  *exec.Cmd
	sock string
}

func startRestoreNBDServer(ctx context.Context, image, format, sock string) (*restoreNBDServer, error) {
	cmd := exec.CommandContext(ctx, "qemu-nbd", "-f", format, "-x", "export", "-k", sock, image)
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "restoreengine: start qemu-nbd")
	}
	time.Sleep(200 * time.Millisecond)
	return &restoreNBDServer{cmd: cmd, sock: sock}, nil
}

func (s *restoreNBDServer) Stop() error {
	if s == nil || s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	if err := s.cmd.Process.Kill(); err != nil {
		return errors.Wrap(err, "restoreengine: stop qemu-nbd")
	}
	_ = s.cmd.Wait()
	return nil
}

func restoreSocketPath(diskTarget string) string {
	return fmt.Sprintf("restore-socketfile.%s", diskTarget)
}
