package backupengine

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	qemu "github.com/digitalocean/go-qemu/qmp"
	"github.com/pkg/errors"

	"github.com/valvemist/vmbackup/qmp"
)

const offlineNodeName = "disk0"
const offlineExportID = "export0"

// localNBDServer is a background qemu-storage-daemon process exposing
// one disk image over a Unix socket or TCP port for the offline backup
// path (spec §4.D step 3), with its QMP monitor attached so the
// dirty-bitmap bookkeeping needed for offline inc/diff backups can run
// against a real monitor rather than libvirt's checkpoint API, which
// only exists for a running domain. Exactly one disk worker owns each
// instance.
type localNBDServer struct {
	cmd     *exec.Cmd
	monitor *qemu.SocketMonitor

	// attached is set once attachOfflineDisk has exported a node over
	// this monitor, so Stop knows whether there is anything to tear
	// down before killing the process.
	attached bool
}

// startLocalNBDServer launches qemu-storage-daemon with its QMP
// monitor listening on qmpSock and its NBD server listening on sock or
// port. It does not attach the disk image, export a node over NBD or
// add any bitmap; attachOfflineDisk does that once connected, after deciding
// whether this run needs a fresh bitmap or the existing one named by
// the checkpoint chain's parent. sock/port expose the NBD server
// socket for the offline/local and offline/remote cases respectively
// (spec §5); ports/sockets must be disjoint across concurrent workers,
// the caller's responsibility.
func startLocalNBDServer(ctx context.Context, qmpSock, sock string, port int) (*localNBDServer, error) {
	args := []string{
		"--qmp", fmt.Sprintf("unix:%s,server=on,wait=off", qmpSock),
	}
	if sock != "" {
		args = append(args, "--nbd-server", fmt.Sprintf("addr.type=unix,addr.path=%s", sock))
	} else {
		args = append(args, "--nbd-server", fmt.Sprintf("addr.type=inet,addr.host=127.0.0.1,addr.port=%d", port))
	}

	cmd := exec.CommandContext(ctx, "qemu-storage-daemon", args...)
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "backupengine: start qemu-storage-daemon")
	}

	// The QMP listener needs a moment to come up before dialing it.
	time.Sleep(200 * time.Millisecond)

	monitor, err := qemu.NewSocketMonitor("unix", qmpSock, 5*time.Second)
	if err != nil {
		cmd.Process.Kill()
		return nil, errors.Wrap(err, "backupengine: dial qemu-storage-daemon monitor")
	}
	if err := monitor.Connect(); err != nil {
		cmd.Process.Kill()
		return nil, errors.Wrap(err, "backupengine: connect qemu-storage-daemon monitor")
	}

	return &localNBDServer{cmd: cmd, monitor: monitor}, nil
}

// Stop tears down the NBD export and block-dev node it was carrying (if
// any were ever attached), disconnects the QMP monitor, and kills the
// background qemu-storage-daemon process. It is always called on the
// worker's exit path, success or failure.
func (s *localNBDServer) Stop() error {
	if s == nil {
		return nil
	}
	if s.monitor != nil {
		if s.attached {
			qmp.RunExportDel(s.monitor, offlineExportID)
			qmp.RunBlockDevDel(s.monitor, qmp.Config{DeviceToBackup: offlineNodeName})
		}
		s.monitor.Disconnect()
	}
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	if err := s.cmd.Process.Kill(); err != nil {
		return errors.Wrap(err, "backupengine: stop qemu-storage-daemon")
	}
	_ = s.cmd.Wait()
	return nil
}
