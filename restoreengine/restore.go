package restoreengine

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/valvemist/vmbackup/hypervisor"
	"github.com/valvemist/vmbackup/imagecreator"
	"github.com/valvemist/vmbackup/nbdclient"
	"github.com/valvemist/vmbackup/stream"
)

// RestoreDomain implements the restore algorithm of spec §4.E: for
// every selected disk, discover its chain, allocate the target image,
// replay the chain in order through a restore-side NBD endpoint, and
// optionally adjust and redefine the domain configuration.
func RestoreDomain(ctx context.Context, cfg RestoreConfig, hv hypervisor.Hypervisor, ic imagecreator.Creator) error {
	disks, err := ListDisks(cfg.InputDir, cfg.DiskFilter)
	if err != nil {
		return err
	}

	var failures []error
	for _, diskTarget := range disks {
		if err := restoreOneDisk(ctx, cfg, diskTarget, ic); err != nil {
			failures = append(failures, err)
		}
	}

	if err := adjustAndDefine(ctx, cfg, hv, disks); err != nil {
		failures = append(failures, err)
	}

	if len(failures) > 0 {
		return errors.Errorf("restore: %d disk(s) failed: %v", len(failures), failures)
	}
	return nil
}

func restoreOneDisk(ctx context.Context, cfg RestoreConfig, diskTarget string, ic imagecreator.Creator) error {
	chain, err := DiscoverChain(cfg.InputDir, diskTarget)
	if err != nil {
		return &RestoreError{Disk: diskTarget, Err: err}
	}

	base, err := stream.Open(chain[0])
	if err != nil {
		return &RestoreError{Disk: diskTarget, Err: err}
	}
	baseMeta := base.Metadata()
	base.Close()

	sidecar := latestQcowSidecar(cfg.InputDir, diskTarget)

	targetPath := filepath.Join(cfg.OutputDir, diskTarget)
	if _, err := os.Stat(targetPath); err == nil {
		return &RestoreError{Disk: diskTarget, Err: &ErrTargetExists{Path: targetPath}}
	}

	if err := ic.Create(ctx, targetPath, baseMeta.DiskFormat, baseMeta.VirtualSize, sidecar); err != nil {
		return &RestoreError{Disk: diskTarget, Err: err}
	}

	sock := restoreSocketPath(diskTarget)
	server, err := startRestoreNBDServer(ctx, targetPath, baseMeta.DiskFormat, sock)
	if err != nil {
		return &RestoreError{Disk: diskTarget, Err: err}
	}
	defer server.Stop()

	transport, err := nbdclient.Dial(nbdclient.ConnectSpec{UnixSocket: sock})
	if err != nil {
		return &RestoreError{Disk: diskTarget, Err: err}
	}
	defer transport.Disconnect()

	for _, file := range chain {
		err := replayFile(transport, file, cfg.Until)
		var stop *stream.UntilCheckpointReached
		if errors.As(err, &stop) {
			break
		}
		if err != nil {
			return &RestoreError{Disk: diskTarget, Err: err}
		}
	}
	return nil
}

// replayFile plays one stream file against transport. It returns a
// *stream.UntilCheckpointReached non-error sentinel when the file's
// checkpointName matches until, signaling the caller to stop chain
// replay cleanly (spec §4.E.2.f).
func replayFile(transport nbdclient.Transport, path, until string) error {
	r, err := stream.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	meta := r.Metadata()
	var restored int64

	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		switch ev.Kind {
		case stream.KindData:
			if err := pwriteChunked(transport, ev.Payload, ev.Start); err != nil {
				return err
			}
			restored += int64(len(ev.Payload))
		case stream.KindZero:
			if err := transport.Zero(ev.Length, ev.Start); err != nil {
				return err
			}
		case stream.KindStop:
			// terminal frame; Reader.Next returns io.EOF on the next call.
		}
	}

	if restored != meta.DataSize {
		return &ErrDataSizeMismatch{File: path, Want: meta.DataSize, Restored: restored}
	}

	if until != "" && meta.CheckpointName == until {
		return &stream.UntilCheckpointReached{Checkpoint: until}
	}
	return nil
}

// pwriteChunked writes payload at offset in transport.MaxRequestSize
// bounded pieces, the write-side mirror of the chunked reads the
// backup engine performs when it originally read an extent this large
// (backupengine.readChunks): a DATA frame's merged payload can exceed
// the server's request cap even though each underlying read that built
// it did not.
func pwriteChunked(transport nbdclient.Transport, payload []byte, offset uint64) error {
	maxReq := transport.MaxRequestSize()
	if uint64(len(payload)) <= maxReq {
		return transport.Pwrite(payload, offset)
	}

	for len(payload) > 0 {
		chunkLen := uint64(len(payload))
		if chunkLen > maxReq {
			chunkLen = maxReq
		}
		if err := transport.Pwrite(payload[:chunkLen], offset); err != nil {
			return err
		}
		payload = payload[chunkLen:]
		offset += chunkLen
	}
	return nil
}
