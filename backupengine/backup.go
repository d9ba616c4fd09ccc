package backupengine

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/valvemist/vmbackup/checkpoint"
	"github.com/valvemist/vmbackup/extent"
	"github.com/valvemist/vmbackup/hypervisor"
	"github.com/valvemist/vmbackup/nbdclient"
	"github.com/valvemist/vmbackup/outputsink"
	"github.com/valvemist/vmbackup/qmp"
	"github.com/valvemist/vmbackup/runconfig"
	"github.com/valvemist/vmbackup/stream"
)

// BackupDisk runs the full per-disk pipeline of spec §4.D. job must
// already be started by the caller (the orchestrator starts the
// hypervisor backup job once, spawns one BackupDisk call per disk, and
// appends the chain entry only after every disk has succeeded). mode
// is the already-resolved mode (auto has been resolved to full or inc
// by the orchestrator) and drives the ZERO-frame-emission tie-break.
func BackupDisk(ctx context.Context, cfg runconfig.RunConfig, wc *runconfig.WorkerContext, job hypervisor.BackupJob, decision checkpoint.Decision, mode checkpoint.Mode, sink outputsink.Sink, nowUnix int64) error {
	disk := wc.Disk

	raw := disk.Format == "raw" && cfg.RawPassthrough

	transport, extents, cleanup, err := openDiskTransport(ctx, cfg, wc, job, decision, mode)
	if err != nil {
		return &DiskBackupFailed{Disk: disk.Target, Err: err}
	}
	defer cleanup()

	wc.Transport = transport
	diskSize := transport.Size()
	wc.Extents = extents

	for _, e := range extents {
		if e.Data {
			wc.ThinBackupSize += int64(e.Length)
		}
	}

	name := StreamFileName(disk.Target, mode, decision.Name, nowUnix)
	writer, err := sink.Create(name)
	if err != nil {
		return &DiskBackupFailed{Disk: disk.Target, Err: err}
	}
	wc.Writer = writer
	defer writer.Close()

	if raw {
		if err := writeRaw(transport, writer, extents, diskSize); err != nil {
			return &DiskBackupWriterException{Disk: disk.Target, Err: err}
		}
	} else {
		if err := writeStream(cfg, transport, writer, extents, diskSize, decision, mode, wc); err != nil {
			return &DiskBackupWriterException{Disk: disk.Target, Err: err}
		}
	}

	if err := writer.Close(); err != nil {
		return &DiskBackupWriterException{Disk: disk.Target, Err: errors.Wrap(err, "close writer")}
	}
	wc.Writer = nil

	if err := sink.Finalize(name); err != nil {
		return &DiskBackupWriterException{Disk: disk.Target, Err: err}
	}

	writeQcowSidecar(ctx, disk, decision, mode, sink)

	return nil
}

// openDiskTransport connects to disk's NBD export (starting a local
// qemu-storage-daemon first for the offline path) and queries its
// extents, returning a cleanup func that tears down the transport and,
// for the offline path, the storage daemon too. Shared by BackupDisk
// and EstimateDisk so print-estimate mode exercises the exact same
// offline attach/bitmap logic a real backup run does.
func openDiskTransport(ctx context.Context, cfg runconfig.RunConfig, wc *runconfig.WorkerContext, job hypervisor.BackupJob, decision checkpoint.Decision, mode checkpoint.Mode) (nbdclient.Transport, []extent.Extent, func(), error) {
	disk := wc.Disk
	metaContext := extent.MetaContextName(cfg.Offline, decision.Name, disk.Target)
	if mode == checkpoint.ModeFull || mode == checkpoint.ModeCopy {
		// full and copy read every allocated region, not only dirty ones.
		metaContext = "base:allocation"
	}

	var nbdServer *localNBDServer
	spec := nbdclient.ConnectSpec{MetaContext: metaContext}

	if cfg.Offline {
		sock := ""
		port := 0
		if cfg.BasePort > 0 {
			port = cfg.BasePort + wc.WorkerIndex
		} else {
			sock = fmt.Sprintf("socketfile.%s", disk.Target)
		}
		qmpSock := fmt.Sprintf("qmp.%s", disk.Target)

		var err error
		nbdServer, err = startLocalNBDServer(ctx, qmpSock, sock, port)
		if err != nil {
			return nil, nil, nil, err
		}

		if err := attachOfflineDisk(nbdServer.monitor, disk, decision, mode); err != nil {
			nbdServer.Stop()
			return nil, nil, nil, err
		}
		nbdServer.attached = true

		spec.UnixSocket = sock
		spec.Port = port
		spec.ExportName = offlineExportID
		if sock == "" {
			spec.Host = "127.0.0.1"
		}
	} else {
		spec.UnixSocket = job.NBDSocket
		spec.ExportName = disk.Target
	}

	transport, err := nbdclient.Dial(spec)
	if err != nil {
		nbdServer.Stop()
		return nil, nil, nil, err
	}

	extents, err := queryExtents(transport, transport.Size())
	if err != nil {
		transport.Disconnect()
		nbdServer.Stop()
		return nil, nil, nil, err
	}

	cleanup := func() {
		transport.Disconnect()
		nbdServer.Stop()
	}
	return transport, extents, cleanup, nil
}

// EstimateDisk reports the thin (allocated/dirty) backup size for one
// disk without writing any output, for -print-estimate-only (spec
// §4.D). It goes through the same transport/attach path BackupDisk
// does, including the offline qemu-storage-daemon bitmap bootstrap.
func EstimateDisk(ctx context.Context, cfg runconfig.RunConfig, wc *runconfig.WorkerContext, job hypervisor.BackupJob, decision checkpoint.Decision, mode checkpoint.Mode) (int64, error) {
	_, extents, cleanup, err := openDiskTransport(ctx, cfg, wc, job, decision, mode)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	var thin int64
	for _, e := range extents {
		if e.Data {
			thin += int64(e.Length)
		}
	}
	return thin, nil
}

// attachOfflineDisk wires disk.Source into the storage daemon monitor
// and exports it over NBD, bootstrapping or carrying forward the
// checkpoint-chain bitmap named by decision:
//
//   - copy mode mints no checkpoint (decision.Name == ""): export the
//     node plain, no bitmap.
//   - a fresh chain (decision.Parent == ""): add a new bitmap named
//     decision.Name. Nothing has dirtied it yet, so extent queries on
//     this run fall back to plain allocation status (spec §4.D); it
//     starts accumulating from here for the next incremental.
//   - diff mode (decision.Name == decision.Parent): the bitmap must
//     already exist, persisted in the image from the run that created
//     it; diff never mutates it.
//   - incremental mode: add decision.Name fresh, merge the existing
//     decision.Parent bitmap's dirty bits into it, then retire the
//     parent bitmap — mirroring the checkpoint-bitmap inheritance a
//     running domain's pull-mode backup job gets from libvirt.
func attachOfflineDisk(monitor qmp.Monitor, disk hypervisor.DomainDisk, decision checkpoint.Decision, mode checkpoint.Mode) error {
	nodeCfg := qmp.Config{DeviceToBackup: offlineNodeName, Format: disk.Format, BackupFile: disk.Source}
	if _, err := qmp.RunBlockDevAdd(monitor, nodeCfg); err != nil {
		return errors.Wrap(err, "attach offline disk image")
	}
	if _, err := qmp.RunGetVirtualSize(monitor, nodeCfg); err != nil {
		return errors.Wrap(err, "confirm offline disk image attached")
	}

	bitmap := decision.Name
	switch {
	case decision.Name == "":
		bitmap = ""
	case decision.Parent == "":
		cfg := nodeCfg
		cfg.BitmapName = decision.Name
		if _, err := qmp.RunBitmapAdd(monitor, cfg); err != nil {
			return errors.Wrap(err, "bootstrap offline dirty bitmap")
		}
	case decision.Name == decision.Parent:
		// diff: reuse the existing bitmap as-is.
	default:
		cfg := nodeCfg
		cfg.BitmapName = decision.Name
		if _, err := qmp.RunBitmapAdd(monitor, cfg); err != nil {
			return errors.Wrap(err, "add offline incremental bitmap")
		}
		if _, err := qmp.RunBitmapMerge(monitor, cfg, decision.Parent); err != nil {
			return errors.Wrap(err, "merge parent bitmap forward")
		}
		parentCfg := nodeCfg
		parentCfg.BitmapName = decision.Parent
		if _, err := qmp.RunBitmapRemove(monitor, parentCfg); err != nil {
			return errors.Wrap(err, "retire parent bitmap")
		}
	}

	if _, err := qmp.RunExportAdd(monitor, nodeCfg, offlineExportID, bitmap); err != nil {
		return errors.Wrap(err, "export offline disk over nbd")
	}
	return nil
}

// queryExtents implements the "nil result is success with no data"
// tie-break and the ErrMetaContextUnavailable fallback of spec §4.D.
func queryExtents(transport nbdclient.Transport, diskSize uint64) ([]extent.Extent, error) {
	handler := extent.NBDHandler{Transport: transport}
	raw, err := handler.QueryBlockStatus()
	if err != nil {
		var unavailable *nbdclient.ErrMetaContextUnavailable
		if errors.As(err, &unavailable) {
			slog.Warn("metadata context unavailable, backing up no data", "context", transport.MetaContext())
			return nil, nil
		}
		return nil, err
	}
	if raw == nil {
		slog.Warn("no extent information available, backing up no data", "context", transport.MetaContext())
		return nil, nil
	}
	return extent.Merge(raw, diskSize), nil
}

func writeRaw(transport nbdclient.Transport, writer io.WriteCloser, extents []extent.Extent, diskSize uint64) error {
	ws, ok := writer.(io.WriteSeeker)
	if !ok {
		return errors.New("raw passthrough requires a seekable writer")
	}
	maxReq := transport.MaxRequestSize()

	for _, e := range extents {
		if !e.Data {
			if _, err := ws.Seek(int64(e.Offset+e.Length), io.SeekStart); err != nil {
				return errors.Wrap(err, "seek past hole")
			}
			continue
		}
		if err := copyExtentRaw(transport, ws, e, maxReq); err != nil {
			return err
		}
	}
	if _, err := ws.Seek(int64(diskSize), io.SeekStart); err != nil {
		return errors.Wrap(err, "seek to final size")
	}
	return nil
}

func copyExtentRaw(transport nbdclient.Transport, ws io.WriteSeeker, e extent.Extent, maxReq uint64) error {
	offset, remaining := e.Offset, e.Length
	for remaining > 0 {
		chunkLen := remaining
		if chunkLen > maxReq {
			chunkLen = maxReq
		}
		buf := make([]byte, chunkLen)
		if err := transport.Pread(buf, offset); err != nil {
			return err
		}
		if _, err := ws.Seek(int64(offset), io.SeekStart); err != nil {
			return errors.Wrap(err, "seek to extent offset")
		}
		if _, err := ws.Write(buf); err != nil {
			return errors.Wrap(err, "write raw extent")
		}
		offset += chunkLen
		remaining -= chunkLen
	}
	return nil
}

func writeStream(cfg runconfig.RunConfig, transport nbdclient.Transport, writer io.Writer, extents []extent.Extent, diskSize uint64, decision checkpoint.Decision, mode checkpoint.Mode, wc *runconfig.WorkerContext) error {
	incremental := mode == checkpoint.ModeInc || mode == checkpoint.ModeDiff
	disk := wc.Disk

	meta := stream.NewMetadata(disk.Target, disk.Format, decision.Name, decision.Parent, int64(diskSize), wc.ThinBackupSize, incremental)
	if cfg.Compress {
		level := cfg.CompressLevel
		if level <= 0 {
			level = stream.DefaultCompressionLevel
		}
		meta = meta.WithCompression("lz4", level)
	}
	if err := stream.WriteMetaFrame(writer, meta); err != nil {
		return err
	}

	sw := stream.NewWriter(writer, cfg.Compress, cfg.CompressLevel)
	maxReq := transport.MaxRequestSize()

	for _, e := range extents {
		if e.Data {
			chunks, err := readChunks(transport, e, maxReq)
			if err != nil {
				return err
			}
			if err := sw.WriteData(e.Offset, chunks); err != nil {
				return err
			}
			continue
		}
		// !data (hole): full/copy records an explicit ZERO frame; inc/diff
		// omit it implicitly (spec §4.D step 7).
		if mode == checkpoint.ModeFull || mode == checkpoint.ModeCopy {
			if err := sw.WriteZero(e.Offset, e.Length); err != nil {
				return err
			}
		}
	}

	if err := sw.WriteStop(); err != nil {
		return err
	}
	return sw.Finish()
}

// readChunks reads one extent from the NBD transport, splitting into
// MaxRequestSize-bounded chunks when the extent exceeds it (spec §4.D
// step 7). Every sub-chunk is returned uncompressed; stream.Writer
// applies compression per chunk.
func readChunks(transport nbdclient.Transport, e extent.Extent, maxReq uint64) ([][]byte, error) {
	if e.Length < maxReq {
		buf := make([]byte, e.Length)
		if err := transport.Pread(buf, e.Offset); err != nil {
			return nil, err
		}
		return [][]byte{buf}, nil
	}

	var chunks [][]byte
	offset, remaining := e.Offset, e.Length
	for remaining > 0 {
		chunkLen := remaining
		if chunkLen > maxReq {
			chunkLen = maxReq
		}
		buf := make([]byte, chunkLen)
		if err := transport.Pread(buf, offset); err != nil {
			return nil, err
		}
		chunks = append(chunks, buf)
		offset += chunkLen
		remaining -= chunkLen
	}
	return chunks, nil
}
