package orchestrator

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/valvemist/vmbackup/backupengine"
	"github.com/valvemist/vmbackup/checkpoint"
	"github.com/valvemist/vmbackup/hypervisor"
	"github.com/valvemist/vmbackup/outputsink"
	"github.com/valvemist/vmbackup/runconfig"
)

// Run executes one full backup of cfg.Domain and returns the process
// exit code (spec §4.G, §6). It owns the checkpoint chain file end to
// end. Full-mode truncation (dropping hypervisor checkpoints and
// resetting the chain file) happens before the backup job starts, since
// full mode always reuses "<prefix>.0" and the hypervisor refuses to
// create a checkpoint that already exists; every other chain mutation
// (appending the new checkpoint name) is deferred until every selected
// disk's worker has finished without error.
func Run(ctx context.Context, cfg runconfig.RunConfig, hv hypervisor.Hypervisor) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// stoppedJobs ends every hypervisor backup job StartBackup opened,
	// whether the run succeeded, failed, or was interrupted: a pull-mode
	// backup job stays open until the client signals it is done reading.
	var stoppedJobs []func()
	interrupted := false
	go func() {
		select {
		case sig := <-sigs:
			log.Info("interrupt received, stopping backup", "signal", sig)
			interrupted = true
			cancel()
		case <-ctx.Done():
		}
	}()

	res, err := run(ctx, cfg, hv, &stoppedJobs)
	for _, stop := range stoppedJobs {
		stop()
	}
	if err != nil {
		log.Error("backup run failed", "error", err)
		return ExitError
	}
	if interrupted {
		return ExitError
	}
	return res.exitCode()
}

func run(ctx context.Context, cfg runconfig.RunConfig, hv hypervisor.Hypervisor, stoppedJobs *[]func()) (*runResult, error) {
	res := &runResult{strict: cfg.Strict}

	dom, err := hv.GetDomain(ctx, cfg.Domain)
	if err != nil {
		return nil, err
	}

	if cfg.KillOnly {
		return res, hv.StopBackup(ctx, dom, hypervisor.BackupJob{})
	}

	allDisks, err := hv.GetDomainDisks(ctx, dom)
	if err != nil {
		return nil, err
	}

	var disks []hypervisor.DomainDisk
	for _, d := range allDisks {
		if cfg.DiskSelected(d.Target) {
			disks = append(disks, d)
		}
	}
	if len(disks) == 0 {
		return nil, &ErrNoDisksSelected{}
	}

	resolved, err := buildSink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if resolved.close != nil {
			if err := resolved.close(); err != nil {
				log.Warn("closing output sink", "error", err)
				res.recordWarning()
			}
		}
	}()

	targetEmpty := true
	if resolved.localDir != "" {
		targetEmpty, err = targetDirEmpty(resolved.localDir)
		if err != nil {
			return nil, err
		}
	}

	mode := cfg.Mode
	if mode == checkpoint.ModeAuto && !targetEmpty && resolved.localDir != "" {
		var missing []string
		for _, d := range disks {
			if !hasBaseFile(resolved.localDir, d.Target) {
				missing = append(missing, d.Target)
			}
		}
		if len(missing) > 0 {
			return nil, &ErrNoBaseForAutoInc{Disks: missing}
		}
	}

	resolvedMode := mode
	if resolvedMode == checkpoint.ModeAuto {
		if targetEmpty {
			resolvedMode = checkpoint.ModeFull
		} else {
			resolvedMode = checkpoint.ModeInc
		}
	}

	if resolved.localDir != "" && (resolvedMode == checkpoint.ModeInc || resolvedMode == checkpoint.ModeDiff) {
		residue, err := outputsink.PartialResidue(resolved.localDir)
		if err != nil {
			return nil, err
		}
		if len(residue) > 0 {
			return nil, &ErrPartialResidue{Names: residue}
		}
	}

	stateDir := resolved.localDir
	if stateDir == "" {
		stateDir = "."
	}
	chain, err := checkpoint.Load(filepath.Join(stateDir, cfg.Domain+".cpt"), cfg.CheckpointPrefix)
	if err != nil {
		return nil, err
	}

	if !cfg.Offline {
		foreign, err := hv.HasForeignCheckpoint(ctx, dom, cfg.CheckpointPrefix)
		if err != nil {
			return nil, err
		}
		if len(foreign) > 0 {
			return nil, checkpoint.ForeignError(foreign)
		}
		if err := hv.RedefineCheckpoints(ctx, dom, chain.Names); err != nil {
			return nil, err
		}
	}

	decision, err := checkpoint.HandleCheckpoints(mode, chain, targetEmpty)
	if err != nil {
		return nil, err
	}

	// Full mode reuses "<prefix>.0" unconditionally; when a checkpoint
	// by that name already exists from a prior full backup (TruncateChain),
	// it and the chain file that tracked it must be dropped before
	// StartBackup tries to create a checkpoint with the same name, or
	// the hypervisor rejects the create as a name collision (spec §4.F).
	if decision.TruncateChain {
		if !cfg.Offline {
			if err := hv.RemoveAllCheckpoints(ctx, dom); err != nil {
				return nil, err
			}
		}
		chain.Reset()
		if err := chain.Save(); err != nil {
			return nil, err
		}
	}

	jobs := make(map[string]hypervisor.BackupJob)
	if !cfg.Offline {
		// libvirt allows only one active backup job per domain: start
		// it once, scoped to every selected disk, and let each disk
		// worker connect to the shared NBDSocket under its own export
		// name (backupengine.openDiskTransport).
		job, err := hv.StartBackup(ctx, dom, disks, decision.Name, decision.Parent)
		if err != nil {
			// Jobs already started are stopped by Run's deferred
			// stoppedJobs sweep once run returns this error.
			return nil, &ErrStartBackupFailed{Domain: cfg.Domain, Err: err}
		}
		for _, d := range disks {
			jobs[d.Target] = job
		}
		*stoppedJobs = append(*stoppedJobs, func() { hv.StopBackup(ctx, dom, job) })
	}

	if cfg.StartOnly {
		log.Info("start-only: backup job(s) started, not writing any disk data")
		return res, nil
	}

	if cfg.PrintEstimateOnly {
		printEstimates(ctx, disks, jobs, cfg, decision, resolvedMode)
		return res, nil
	}

	workerCount := cfg.Workers
	if workerCount <= 0 || workerCount > len(disks) {
		workerCount = len(disks)
	}
	if resolved.sink.SerializesWriters() {
		workerCount = 1
	}

	nowUnix := time.Now().Unix()
	var mu sync.Mutex
	var wg sync.WaitGroup

	pool, err := ants.NewPoolWithFunc(workerCount, func(arg interface{}) {
		defer wg.Done()
		idx := arg.(int)
		disk := disks[idx]
		wc := &runconfig.WorkerContext{Disk: disk, WorkerIndex: idx}
		job := jobs[disk.Target]
		if err := backupengine.BackupDisk(ctx, cfg, wc, job, decision, resolvedMode, resolved.sink, nowUnix); err != nil {
			log.Error("disk backup failed", "disk", disk.Target, "error", err)
			mu.Lock()
			res.recordFailure()
			mu.Unlock()
		}
	})
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	for i := range disks {
		wg.Add(1)
		if err := pool.Invoke(i); err != nil {
			wg.Done()
			log.Error("submit disk worker", "disk", disks[i].Target, "error", err)
			res.recordFailure()
		}
	}
	wg.Wait()

	if res.failures > 0 {
		return res, nil
	}

	if err := decision.Commit(chain); err != nil {
		return nil, err
	}

	return res, nil
}

func printEstimates(ctx context.Context, disks []hypervisor.DomainDisk, jobs map[string]hypervisor.BackupJob, cfg runconfig.RunConfig, decision checkpoint.Decision, mode checkpoint.Mode) {
	for i, d := range disks {
		wc := &runconfig.WorkerContext{Disk: d, WorkerIndex: i}
		thin, err := backupengine.EstimateDisk(ctx, cfg, wc, jobs[d.Target], decision, mode)
		if err != nil {
			log.Warn("print-estimate: query extents", "disk", d.Target, "error", err)
			continue
		}
		log.Info("print-estimate", "disk", d.Target, "thin_bytes", thin)
	}
}
