package hypervisor

import "context"

// Domain is an opaque handle to a looked-up virtual machine. Engines
// never inspect its fields; they pass it back into Hypervisor calls.
type Domain struct {
	Name string
	impl interface{}
}

// DomainDisk is one disk attached to a domain, as reported by
// GetDomainDisks.
type DomainDisk struct {
	Target string // e.g. "vda"
	Source string // backing file or block device path
	Format string // "raw", "qcow2", ...
	Device string // "disk", "cdrom", ...
}

// BackupJob is an opaque handle to a running hypervisor-side backup
// job, returned by StartBackup and consumed by StopBackup.
type BackupJob struct {
	CheckpointName string
	NBDSocket      string // unix socket path the job exposes
	impl           interface{}
}

// Hypervisor captures every method the backup and restore engines call
// against the virtualization host. All XML munging and libvirt
// specifics live behind this interface (spec §9 design note); the
// offline QMP path is driven by backupengine through package qmp.
type Hypervisor interface {
	GetDomain(ctx context.Context, name string) (Domain, error)
	GetDomainDisks(ctx context.Context, dom Domain) ([]DomainDisk, error)
	GetDomainConfig(ctx context.Context, dom Domain) ([]byte, error)

	// StartBackup opens one pull-mode backup job scoped to every disk in
	// disks: libvirt allows only one active backup job per domain, so
	// callers must start it once per run and have every disk worker
	// connect to the returned job's shared NBDSocket using its own disk
	// target as the NBD export name.
	StartBackup(ctx context.Context, dom Domain, disks []DomainDisk, checkpointName, parentCheckpoint string) (BackupJob, error)
	StopBackup(ctx context.Context, dom Domain, job BackupJob) error

	BackupCheckpoints(ctx context.Context, dom Domain) ([]string, error)
	HasForeignCheckpoint(ctx context.Context, dom Domain, prefix string) ([]string, error)
	RemoveAllCheckpoints(ctx context.Context, dom Domain) error
	RedefineCheckpoints(ctx context.Context, dom Domain, names []string) error

	DefineDomain(ctx context.Context, configXML []byte) error
	AdjustDomainConfig(ctx context.Context, configXML []byte, pathRewrites map[string]string) ([]byte, error)
	AdjustDomainConfigRemoveDisk(ctx context.Context, configXML []byte, target string) ([]byte, error)
	RefreshPool(ctx context.Context, poolName string) error
}
