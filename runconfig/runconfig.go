package runconfig

import (
	"io"

	"github.com/valvemist/vmbackup/checkpoint"
	"github.com/valvemist/vmbackup/extent"
	"github.com/valvemist/vmbackup/hypervisor"
	"github.com/valvemist/vmbackup/nbdclient"
)

// RunConfig is built once by the CLI from flags and never mutated
// afterward; every package downstream receives it by value or pointer
// but never writes through it.
type RunConfig struct {
	Domain string
	Mode   checkpoint.Mode

	// Output is a local directory path, "-" for a single zip archive on
	// stdout, or "host:path" for a remote directory reached over SSH.
	Output string

	CheckpointPrefix string

	IncludeDisks []string
	ExcludeDisks []string

	Workers int

	Compress       bool
	CompressLevel  int
	CompressMethod string

	Strict bool

	Offline        bool
	BasePort       int // first TCP port for offline-remote NBD servers
	RawPassthrough bool

	// RemoteUser/RemoteKeyPath/RemotePort parameterize the SSH
	// connection used when Output is a "host:path" spec. RemotePort
	// defaults to 22 when zero.
	RemoteUser    string
	RemoteKeyPath string
	RemotePort    int

	// Debug/dry-run switches, named in the CLI surface.
	StartOnly         bool
	KillOnly          bool
	PrintEstimateOnly bool
}

// DiskSelected reports whether target passes the include/exclude
// filters. An empty IncludeDisks means "all disks"; ExcludeDisks always
// wins over IncludeDisks.
func (c RunConfig) DiskSelected(target string) bool {
	for _, x := range c.ExcludeDisks {
		if x == target {
			return false
		}
	}
	if len(c.IncludeDisks) == 0 {
		return true
	}
	for _, inc := range c.IncludeDisks {
		if inc == target {
			return true
		}
	}
	return false
}

// WorkerContext is the mutable state of one disk's backup worker:
// everything the backup engine needs that must not be shared across
// goroutines. Callers construct one per disk and never reuse it.
type WorkerContext struct {
	Disk        hypervisor.DomainDisk
	WorkerIndex int

	Transport nbdclient.Transport
	Writer    io.WriteCloser

	Extents []extent.Extent

	BytesRead      int64
	ThinBackupSize int64
}
