package nbdclient

import (
	"fmt"

	"libguestfs.org/libnbd"
)

// ConnectSpec parameterizes the connection factory: either a Unix
// socket path (offline/local qemu-storage-daemon) or a TCP host/port,
// optionally over TLS (offline/remote qemu-storage-daemon).
type ConnectSpec struct {
	UnixSocket string

	Host string
	Port int
	TLS  bool

	// ExportName selects the NBD export; empty means the server default.
	ExportName string

	// MetaContext, when non-empty, is negotiated at connect time (e.g.
	// "qemu:dirty-bitmap:backup-vda" or "base:allocation").
	MetaContext string
}

func (s ConnectSpec) String() string {
	if s.UnixSocket != "" {
		return "unix:" + s.UnixSocket
	}
	return fmt.Sprintf("tcp:%s:%d(tls=%v)", s.Host, s.Port, s.TLS)
}

// Transport is the narrow NBD client surface the backup and restore
// engines depend on.
type Transport interface {
	Pread(buf []byte, offset uint64) error
	Pwrite(buf []byte, offset uint64) error
	Zero(length uint64, offset uint64) error
	Size() uint64
	MaxRequestSize() uint64
	MetaContextNegotiated() bool
	MetaContext() string
	BlockStatus(offset, length uint64) ([]StatusEntry, error)
	Disconnect() error
}

// StatusEntry is one (length, flags) pair as returned by a block-status
// query, before merging into Extents by the extent package.
type StatusEntry struct {
	Length uint32
	Flags  uint32
}

// Flag bits as defined by the NBD protocol's base:allocation context
// (StateHole, StateZero) and qemu's qemu:dirty-bitmap:* context
// (StateDirty). Both contexts use bit 0, but with inverted meaning:
// base:allocation's bit 0 is "hole" (1 = not allocated), while
// qemu:dirty-bitmap's bit 0 is "dirty" (1 = changed since the bitmap
// was created). Callers must pick the right constant based on
// MetaContext, never assume StateHole's polarity applies universally.
const (
	StateHole  uint32 = 1 << 0
	StateZero  uint32 = 1 << 1
	StateDirty uint32 = 1 << 0
)

// defaultMaxRequestSize is used when the server does not advertise a
// smaller limit; qemu-nbd's own default block-status/read/write cap.
const defaultMaxRequestSize = 32 << 20

type libnbdTransport struct {
	h               *libnbd.Libnbd
	size            uint64
	maxRequestSize  uint64
	metaNegotiated  bool
	metaContextName string
}

// Dial connects to an NBD endpoint described by spec and returns a
// ready-to-use Transport. The caller must call Disconnect when done.
func Dial(spec ConnectSpec) (Transport, error) {
	h, err := libnbd.Create()
	if err != nil {
		return nil, transportErr("create handle", err)
	}

	t := &libnbdTransport{h: h, maxRequestSize: defaultMaxRequestSize, metaContextName: spec.MetaContext}

	if spec.ExportName != "" {
		if err := h.SetExportName(spec.ExportName); err != nil {
			h.Close()
			return nil, transportErr("set export name", err)
		}
	}

	if spec.MetaContext != "" {
		if err := h.AddMetaContext(spec.MetaContext); err == nil {
			t.metaNegotiated = true
		}
	}

	if spec.UnixSocket != "" {
		err = h.ConnectUnix(spec.UnixSocket)
	} else {
		err = h.ConnectTcp(spec.Host, fmt.Sprintf("%d", spec.Port))
	}
	if err != nil {
		h.Close()
		return nil, transportErr(fmt.Sprintf("connect %s", spec), err)
	}

	size, err := h.GetSize()
	if err != nil {
		h.Close()
		return nil, transportErr("get size", err)
	}
	t.size = size

	if spec.MetaContext != "" {
		if ok, err := h.CanMetaContext(spec.MetaContext); err == nil && ok {
			t.metaNegotiated = true
		}
	}

	if max, err := h.GetBlockSize(); err == nil && max > 0 {
		t.maxRequestSize = max
	}

	return t, nil
}

func (t *libnbdTransport) Size() uint64           { return t.size }
func (t *libnbdTransport) MaxRequestSize() uint64 { return t.maxRequestSize }
func (t *libnbdTransport) MetaContextNegotiated() bool { return t.metaNegotiated }
func (t *libnbdTransport) MetaContext() string         { return t.metaContextName }

func (t *libnbdTransport) Pread(buf []byte, offset uint64) error {
	if uint64(len(buf)) > t.maxRequestSize {
		return &ErrRequestTooLarge{Requested: uint64(len(buf)), Max: t.maxRequestSize}
	}
	return transportErr("pread", t.h.Pread(buf, offset, nil))
}

func (t *libnbdTransport) Pwrite(buf []byte, offset uint64) error {
	if uint64(len(buf)) > t.maxRequestSize {
		return &ErrRequestTooLarge{Requested: uint64(len(buf)), Max: t.maxRequestSize}
	}
	return transportErr("pwrite", t.h.Pwrite(buf, offset, nil))
}

func (t *libnbdTransport) Zero(length, offset uint64) error {
	return transportErr("zero", t.h.Zero(length, offset, nil))
}

func (t *libnbdTransport) BlockStatus(offset, length uint64) ([]StatusEntry, error) {
	if !t.metaNegotiated {
		return nil, &ErrMetaContextUnavailable{Context: t.metaContextName}
	}

	var entries []StatusEntry
	cb := func(metaContext string, off uint64, pairs []uint32, err *int) int {
		if metaContext != t.metaContextName {
			return 0
		}
		for i := 0; i+1 < len(pairs); i += 2 {
			entries = append(entries, StatusEntry{Length: pairs[i], Flags: pairs[i+1]})
		}
		return 0
	}

	if err := t.h.BlockStatus(length, offset, cb, nil); err != nil {
		return nil, transportErr("block status", err)
	}
	return entries, nil
}

func (t *libnbdTransport) Disconnect() error {
	t.h.Shutdown(nil)
	t.h.Close()
	return nil
}
