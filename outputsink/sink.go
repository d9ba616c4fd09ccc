package outputsink

import (
	"fmt"
	"io"
)

// Sink is the abstract destination for one backup run's stream files.
// The backup engine never opens files directly; it asks a Sink for a
// writer by final name and lets the Sink decide how partial writes are
// staged and finalized.
type Sink interface {
	// Create opens a writer for the stream file that will eventually be
	// known as name. Implementations may stage the write under a
	// different on-disk name (DirSink uses a ".partial" suffix).
	Create(name string) (io.WriteCloser, error)

	// Finalize is called after a successful write to make name visible
	// under its final name. DirSink performs an atomic rename; ZipSink
	// is a no-op, since its member was already closed under its final
	// name by the single writer.
	Finalize(name string) error

	// SerializesWriters reports whether this sink requires all writes to
	// be serialized through a single writer (true for ZipSink), which
	// the orchestrator uses to force worker=1.
	SerializesWriters() bool
}

// OutputError reports a sink-level file or archive write failure. It is
// fatal to the current disk.
type OutputError struct {
	Op  string
	Err error
}

func (e *OutputError) Error() string { return fmt.Sprintf("output sink: %s: %v", e.Op, e.Err) }
func (e *OutputError) Unwrap() error { return e.Err }

func outputErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OutputError{Op: op, Err: err}
}
