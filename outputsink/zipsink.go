package outputsink

import (
	"archive/zip"
	"io"
	"sync"
)

// ZipSink writes every stream file as one member of a single zip
// archive. archive/zip.Writer requires each member to be fully written
// before the next is created, so ZipSink serializes all writers behind
// one mutex; the orchestrator forces worker=1 whenever this sink is
// selected (SerializesWriters reports that requirement).
type ZipSink struct {
	zw *zip.Writer
	mu sync.Mutex
}

// NewZipSink wraps w as a zip archive destination.
func NewZipSink(w io.Writer) *ZipSink {
	return &ZipSink{zw: zip.NewWriter(w)}
}

// Create opens the named zip member. The returned writer must be
// Closed before the next Create call can proceed; it holds the
// ZipSink's lock until then.
func (s *ZipSink) Create(name string) (io.WriteCloser, error) {
	s.mu.Lock()
	w, err := s.zw.Create(name)
	if err != nil {
		s.mu.Unlock()
		return nil, outputErr("create zip member "+name, err)
	}
	return &zipMember{w: w, unlock: s.mu.Unlock}, nil
}

// Finalize is a no-op: the member was already closed under its final
// name by the single writer: a zip archive has no staging rename.
func (s *ZipSink) Finalize(name string) error { return nil }

func (s *ZipSink) SerializesWriters() bool { return true }

// Close finishes the archive's central directory. Callers must call
// this exactly once, after every disk worker has finished.
func (s *ZipSink) Close() error {
	return outputErr("close zip archive", s.zw.Close())
}

type zipMember struct {
	w      io.Writer
	unlock func()
	closed bool
}

func (m *zipMember) Write(p []byte) (int, error) { return m.w.Write(p) }

func (m *zipMember) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	m.unlock()
	return nil
}
