package restoreengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/valvemist/vmbackup/nbdclient"
	"github.com/valvemist/vmbackup/stream"
)

type fakeTransport struct {
	written map[uint64][]byte
	zeroed  []nbdclient.StatusEntry
	size    uint64
	maxReq  uint64
}

func newFakeTransport(size uint64) *fakeTransport {
	return &fakeTransport{written: map[uint64][]byte{}, size: size, maxReq: 1 << 20}
}

func (f *fakeTransport) Pread(buf []byte, offset uint64) error { return nil }
func (f *fakeTransport) Pwrite(buf []byte, offset uint64) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.written[offset] = cp
	return nil
}
func (f *fakeTransport) Zero(length, offset uint64) error {
	f.zeroed = append(f.zeroed, nbdclient.StatusEntry{Length: uint32(length)})
	return nil
}
func (f *fakeTransport) Size() uint64                           { return f.size }
func (f *fakeTransport) MaxRequestSize() uint64                 { return f.maxReq }
func (f *fakeTransport) MetaContextNegotiated() bool            { return true }
func (f *fakeTransport) MetaContext() string                    { return "" }
func (f *fakeTransport) BlockStatus(offset, length uint64) ([]nbdclient.StatusEntry, error) {
	return nil, nil
}
func (f *fakeTransport) Disconnect() error { return nil }

func writeFullStream(t *testing.T, path string, checkpointName string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	payload := []byte("hello world")
	meta := stream.NewMetadata("vda", "raw", checkpointName, "", 1<<20, int64(len(payload)), false)
	if err := stream.WriteMetaFrame(f, meta); err != nil {
		t.Fatal(err)
	}
	sw := stream.NewWriter(f, false, 0)
	if err := sw.WriteData(0, [][]byte{payload}); err != nil {
		t.Fatal(err)
	}
	if err := sw.WriteZero(uint64(len(payload)), 100); err != nil {
		t.Fatal(err)
	}
	if err := sw.WriteStop(); err != nil {
		t.Fatal(err)
	}
}

func TestReplayFileWritesDataAndZeroFrames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vda.full.data")
	writeFullStream(t, path, "prefix.0")

	ft := newFakeTransport(1 << 20)
	if err := replayFile(ft, path, ""); err != nil {
		t.Fatalf("replayFile: %v", err)
	}

	if string(ft.written[0]) != "hello world" {
		t.Fatalf("written[0] = %q, want %q", ft.written[0], "hello world")
	}
	if len(ft.zeroed) != 1 || ft.zeroed[0].Length != 100 {
		t.Fatalf("zeroed = %v, want one entry of length 100", ft.zeroed)
	}
}

func TestReplayFileReturnsUntilCheckpointReached(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vda.full.data")
	writeFullStream(t, path, "prefix.0")

	ft := newFakeTransport(1 << 20)
	err := replayFile(ft, path, "prefix.0")
	if err == nil {
		t.Fatal("expected UntilCheckpointReached sentinel")
	}
	if _, ok := err.(*stream.UntilCheckpointReached); !ok {
		t.Fatalf("got %T, want *stream.UntilCheckpointReached", err)
	}
}

func TestReplayFileDetectsDataSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vda.full.data")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	meta := stream.NewMetadata("vda", "raw", "prefix.0", "", 1<<20, 999, false)
	if err := stream.WriteMetaFrame(f, meta); err != nil {
		t.Fatal(err)
	}
	sw := stream.NewWriter(f, false, 0)
	if err := sw.WriteData(0, [][]byte{[]byte("short")}); err != nil {
		t.Fatal(err)
	}
	if err := sw.WriteStop(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	ft := newFakeTransport(1 << 20)
	err = replayFile(ft, path, "")
	if err == nil {
		t.Fatal("expected ErrDataSizeMismatch")
	}
	if _, ok := err.(*ErrDataSizeMismatch); !ok {
		t.Fatalf("got %T, want *ErrDataSizeMismatch", err)
	}
}

func TestPwriteChunkedSplitsAtMaxRequestSize(t *testing.T) {
	ft := newFakeTransport(1 << 20)
	ft.maxReq = 4

	payload := []byte("0123456789")
	if err := pwriteChunked(ft, payload, 100); err != nil {
		t.Fatalf("pwriteChunked: %v", err)
	}

	want := map[uint64][]byte{
		100: []byte("0123"),
		104: []byte("4567"),
		108: []byte("89"),
	}
	for offset, chunk := range want {
		if string(ft.written[offset]) != string(chunk) {
			t.Fatalf("written[%d] = %q, want %q", offset, ft.written[offset], chunk)
		}
	}
}

func TestPwriteChunkedSingleWriteBelowMaxRequestSize(t *testing.T) {
	ft := newFakeTransport(1 << 20)
	ft.maxReq = 1 << 20

	if err := pwriteChunked(ft, []byte("hello"), 0); err != nil {
		t.Fatalf("pwriteChunked: %v", err)
	}
	if string(ft.written[0]) != "hello" {
		t.Fatalf("written[0] = %q, want %q", ft.written[0], "hello")
	}
}
