package backupengine

import (
	"testing"

	"github.com/valvemist/vmbackup/checkpoint"
	"github.com/valvemist/vmbackup/extent"
	"github.com/valvemist/vmbackup/nbdclient"
)

type fakeTransport struct {
	data           []byte
	size           uint64
	maxReq         uint64
	metaNegotiated bool
	metaContext    string
	statusEntries  []nbdclient.StatusEntry
}

func (f *fakeTransport) Pread(buf []byte, offset uint64) error {
	copy(buf, f.data[offset:offset+uint64(len(buf))])
	return nil
}
func (f *fakeTransport) Pwrite(buf []byte, offset uint64) error { return nil }
func (f *fakeTransport) Zero(length, offset uint64) error       { return nil }
func (f *fakeTransport) Size() uint64                           { return f.size }
func (f *fakeTransport) MaxRequestSize() uint64                 { return f.maxReq }
func (f *fakeTransport) MetaContextNegotiated() bool            { return f.metaNegotiated }
func (f *fakeTransport) MetaContext() string                    { return f.metaContext }
func (f *fakeTransport) BlockStatus(offset, length uint64) ([]nbdclient.StatusEntry, error) {
	return f.statusEntries, nil
}
func (f *fakeTransport) Disconnect() error { return nil }

func TestQueryExtentsTreatsUnavailableContextAsNilWarning(t *testing.T) {
	ft := &fakeTransport{size: 1 << 20, maxReq: 1 << 20, metaNegotiated: false}
	extents, err := queryExtents(ft, ft.size)
	if err != nil {
		t.Fatalf("queryExtents: %v", err)
	}
	if extents != nil {
		t.Fatalf("expected nil extents when meta context unavailable, got %v", extents)
	}
}

func TestReadChunksSplitsAtMaxRequestSize(t *testing.T) {
	data := make([]byte, 10)
	for i := range data {
		data[i] = byte(i)
	}
	ft := &fakeTransport{data: data, size: uint64(len(data)), maxReq: 4}

	chunks, err := readChunks(ft, extent.Extent{Offset: 0, Length: 10, Data: true}, 4)
	if err != nil {
		t.Fatalf("readChunks: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	lens := []int{len(chunks[0]), len(chunks[1]), len(chunks[2])}
	if lens[0] != 4 || lens[1] != 4 || lens[2] != 2 {
		t.Fatalf("chunk lengths = %v, want [4 4 2]", lens)
	}
}

func TestReadChunksSingleChunkBelowMaxRequestSize(t *testing.T) {
	data := []byte("hello")
	ft := &fakeTransport{data: data, size: uint64(len(data)), maxReq: 1 << 20}

	chunks, err := readChunks(ft, extent.Extent{Offset: 0, Length: uint64(len(data)), Data: true}, ft.maxReq)
	if err != nil {
		t.Fatalf("readChunks: %v", err)
	}
	if len(chunks) != 1 || string(chunks[0]) != "hello" {
		t.Fatalf("chunks = %v, want single [hello]", chunks)
	}
}

func TestStreamFileNameGrammar(t *testing.T) {
	cases := []struct {
		mode checkpoint.Mode
		cpt  string
		want string
	}{
		{checkpoint.ModeFull, "prefix.0", "vda.full.data"},
		{checkpoint.ModeCopy, "", "vda.copy.data"},
		{checkpoint.ModeInc, "prefix.1", "vda.inc.prefix.1.data"},
	}
	for _, tc := range cases {
		got := StreamFileName("vda", tc.mode, tc.cpt, 1700000000)
		if got != tc.want {
			t.Errorf("StreamFileName(%s) = %q, want %q", tc.mode, got, tc.want)
		}
	}

	diffName := StreamFileName("vda", checkpoint.ModeDiff, "prefix.1", 1700000000)
	if diffName != "vda.diff.1700000000.data" {
		t.Errorf("diff name = %q, want vda.diff.1700000000.data", diffName)
	}
}
