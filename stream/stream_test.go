package stream

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeSimpleStream(t *testing.T, path string, compressed bool) (Metadata, [][]byte) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	meta := NewMetadata("vda", "raw", "backup.0", "", 1<<20, 12288, false)
	if compressed {
		meta = meta.WithCompression("lz4", DefaultCompressionLevel)
	}
	if err := WriteMetaFrame(f, meta); err != nil {
		t.Fatalf("WriteMetaFrame: %v", err)
	}

	sw := NewWriter(f, compressed, DefaultCompressionLevel)
	chunks := [][]byte{
		bytes.Repeat([]byte{0xAB}, 4096),
		bytes.Repeat([]byte{0xCD}, 4096),
	}
	if err := sw.WriteData(256*1024, chunks); err != nil {
		t.Fatalf("WriteData: %v", err)
	}
	if err := sw.WriteZero(512*1024, 4096); err != nil {
		t.Fatalf("WriteZero: %v", err)
	}
	if err := sw.WriteStop(); err != nil {
		t.Fatalf("WriteStop: %v", err)
	}
	if err := sw.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return meta, chunks
}

func TestStreamRoundTripUncompressed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vda.full.data")
	_, chunks := writeSimpleStream(t, path, false)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	ev, err := r.Next()
	if err != nil {
		t.Fatalf("Next DATA: %v", err)
	}
	if ev.Kind != KindData || ev.Start != 256*1024 {
		t.Fatalf("unexpected DATA event: %+v", ev)
	}
	want := append(append([]byte{}, chunks[0]...), chunks[1]...)
	if !bytes.Equal(ev.Payload, want) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", len(ev.Payload), len(want))
	}

	ev, err = r.Next()
	if err != nil || ev.Kind != KindZero || ev.Start != 512*1024 || ev.Length != 4096 {
		t.Fatalf("unexpected ZERO event: %+v err=%v", ev, err)
	}

	ev, err = r.Next()
	if err != nil || ev.Kind != KindStop {
		t.Fatalf("unexpected STOP event: %+v err=%v", ev, err)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF after STOP, got %v", err)
	}
}

func TestStreamRoundTripCompressed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vda.full.data")
	_, chunks := writeSimpleStream(t, path, true)

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if !r.Metadata().Compressed {
		t.Fatal("expected Compressed metadata")
	}

	ev, err := r.Next()
	if err != nil {
		t.Fatalf("Next DATA: %v", err)
	}
	want := append(append([]byte{}, chunks[0]...), chunks[1]...)
	if !bytes.Equal(ev.Payload, want) {
		t.Fatalf("decompressed payload mismatch: got %d bytes, want %d", len(ev.Payload), len(want))
	}
}

func TestStreamMissingStopIsTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "truncated.data")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	meta := NewMetadata("vda", "raw", "backup.0", "", 1<<20, 0, false)
	if err := WriteMetaFrame(f, meta); err != nil {
		t.Fatalf("WriteMetaFrame: %v", err)
	}
	f.Close()

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if _, err := r.Next(); err == nil {
		t.Fatal("expected truncation error, got nil")
	}
}

func TestLoadMetadataRequiresDiskName(t *testing.T) {
	if _, err := LoadMetadata([]byte(`{"date":"2026-01-01T00:00:00Z"}`)); err == nil {
		t.Fatal("expected error for missing diskName")
	}
}

func TestCompressionTrailerFidelity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vda.full.data")
	writeSimpleStream(t, path, true)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	trailer, err := ReadCompressionTrailer(f)
	if err != nil {
		t.Fatalf("ReadCompressionTrailer: %v", err)
	}
	if len(trailer) != 1 {
		t.Fatalf("expected one trailer entry, got %d", len(trailer))
	}
	if len(trailer[0].Chunks) != 2 {
		t.Fatalf("expected two chunk sizes, got %d", len(trailer[0].Chunks))
	}
}
