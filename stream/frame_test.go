package stream

import (
	"bufio"
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, KindData, 4096, 8192); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	kind, start, length, err := ReadFrame(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if kind != KindData || start != 4096 || length != 8192 {
		t.Fatalf("got kind=%s start=%d length=%d", kind, start, length)
	}
}

func TestReadFrameMalformed(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte("not a valid header at all!!")))
	if _, _, _, err := ReadFrame(r); err == nil {
		t.Fatal("expected error for malformed header")
	}
}

func TestReadFrameCleanEOF(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader(nil))
	_, _, _, err := ReadFrame(r)
	if err == nil {
		t.Fatal("expected io.EOF")
	}
}

func TestTermRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTerm(&buf); err != nil {
		t.Fatalf("WriteTerm: %v", err)
	}
	if err := ReadTerm(bufio.NewReader(&buf)); err != nil {
		t.Fatalf("ReadTerm: %v", err)
	}
}

func TestReadTermCorrupt(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte("garbage1")))
	if err := ReadTerm(r); err == nil {
		t.Fatal("expected error for corrupt TERM")
	}
}
