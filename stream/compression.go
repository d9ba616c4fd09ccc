package stream

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

// ChunkSizes describes the on-wire size(s) of one DATA frame's payload.
// Plain holds the compressed byte length when the extent was not split.
// Chunks holds the compressed length of each sub-chunk, in order, when
// the extent was split because it exceeded the transport's
// MaxRequestSize; the sum of Chunks need not equal Plain and the two
// fields are mutually exclusive.
type ChunkSizes struct {
	Plain  int64   `json:"plain,omitempty"`
	Chunks []int64 `json:"uncompressedLen,omitempty"`
}

// CompressionTrailer is the JSON sequence appended after the STOP frame
// when metadata.Compressed is true: one ChunkSizes entry per DATA frame,
// in the order those frames were written.
type CompressionTrailer []ChunkSizes

// WriteCompressionTrailer appends the JSON trailer. Per invariant,
// callers must invoke this exactly once, and only after the STOP frame
// has already been written.
func WriteCompressionTrailer(w io.Writer, sizes CompressionTrailer) error {
	b, err := json.Marshal(sizes)
	if err != nil {
		return errors.Wrap(err, "encode compression trailer")
	}
	_, err = w.Write(b)
	return errors.Wrap(err, "write compression trailer")
}

// ReadCompressionTrailer seeks from the end of f to locate and parse
// the trailer appended after the STOP frame.
func ReadCompressionTrailer(f *os.File) (CompressionTrailer, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat stream file")
	}

	// The trailer is a JSON array; read from the end in growing windows
	// until it parses, rather than assuming a fixed maximum size.
	const initialWindow = 4096
	size := info.Size()
	window := int64(initialWindow)
	for {
		if window > size {
			window = size
		}
		buf := make([]byte, window)
		if _, err := f.ReadAt(buf, size-window); err != nil && err != io.EOF {
			return nil, errors.Wrap(err, "read compression trailer")
		}
		start := findTrailerStart(buf)
		if start >= 0 {
			var trailer CompressionTrailer
			if err := json.Unmarshal(buf[start:], &trailer); err == nil {
				return trailer, nil
			}
		}
		if window == size {
			return nil, formatErr("compression trailer not found in %d bytes", size)
		}
		window *= 2
	}
}

// findTrailerStart returns the index of the first '[' that begins a
// balanced JSON array running to the end of buf, or -1.
func findTrailerStart(buf []byte) int {
	for i := range buf {
		if buf[i] != '[' {
			continue
		}
		if json.Valid(buf[i:]) {
			return i
		}
	}
	return -1
}
