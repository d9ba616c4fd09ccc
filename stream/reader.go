package stream

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
)

// UntilCheckpointReached is a non-error sentinel used to halt chain
// replay cleanly once the requested checkpoint has been restored.
type UntilCheckpointReached struct {
	Checkpoint string
}

func (e *UntilCheckpointReached) Error() string {
	return "reached requested checkpoint " + e.Checkpoint
}

// Event is one decoded frame, handed to the restore engine by Reader.Next.
// For DATA frames, Payload holds the fully decompressed, concatenated
// bytes of the region starting at Start; for ZERO and STOP frames
// Payload is nil.
type Event struct {
	Kind    Kind
	Start   uint64
	Length  uint64
	Payload []byte
}

// Reader sequentially decodes one stream file, including the
// compression-trailer bookkeeping for chunked DATA frames; the trailer
// is loaded by Open, not on first use.
type Reader struct {
	f          *os.File
	br         *bufio.Reader
	meta       Metadata
	trailer    CompressionTrailer
	trailerIdx int
	done       bool
}

// Open opens path, reads and validates the leading META frame, and —
// when the metadata declares compression — loads the trailer eagerly so
// DATA frames can be split and decompressed as they are read.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open stream file")
	}

	r := &Reader{f: f, br: bufio.NewReader(f)}
	r.meta, err = ReadMetaFrame(r.br)
	if err != nil {
		f.Close()
		return nil, err
	}

	if r.meta.Compressed {
		trailer, err := ReadCompressionTrailer(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		r.trailer = trailer
	}

	return r, nil
}

// Metadata returns the stream file's META payload.
func (r *Reader) Metadata() Metadata { return r.meta }

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.f.Close() }

// Next decodes the next frame. It returns io.EOF if STOP was already
// consumed and no frame follows (the stream ended cleanly), or a
// StreamFormatError if the file is truncated before STOP (invariant S3:
// absence of STOP means truncation).
func (r *Reader) Next() (Event, error) {
	if r.done {
		return Event{}, io.EOF
	}

	kind, start, length, err := ReadFrame(r.br)
	if err == io.EOF {
		return Event{}, formatErr("truncated stream: missing STOP frame")
	}
	if err != nil {
		return Event{}, err
	}

	switch kind {
	case KindZero:
		return Event{Kind: kind, Start: start, Length: length}, nil

	case KindStop:
		r.done = true
		return Event{Kind: kind}, nil

	case KindData:
		raw := make([]byte, length)
		if _, err := io.ReadFull(r.br, raw); err != nil {
			return Event{}, formatErr("truncated DATA payload: %v", err)
		}
		if err := ReadTerm(r.br); err != nil {
			return Event{}, err
		}
		payload, err := r.decodeData(raw)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: kind, Start: start, Length: uint64(len(payload)), Payload: payload}, nil

	case KindMeta:
		return Event{}, formatErr("unexpected META frame after offset 0")

	default:
		return Event{}, formatErr("unknown frame kind %s", kind)
	}
}

// decodeData reverses the chunking and/or compression a DATA frame's
// payload was subjected to at write time, using the next compression
// trailer entry when the stream is compressed.
func (r *Reader) decodeData(raw []byte) ([]byte, error) {
	if !r.meta.Compressed {
		return raw, nil
	}
	if r.trailerIdx >= len(r.trailer) {
		return nil, formatErr("compression trailer exhausted at DATA frame %d", r.trailerIdx)
	}
	cs := r.trailer[r.trailerIdx]
	r.trailerIdx++

	if len(cs.Chunks) == 0 {
		return decompressChunk(raw)
	}

	var out []byte
	var offset int64
	for i, chunkLen := range cs.Chunks {
		if offset+chunkLen > int64(len(raw)) {
			return nil, formatErr("compression trailer chunk %d exceeds DATA payload length", i)
		}
		decoded, err := decompressChunk(raw[offset : offset+chunkLen])
		if err != nil {
			return nil, err
		}
		out = append(out, decoded...)
		offset += chunkLen
	}
	return out, nil
}
