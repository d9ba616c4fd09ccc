package stream

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// DefaultCompressionLevel is used when compression is requested but no
// explicit level was given (spec: compress level defaults to 2).
const DefaultCompressionLevel = 2

// Writer sequentially emits frames into an underlying io.Writer,
// tracking the compression trailer as it goes.
type Writer struct {
	w          io.Writer
	compressed bool
	level      int
	trailer    CompressionTrailer
}

// NewWriter returns a Writer. If compressed is false, level is ignored.
func NewWriter(w io.Writer, compressed bool, level int) *Writer {
	if compressed && level <= 0 {
		level = DefaultCompressionLevel
	}
	return &Writer{w: w, compressed: compressed, level: level}
}

// WriteData emits one DATA frame. chunks holds the sub-chunks of the
// extent in order; a single-element slice means the extent was not
// split. Every sub-chunk is optionally lz4-compressed and the results
// are written back-to-back as the frame's payload.
func (sw *Writer) WriteData(start uint64, chunks [][]byte) error {
	if len(chunks) == 0 {
		return errors.New("WriteData: no chunks")
	}

	var payload []byte
	var cs ChunkSizes

	if sw.compressed {
		for _, c := range chunks {
			compressed, err := compressChunk(c, sw.level)
			if err != nil {
				return err
			}
			payload = append(payload, compressed...)
			cs.Chunks = append(cs.Chunks, int64(len(compressed)))
		}
		if len(chunks) == 1 {
			cs.Plain = cs.Chunks[0]
			cs.Chunks = nil
		}
	} else {
		for _, c := range chunks {
			payload = append(payload, c...)
		}
	}

	if err := WriteFrame(sw.w, KindData, start, uint64(len(payload))); err != nil {
		return err
	}
	if _, err := sw.w.Write(payload); err != nil {
		return errors.Wrap(err, "write DATA payload")
	}
	if err := WriteTerm(sw.w); err != nil {
		return err
	}

	if sw.compressed {
		sw.trailer = append(sw.trailer, cs)
	}
	return nil
}

// WriteZero emits a ZERO frame for a hole region: header only, no
// payload, no TERM.
func (sw *Writer) WriteZero(start, length uint64) error {
	return WriteFrame(sw.w, KindZero, start, length)
}

// WriteStop emits the terminal STOP frame.
func (sw *Writer) WriteStop() error {
	return WriteFrame(sw.w, KindStop, 0, 0)
}

// Finish writes the compression trailer if compression was requested.
// It must be called exactly once, after WriteStop.
func (sw *Writer) Finish() error {
	if !sw.compressed {
		return nil
	}
	return WriteCompressionTrailer(sw.w, sw.trailer)
}

func compressChunk(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if err := zw.Apply(lz4.CompressionLevelOption(lz4Level(level))); err != nil {
		return nil, errors.Wrap(err, "apply lz4 compression level")
	}
	if _, err := zw.Write(data); err != nil {
		return nil, errors.Wrap(err, "lz4 compress")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "lz4 compress close")
	}
	return buf.Bytes(), nil
}

func decompressChunk(data []byte) ([]byte, error) {
	zr := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(zr)
	return out, errors.Wrap(err, "lz4 decompress")
}

// lz4Level maps the stream container's plain integer compression level
// (0-9, as surfaced on the CLI) onto the library's named levels.
func lz4Level(level int) lz4.CompressionLevel {
	switch {
	case level <= 0:
		return lz4.Fast
	case level >= 9:
		return lz4.Level9
	default:
		levels := []lz4.CompressionLevel{
			lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
			lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
		}
		return levels[level-1]
	}
}
