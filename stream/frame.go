package stream

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Kind tags one frame of the sparse stream container.
type Kind byte

const (
	KindMeta Kind = 'M'
	KindData Kind = 'D'
	KindZero Kind = 'Z'
	KindStop Kind = 'S'
)

func (k Kind) String() string {
	switch k {
	case KindMeta:
		return "META"
	case KindData:
		return "DATA"
	case KindZero:
		return "ZERO"
	case KindStop:
		return "STOP"
	default:
		return fmt.Sprintf("UNKNOWN(%q)", byte(k))
	}
}

// TERM follows every DATA and META payload. Its absence is a fatal
// format error (spec invariant: TERM required after DATA/META).
var TERM = []byte("\x00TERM\x00\n")

// headerWidth is the fixed on-wire width of a frame header: one kind
// byte, a space, a 20-digit zero-padded start, a space, a 20-digit
// zero-padded length, and a newline.
const headerWidth = 1 + 1 + 20 + 1 + 20 + 1

// StreamFormatError reports a malformed frame or missing TERM marker.
// It is fatal to the current disk; other disks may continue.
type StreamFormatError struct {
	Msg string
}

func (e *StreamFormatError) Error() string { return "stream format error: " + e.Msg }

func formatErr(format string, args ...interface{}) error {
	return &StreamFormatError{Msg: fmt.Sprintf(format, args...)}
}

// WriteFrame emits a frame header. For DATA and META frames, the
// caller is responsible for writing length bytes of payload followed
// by TERM immediately afterward.
func WriteFrame(w io.Writer, kind Kind, start, length uint64) error {
	header := fmt.Sprintf("%c %020d %020d\n", byte(kind), start, length)
	if len(header) != headerWidth {
		return formatErr("internal: header %q has width %d, want %d", header, len(header), headerWidth)
	}
	_, err := io.WriteString(w, header)
	return errors.Wrap(err, "write frame header")
}

// WriteTerm writes the TERM marker that must follow a DATA or META payload.
func WriteTerm(w io.Writer) error {
	_, err := w.Write(TERM)
	return errors.Wrap(err, "write TERM")
}

// ReadFrame parses one frame header from r. It returns io.EOF only when
// zero bytes were read before the header would otherwise have started
// (i.e. a clean end of stream rather than a truncated header).
func ReadFrame(r *bufio.Reader) (kind Kind, start, length uint64, err error) {
	buf := make([]byte, headerWidth)
	n, readErr := io.ReadFull(r, buf)
	if readErr == io.EOF && n == 0 {
		return 0, 0, 0, io.EOF
	}
	if readErr != nil {
		return 0, 0, 0, formatErr("truncated frame header: %v", readErr)
	}

	if buf[1] != ' ' || buf[22] != ' ' || buf[headerWidth-1] != '\n' {
		return 0, 0, 0, formatErr("malformed frame header %q", string(buf))
	}

	kind = Kind(buf[0])
	switch kind {
	case KindMeta, KindData, KindZero, KindStop:
	default:
		return 0, 0, 0, formatErr("unknown frame kind %q", string(buf[0]))
	}

	if _, err = fmt.Sscanf(string(buf[2:22]), "%020d", &start); err != nil {
		return 0, 0, 0, formatErr("malformed start field %q: %v", string(buf[2:22]), err)
	}
	if _, err = fmt.Sscanf(string(buf[23:43]), "%020d", &length); err != nil {
		return 0, 0, 0, formatErr("malformed length field %q: %v", string(buf[23:43]), err)
	}
	return kind, start, length, nil
}

// ReadTerm consumes and validates the TERM marker following a DATA or
// META payload.
func ReadTerm(r *bufio.Reader) error {
	buf := make([]byte, len(TERM))
	if _, err := io.ReadFull(r, buf); err != nil {
		return formatErr("missing TERM marker: %v", err)
	}
	for i := range buf {
		if buf[i] != TERM[i] {
			return formatErr("corrupt TERM marker %q", string(buf))
		}
	}
	return nil
}
