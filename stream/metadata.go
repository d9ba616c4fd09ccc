package stream

import (
	"bufio"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
)

// Metadata is the META-frame payload, written once at the head of
// every stream file and immutable after write.
type Metadata struct {
	VirtualSize       int64  `json:"virtualSize"`
	DataSize          int64  `json:"dataSize"`
	DiskName          string `json:"diskName"`
	DiskFormat        string `json:"diskFormat"`
	CheckpointName    string `json:"checkpointName"`
	ParentCheckpoint  string `json:"parentCheckpoint"`
	StreamVersion     int    `json:"streamVersion"`
	Incremental       bool   `json:"incremental"`
	Compressed        bool   `json:"compressed"`
	CompressionMethod string `json:"compressionMethod,omitempty"`
	CompressionLevel  int    `json:"compressionLevel,omitempty"`
	Date              string `json:"date"`
}

// CurrentStreamVersion is stamped into every metadata record written by
// this implementation.
const CurrentStreamVersion = 1

// NewMetadata builds a Metadata record for one disk at the current time.
func NewMetadata(diskName, diskFormat, checkpointName, parentCheckpoint string, virtualSize, dataSize int64, incremental bool) Metadata {
	return Metadata{
		VirtualSize:      virtualSize,
		DataSize:         dataSize,
		DiskName:         diskName,
		DiskFormat:       diskFormat,
		CheckpointName:   checkpointName,
		ParentCheckpoint: parentCheckpoint,
		StreamVersion:    CurrentStreamVersion,
		Incremental:      incremental,
		Date:             time.Now().UTC().Format(time.RFC3339),
	}
}

// WithCompression returns a copy of m describing compressed DATA payloads.
func (m Metadata) WithCompression(method string, level int) Metadata {
	m.Compressed = true
	m.CompressionMethod = method
	m.CompressionLevel = level
	return m
}

// EncodeMetadata serializes a Metadata record to canonical JSON. The
// caller (the backup engine) then emits a META frame whose length
// equals the returned byte count, per the on-wire contract in frame.go.
func EncodeMetadata(m Metadata) ([]byte, error) {
	if m.DiskName == "" {
		return nil, errors.New("encode metadata: diskName is required")
	}
	b, err := json.Marshal(m)
	return b, errors.Wrap(err, "encode metadata")
}

// LoadMetadata parses a META payload back into a Metadata record.
// Unknown keys are ignored; required keys missing from the payload are
// reported as a StreamFormatError.
func LoadMetadata(raw []byte) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, formatErr("malformed metadata JSON: %v", err)
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return Metadata{}, formatErr("malformed metadata JSON: %v", err)
	}
	for _, k := range []string{"virtualSize", "dataSize", "diskName", "diskFormat", "checkpointName", "parentCheckpoint", "streamVersion", "incremental", "compressed", "date"} {
		if _, ok := keys[k]; !ok {
			return Metadata{}, formatErr("metadata missing required key %s", k)
		}
	}
	if m.DiskName == "" {
		return Metadata{}, formatErr("metadata missing required key diskName")
	}
	if m.Date == "" {
		return Metadata{}, formatErr("metadata missing required key date")
	}
	return m, nil
}

// WriteMetaFrame writes the META frame (header, JSON payload, TERM)
// that must be the first frame of every stream file.
func WriteMetaFrame(w io.Writer, m Metadata) error {
	payload, err := EncodeMetadata(m)
	if err != nil {
		return err
	}
	if err := WriteFrame(w, KindMeta, 0, uint64(len(payload))); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, "write metadata payload")
	}
	return WriteTerm(w)
}

// ReadMetaFrame reads and validates the leading META frame of a stream
// file. Per invariant S1, it must be present at offset 0.
func ReadMetaFrame(r *bufio.Reader) (Metadata, error) {
	kind, start, length, err := ReadFrame(r)
	if err != nil {
		return Metadata{}, err
	}
	if kind != KindMeta {
		return Metadata{}, formatErr("expected META frame at offset 0, got %s", kind)
	}
	if start != 0 {
		return Metadata{}, formatErr("META frame start must be 0, got %d", start)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Metadata{}, formatErr("truncated metadata payload: %v", err)
	}
	if err := ReadTerm(r); err != nil {
		return Metadata{}, err
	}
	return LoadMetadata(payload)
}
