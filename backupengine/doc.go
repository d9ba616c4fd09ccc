// Package backupengine implements the per-disk backup pipeline: decide
// the stream type and metadata context, connect to the disk's NBD
// export, enumerate extents, and write a framed sparse stream (or a raw
// passthrough copy) to the selected output sink.
package backupengine
