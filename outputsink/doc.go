// Package outputsink abstracts where backup stream files are written:
// a plain directory (one file per disk, atomically renamed from a
// .partial suffix on success) or a single zip archive (one writer,
// workers serialized behind it). The backup engine interacts only
// through the Sink interface.
package outputsink
