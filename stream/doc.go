// Package stream implements the sparse backup stream container: a
// disk-image-independent, self-describing framing format that records
// only the allocated or dirty regions of a source disk across a chain
// of full, incremental, and differential backups.
//
// A stream file is a sequence of frames:
//
//	[META frame][metadata JSON][TERM]
//	([DATA frame][payload][TERM] | [ZERO frame])*
//	[STOP frame]
//	[compression trailer JSON]?   ; present iff metadata.Compressed
//
// Frame headers and the TERM marker are byte-exact; any implementation
// writing or reading these files must agree on the layout in frame.go.
//
// For the engines that drive this package, see backupengine and
// restoreengine.
package stream
