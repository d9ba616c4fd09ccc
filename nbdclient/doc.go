// Package nbdclient wraps libguestfs.org/libnbd into the narrow
// Transport interface the backup and restore engines depend on:
// positioned reads/writes honoring a negotiated maximum request size,
// size discovery, and block-status extent queries over a named
// metadata context (typically a qemu dirty-bitmap context).
//
// Transport is deliberately small so tests can substitute an in-memory
// fake; see extent.Handler for the component that turns BlockStatus
// results into the Extent sequence the backup engine consumes.
package nbdclient
