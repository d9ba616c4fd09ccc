// Package runconfig holds the immutable run-wide configuration built
// once by the CLI from flags, and the per-disk mutable state threaded
// explicitly through the backup engine's call chain. Neither type is a
// package-level singleton (spec §9 design note): both are passed as
// ordinary arguments.
package runconfig
