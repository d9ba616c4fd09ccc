// Package orchestrator is the top-level control flow of a backup run:
// mode resolution, checkpoint lifecycle, the concurrent disk worker
// pool, and signal handling. It is the only package that owns the
// checkpoint chain file and the only one that decides the process
// exit code.
package orchestrator
