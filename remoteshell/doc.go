// Package remoteshell runs commands on a remote host over SSH. The
// orchestrator uses it only when the output path is a remote
// "host:path" spec, to upload each finished stream file to the remote
// directory; it starts no NBD server and runs no qemu-img there.
package remoteshell
