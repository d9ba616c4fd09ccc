// Package qmp wraps github.com/digitalocean/go-qemu/qmp with the
// low-level block-device, dirty-bitmap, and NBD export commands the
// offline backup path needs against a qemu-storage-daemon instance,
// used when the domain is not running and libvirt's own checkpoint
// machinery is unavailable. It is adapted from the project's original
// standalone QMP-driven backup tool; the checkpoint.Chain package now
// owns chain bookkeeping, so this package is reduced to the QMP
// command builders and the plumbing to run them against a monitor and
// log the exchange.
package qmp
