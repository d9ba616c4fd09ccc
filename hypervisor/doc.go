// Package hypervisor captures the one capability set the backup and
// restore engines need from the virtualization host: domain and disk
// lookup, checkpoint lifecycle, backup-job start/stop, and domain
// configuration adjustment. The engines depend only on the Hypervisor
// interface; LibvirtHypervisor is the concrete adapter backed by
// go-libvirt. When the domain is not running at all, backupengine
// bypasses this package entirely and drives a qemu-storage-daemon
// instance over QMP directly (package qmp) instead of libvirt's
// checkpoint API.
package hypervisor
