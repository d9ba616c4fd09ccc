package qmp

// Config holds the parameters of one offline dirty-bitmap / block-dev
// QMP operation against a disk image opened directly by
// qemu-storage-daemon: the node name the image is attached under, the
// image file and its format, and the bitmap used for incremental
// change tracking.
type Config struct {
	DeviceToBackup string
	Format         string
	BitmapName     string
	BackupFile     string
	BackingFile    string
}

// DefaultBitmapName is used when Config.BitmapName is left empty.
const DefaultBitmapName = "bitmap0"

func (c Config) bitmapName() string {
	if c.BitmapName != "" {
		return c.BitmapName
	}
	return DefaultBitmapName
}

// imageDriver maps the disk's libvirt driver type to the blockdev
// driver name QMP expects; qemu-storage-daemon uses the same driver
// names as QEMU's -drive/-blockdev.
func (c Config) imageDriver() string {
	if c.Format == "" {
		return "qcow2"
	}
	return c.Format
}
