package qmp

import "github.com/tidwall/sjson"

// BuildBlockDirtyBitmapAddJSON returns the JSON command to add a dirty
// bitmap to a block device. The bitmap is marked persistent so it
// survives the storage-daemon process exiting: the offline backup path
// runs qemu-storage-daemon only for the duration of one backup, and the
// bitmap must still be there, embedded in the qcow2 file, the next time
// the domain (or another offline run) picks up the chain.
func BuildBlockDirtyBitmapAddJSON(cfg Config) string {
	json := `{}`
	json, _ = sjson.Set(json, "execute", "block-dirty-bitmap-add")
	json, _ = sjson.Set(json, "arguments.node", cfg.DeviceToBackup)
	json, _ = sjson.Set(json, "arguments.name", cfg.bitmapName())
	json, _ = sjson.Set(json, "arguments.persistent", true)
	return json
}

// BuildBlockDirtyBitmapMergeJSON returns the JSON command to merge
// source's dirty bits into cfg's bitmap, used when an incremental
// backup mints a new checkpoint bitmap that inherits the parent
// checkpoint's accumulated dirty state.
func BuildBlockDirtyBitmapMergeJSON(cfg Config, source string) string {
	json := `{}`
	json, _ = sjson.Set(json, "execute", "block-dirty-bitmap-merge")
	json, _ = sjson.Set(json, "arguments.node", cfg.DeviceToBackup)
	json, _ = sjson.Set(json, "arguments.target", cfg.bitmapName())
	json, _ = sjson.Set(json, "arguments.bitmaps.0", source)
	return json
}

// BuildBlockDirtyBitmapRemoveJSON returns the JSON command to remove a
// dirty bitmap from a block device.
func BuildBlockDirtyBitmapRemoveJSON(cfg Config) string {
	json := `{}`
	json, _ = sjson.Set(json, "execute", "block-dirty-bitmap-remove")
	json, _ = sjson.Set(json, "arguments.node", cfg.DeviceToBackup)
	json, _ = sjson.Set(json, "arguments.name", cfg.bitmapName())
	return json
}

// BuildBlockDevAddJSON returns the JSON command to add a block device
// node backed by the disk image, opened read-only: the offline path
// only ever reads extents off this node, never writes through it.
func BuildBlockDevAddJSON(cfg Config) string {
	json := `{}`
	json, _ = sjson.Set(json, "execute", "blockdev-add")
	json, _ = sjson.Set(json, "arguments.node-name", cfg.DeviceToBackup)
	json, _ = sjson.Set(json, "arguments.driver", cfg.imageDriver())
	json, _ = sjson.Set(json, "arguments.read-only", true)
	json, _ = sjson.Set(json, "arguments.file.driver", "file")
	json, _ = sjson.Set(json, "arguments.file.filename", cfg.BackupFile)
	json, _ = sjson.Set(json, "arguments.file.read-only", true)
	return json
}

// BuildBlockDevDelJSON returns the JSON command to delete a block
// device node.
func BuildBlockDevDelJSON(cfg Config) string {
	json := `{}`
	json, _ = sjson.Set(json, "execute", "blockdev-del")
	json, _ = sjson.Set(json, "arguments.node-name", cfg.DeviceToBackup)
	return json
}

// BuildExportAddJSON returns the JSON command to expose node as an NBD
// export over the storage daemon's already-listening nbd-server,
// advertising bitmap as an additional metadata context when non-empty.
func BuildExportAddJSON(cfg Config, exportID string, bitmap string) string {
	json := `{}`
	json, _ = sjson.Set(json, "execute", "block-export-add")
	json, _ = sjson.Set(json, "arguments.type", "nbd")
	json, _ = sjson.Set(json, "arguments.id", exportID)
	json, _ = sjson.Set(json, "arguments.node-name", cfg.DeviceToBackup)
	json, _ = sjson.Set(json, "arguments.name", exportID)
	json, _ = sjson.Set(json, "arguments.writable", false)
	if bitmap != "" {
		json, _ = sjson.Set(json, "arguments.bitmaps.0.node", cfg.DeviceToBackup)
		json, _ = sjson.Set(json, "arguments.bitmaps.0.name", bitmap)
	}
	return json
}

// BuildExportDelJSON returns the JSON command to tear down an NBD
// export previously created with BuildExportAddJSON.
func BuildExportDelJSON(exportID string) string {
	json := `{}`
	json, _ = sjson.Set(json, "execute", "block-export-del")
	json, _ = sjson.Set(json, "arguments.id", exportID)
	return json
}

// BuildQueryNamedBlockNodesJSON returns the JSON command to query
// block nodes by node-name, including each node's virtual size.
// qemu-storage-daemon attaches images directly to nodes with no guest
// -device frontend, so query-block (which lists guest devices) cannot
// see them.
func BuildQueryNamedBlockNodesJSON() string {
	json := `{}`
	json, _ = sjson.Set(json, "execute", "query-named-block-nodes")
	return json
}
