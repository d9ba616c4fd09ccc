package qmp

import (
	"github.com/tidwall/gjson"
)

// RunBlockDevAdd adds a block device to the QEMU monitor.
func RunBlockDevAdd(monitor Monitor, cfg Config) ([]byte, error) {
	return RunAndLog(monitor, BuildBlockDevAddJSON(cfg))
}

// RunBlockDevDel removes a block device node from the QEMU monitor.
func RunBlockDevDel(monitor Monitor, cfg Config) ([]byte, error) {
	return RunAndLog(monitor, BuildBlockDevDelJSON(cfg))
}

// RunBitmapAdd adds a dirty bitmap to track changes for incremental backup.
func RunBitmapAdd(monitor Monitor, cfg Config) ([]byte, error) {
	return RunAndLog(monitor, BuildBlockDirtyBitmapAddJSON(cfg))
}

// RunBitmapRemove removes the dirty bitmap as part of cleanup.
func RunBitmapRemove(monitor Monitor, cfg Config) ([]byte, error) {
	return RunAndLog(monitor, BuildBlockDirtyBitmapRemoveJSON(cfg))
}

// RunBitmapMerge merges source's dirty bits forward into cfg's bitmap.
func RunBitmapMerge(monitor Monitor, cfg Config, source string) ([]byte, error) {
	return RunAndLog(monitor, BuildBlockDirtyBitmapMergeJSON(cfg, source))
}

// RunExportAdd exposes cfg's node over the storage daemon's NBD
// server under exportID, advertising bitmap as a metadata context when
// non-empty.
func RunExportAdd(monitor Monitor, cfg Config, exportID, bitmap string) ([]byte, error) {
	return RunAndLog(monitor, BuildExportAddJSON(cfg, exportID, bitmap))
}

// RunExportDel tears down an NBD export previously created by
// RunExportAdd.
func RunExportDel(monitor Monitor, exportID string) ([]byte, error) {
	return RunAndLog(monitor, BuildExportDelJSON(exportID))
}

// RunGetVirtualSize retrieves the virtual size in bytes of cfg's node
// from QEMU's query-named-block-nodes response.
func RunGetVirtualSize(monitor Monitor, cfg Config) (int64, error) {
	raw, err := RunAndLog(monitor, BuildQueryNamedBlockNodesJSON())
	if err != nil {
		return 0, err
	}

	nodes := gjson.GetBytes(raw, "return").Array()
	for _, node := range nodes {
		if node.Get("node-name").String() == cfg.DeviceToBackup {
			return node.Get("image.virtual-size").Int(), nil
		}
	}
	return 0, &NoSuchDeviceError{Device: cfg.DeviceToBackup}
}

// NoSuchDeviceError reports that query-named-block-nodes listed no
// node named Device.
type NoSuchDeviceError struct {
	Device string
}

func (e *NoSuchDeviceError) Error() string {
	return "qmp: device " + e.Device + " not found or has no virtual size"
}
