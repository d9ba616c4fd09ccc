package imagecreator

import "github.com/tidwall/gjson"

// parseSidecarJSON reads the three optional keys the restore engine
// honors from qemu-img info's JSON output, per the image-format sidecar
// contract. Any absent key is left at its zero value.
func parseSidecarJSON(raw []byte) QcowSidecar {
	var s QcowSidecar
	root := gjson.ParseBytes(raw)
	if v := root.Get("format-specific.data.compat"); v.Exists() {
		s.Compat = v.String()
	}
	if v := root.Get("cluster-size"); v.Exists() {
		s.ClusterSize = v.Int()
	}
	if v := root.Get("format-specific.data.lazy-refcounts"); v.Exists() {
		s.LazyRefcounts = v.Bool()
	}
	return s
}
