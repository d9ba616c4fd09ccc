package imagecreator

import "testing"

func TestQcowCreateOptionsEmpty(t *testing.T) {
	if got := qcowCreateOptions(QcowSidecar{}); got != "" {
		t.Fatalf("expected empty options, got %q", got)
	}
}

func TestQcowCreateOptionsCombined(t *testing.T) {
	opts := QcowSidecar{Compat: "1.1", ClusterSize: 65536, LazyRefcounts: true}
	want := "compat=1.1,cluster_size=65536,lazy_refcounts=on"
	if got := qcowCreateOptions(opts); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParseSidecarJSONHonorsNestedKeys(t *testing.T) {
	raw := []byte(`{
		"cluster-size": 131072,
		"format-specific": {
			"type": "qcow2",
			"data": {
				"compat": "1.1",
				"lazy-refcounts": true
			}
		}
	}`)
	got := parseSidecarJSON(raw)
	want := QcowSidecar{Compat: "1.1", ClusterSize: 131072, LazyRefcounts: true}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestParseSidecarJSONMissingKeysAreZero(t *testing.T) {
	got := parseSidecarJSON([]byte(`{}`))
	if got != (QcowSidecar{}) {
		t.Fatalf("expected zero value, got %+v", got)
	}
}
