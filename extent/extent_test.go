package extent

import "testing"

func TestMergeCoalescesAdjacentSameFlag(t *testing.T) {
	raw := []Extent{
		{Offset: 0, Length: 4096, Data: true},
		{Offset: 4096, Length: 4096, Data: true},
		{Offset: 8192, Length: 4096, Data: false},
	}
	merged := Merge(raw, 12288)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged extents, got %d: %+v", len(merged), merged)
	}
	if merged[0].Offset != 0 || merged[0].Length != 8192 || !merged[0].Data {
		t.Fatalf("unexpected first extent: %+v", merged[0])
	}
	if merged[1].Offset != 8192 || merged[1].Length != 4096 || merged[1].Data {
		t.Fatalf("unexpected second extent: %+v", merged[1])
	}
}

func TestMergeClipsToDiskSize(t *testing.T) {
	raw := []Extent{{Offset: 0, Length: 8192, Data: true}}
	merged := Merge(raw, 4096)
	if len(merged) != 1 || merged[0].Length != 4096 {
		t.Fatalf("expected clipped extent of length 4096, got %+v", merged)
	}
}

func TestMetaContextName(t *testing.T) {
	if got := MetaContextName(true, "backup.0", "vda"); got != "qemu:dirty-bitmap:backup.0" {
		t.Fatalf("offline context = %q", got)
	}
	if got := MetaContextName(false, "", "vda"); got != "qemu:dirty-bitmap:backup-vda" {
		t.Fatalf("online context = %q", got)
	}
	if got := MetaContextName(true, "", "vda"); got != "base:allocation" {
		t.Fatalf("offline copy-mode context = %q", got)
	}
}
