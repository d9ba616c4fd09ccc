package restoreengine

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverChainOrdersIncBySuffixThenDiffByEpoch(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "vda.full.data")
	touch(t, dir, "vda.inc.prefix.2.data")
	touch(t, dir, "vda.inc.prefix.1.data")
	touch(t, dir, "vda.diff.1700000100.data")
	touch(t, dir, "vda.diff.1700000000.data")
	touch(t, dir, "vdb.full.data") // different disk, must be ignored

	chain, err := DiscoverChain(dir, "vda")
	if err != nil {
		t.Fatalf("DiscoverChain: %v", err)
	}

	want := []string{
		filepath.Join(dir, "vda.full.data"),
		filepath.Join(dir, "vda.inc.prefix.1.data"),
		filepath.Join(dir, "vda.inc.prefix.2.data"),
		filepath.Join(dir, "vda.diff.1700000000.data"),
		filepath.Join(dir, "vda.diff.1700000100.data"),
	}
	if len(chain) != len(want) {
		t.Fatalf("chain = %v, want %v", chain, want)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Errorf("chain[%d] = %s, want %s", i, chain[i], want[i])
		}
	}
}

func TestDiscoverChainMissingBaseErrors(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "vda.inc.prefix.1.data")

	_, err := DiscoverChain(dir, "vda")
	if err == nil {
		t.Fatal("expected ErrNoBaseFile")
	}
	if _, ok := err.(*ErrNoBaseFile); !ok {
		t.Fatalf("got %T, want *ErrNoBaseFile", err)
	}
}

func TestListDisksDeduplicatesAndFilters(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "vda.full.data")
	touch(t, dir, "vda.inc.prefix.1.data")
	touch(t, dir, "vdb.copy.data")

	disks, err := ListDisks(dir, nil)
	if err != nil {
		t.Fatalf("ListDisks: %v", err)
	}
	if len(disks) != 2 || disks[0] != "vda" || disks[1] != "vdb" {
		t.Fatalf("disks = %v, want [vda vdb]", disks)
	}

	filtered, err := ListDisks(dir, []string{"vdb"})
	if err != nil {
		t.Fatalf("ListDisks filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0] != "vdb" {
		t.Fatalf("filtered disks = %v, want [vdb]", filtered)
	}
}
