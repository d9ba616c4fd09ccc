package restoreengine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/valvemist/vmbackup/stream"
)

func writeStreamFile(t *testing.T, path string, meta stream.Metadata) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := stream.WriteMetaFrame(f, meta); err != nil {
		t.Fatal(err)
	}
	sw := stream.NewWriter(f, false, 0)
	if err := sw.WriteStop(); err != nil {
		t.Fatal(err)
	}
}

func TestDumpMetadataFiltersByDiskAndOrdersNewestFirst(t *testing.T) {
	dir := t.TempDir()

	vdaMeta := stream.NewMetadata("vda", "raw", "prefix.0", "", 1<<20, 0, false)
	vdbMeta := stream.NewMetadata("vdb", "raw", "prefix.0", "", 1<<20, 0, false)
	writeStreamFile(t, filepath.Join(dir, "vda.full.data"), vdaMeta)
	writeStreamFile(t, filepath.Join(dir, "vdb.full.data"), vdbMeta)
	older := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(dir, "vda.full.data"), older, older); err != nil {
		t.Fatal(err)
	}

	out, err := DumpMetadata(dir, []string{"vda"})
	if err != nil {
		t.Fatalf("DumpMetadata: %v", err)
	}
	if len(out) != 1 || out[0].DiskName != "vda" {
		t.Fatalf("out = %+v, want one vda record", out)
	}

	all, err := DumpMetadata(dir, nil)
	if err != nil {
		t.Fatalf("DumpMetadata: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
	if all[0].DiskName != "vdb" || all[1].DiskName != "vda" {
		t.Fatalf("all = %+v, want vdb (newest) before vda", all)
	}
}
