package checkpoint

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileIsEmptyChain(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.cpt"), "backup")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Names) != 0 {
		t.Fatalf("expected empty chain, got %v", c.Names)
	}
}

func TestHandleCheckpointsIncRequiresChain(t *testing.T) {
	c := &Chain{Prefix: "backup"}
	if _, err := HandleCheckpoints(ModeInc, c, false); err == nil {
		t.Fatal("expected NoCheckpointsFound error")
	}
}

func TestHandleCheckpointsFullEmptyChain(t *testing.T) {
	c := &Chain{Prefix: "backup"}
	d, err := HandleCheckpoints(ModeFull, c, true)
	if err != nil {
		t.Fatalf("HandleCheckpoints: %v", err)
	}
	if d.Name != "backup.0" || d.TruncateChain {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestHandleCheckpointsFullTruncatesExistingChain(t *testing.T) {
	c := &Chain{Prefix: "backup", Names: []string{"backup.0", "backup.1"}}
	d, err := HandleCheckpoints(ModeFull, c, false)
	if err != nil {
		t.Fatalf("HandleCheckpoints: %v", err)
	}
	if d.Name != "backup.0" || !d.TruncateChain {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestHandleCheckpointsIncAdvancesSuffix(t *testing.T) {
	c := &Chain{Prefix: "backup", Names: []string{"backup.0", "backup.1"}}
	d, err := HandleCheckpoints(ModeInc, c, false)
	if err != nil {
		t.Fatalf("HandleCheckpoints: %v", err)
	}
	if d.Name != "backup.2" || d.Parent != "backup.1" {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestHandleCheckpointsDiffDoesNotExtend(t *testing.T) {
	c := &Chain{Prefix: "backup", Names: []string{"backup.0"}}
	d, err := HandleCheckpoints(ModeDiff, c, false)
	if err != nil {
		t.Fatalf("HandleCheckpoints: %v", err)
	}
	if d.Name != "backup.0" || d.ExtendChain {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestHandleCheckpointsCopyNeverMutatesChain(t *testing.T) {
	c := &Chain{Prefix: "backup", Names: []string{"backup.0", "backup.1"}}
	d, err := HandleCheckpoints(ModeCopy, c, false)
	if err != nil {
		t.Fatalf("HandleCheckpoints: %v", err)
	}
	if d.ExtendChain || d.TruncateChain || d.Parent != "backup.1" {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestDetectForeign(t *testing.T) {
	foreign := DetectForeign("backup", []string{"user-snap", "backup.0", "backup.1"})
	if len(foreign) != 1 || foreign[0] != "user-snap" {
		t.Fatalf("unexpected foreign set: %v", foreign)
	}
}

func TestChainMonotonicity(t *testing.T) {
	c := &Chain{Path: filepath.Join(t.TempDir(), "chain.cpt"), Prefix: "backup"}
	for i := 0; i < 3; i++ {
		d, err := HandleCheckpoints(ModeAuto, c, i == 0)
		if err != nil {
			t.Fatalf("HandleCheckpoints iteration %d: %v", i, err)
		}
		if err := d.Commit(c); err != nil {
			t.Fatalf("Commit iteration %d: %v", i, err)
		}
	}
	if len(c.Names) != 3 {
		t.Fatalf("expected 3 checkpoints, got %v", c.Names)
	}
	for i, name := range c.Names {
		n, ok := ParseSuffix(c.Prefix, name)
		if !ok || n != i {
			t.Fatalf("checkpoint %d has unexpected name %q", i, name)
		}
	}
}
