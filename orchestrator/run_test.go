package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/valvemist/vmbackup/checkpoint"
	"github.com/valvemist/vmbackup/hypervisor"
	"github.com/valvemist/vmbackup/runconfig"
)

// orderingHypervisor is a minimal fake Hypervisor that records the
// name of every method called on it, in call order, so tests can
// assert ordering between checkpoint truncation and job start without
// a live libvirt connection.
type orderingHypervisor struct {
	disks []hypervisor.DomainDisk
	calls []string
}

func (h *orderingHypervisor) record(name string) { h.calls = append(h.calls, name) }

func (h *orderingHypervisor) GetDomain(ctx context.Context, name string) (hypervisor.Domain, error) {
	h.record("GetDomain")
	return hypervisor.Domain{Name: name}, nil
}

func (h *orderingHypervisor) GetDomainDisks(ctx context.Context, dom hypervisor.Domain) ([]hypervisor.DomainDisk, error) {
	h.record("GetDomainDisks")
	return h.disks, nil
}

func (h *orderingHypervisor) GetDomainConfig(ctx context.Context, dom hypervisor.Domain) ([]byte, error) {
	h.record("GetDomainConfig")
	return nil, nil
}

func (h *orderingHypervisor) StartBackup(ctx context.Context, dom hypervisor.Domain, disks []hypervisor.DomainDisk, checkpointName, parentCheckpoint string) (hypervisor.BackupJob, error) {
	h.record("StartBackup")
	return hypervisor.BackupJob{CheckpointName: checkpointName}, nil
}

func (h *orderingHypervisor) StopBackup(ctx context.Context, dom hypervisor.Domain, job hypervisor.BackupJob) error {
	h.record("StopBackup")
	return nil
}

func (h *orderingHypervisor) BackupCheckpoints(ctx context.Context, dom hypervisor.Domain) ([]string, error) {
	h.record("BackupCheckpoints")
	return nil, nil
}

func (h *orderingHypervisor) HasForeignCheckpoint(ctx context.Context, dom hypervisor.Domain, prefix string) ([]string, error) {
	h.record("HasForeignCheckpoint")
	return nil, nil
}

func (h *orderingHypervisor) RemoveAllCheckpoints(ctx context.Context, dom hypervisor.Domain) error {
	h.record("RemoveAllCheckpoints")
	return nil
}

func (h *orderingHypervisor) RedefineCheckpoints(ctx context.Context, dom hypervisor.Domain, names []string) error {
	h.record("RedefineCheckpoints")
	return nil
}

func (h *orderingHypervisor) DefineDomain(ctx context.Context, configXML []byte) error {
	h.record("DefineDomain")
	return nil
}

func (h *orderingHypervisor) AdjustDomainConfig(ctx context.Context, configXML []byte, pathRewrites map[string]string) ([]byte, error) {
	h.record("AdjustDomainConfig")
	return configXML, nil
}

func (h *orderingHypervisor) AdjustDomainConfigRemoveDisk(ctx context.Context, configXML []byte, target string) ([]byte, error) {
	h.record("AdjustDomainConfigRemoveDisk")
	return configXML, nil
}

func (h *orderingHypervisor) RefreshPool(ctx context.Context, poolName string) error {
	h.record("RefreshPool")
	return nil
}

func indexOf(calls []string, name string) int {
	for i, c := range calls {
		if c == name {
			return i
		}
	}
	return -1
}

// TestRunTruncatesChainBeforeStartingFullBackup exercises spec §4.F's
// ordering: a full backup over a non-empty chain always reuses
// "<prefix>.0", so the hypervisor's stale checkpoint of that name and
// the chain file that tracked it must be gone before StartBackup asks
// the hypervisor to create a checkpoint by that same name, or the
// create collides with the one still on record from the prior full
// backup.
func TestRunTruncatesChainBeforeStartingFullBackup(t *testing.T) {
	dir := t.TempDir()

	chainPath := filepath.Join(dir, "vm1.cpt")
	if err := os.WriteFile(chainPath, []byte(`["prefix.0"]`), 0o644); err != nil {
		t.Fatal(err)
	}

	hv := &orderingHypervisor{disks: []hypervisor.DomainDisk{{Target: "vda"}}}
	cfg := runconfig.RunConfig{
		Domain:           "vm1",
		Mode:             checkpoint.ModeFull,
		Output:           dir,
		CheckpointPrefix: "prefix",
		StartOnly:        true,
	}

	var stoppedJobs []func()
	res, err := run(context.Background(), cfg, hv, &stoppedJobs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res == nil {
		t.Fatal("run returned nil result")
	}

	removeIdx := indexOf(hv.calls, "RemoveAllCheckpoints")
	startIdx := indexOf(hv.calls, "StartBackup")
	if removeIdx == -1 {
		t.Fatalf("RemoveAllCheckpoints was never called, calls = %v", hv.calls)
	}
	if startIdx == -1 {
		t.Fatalf("StartBackup was never called, calls = %v", hv.calls)
	}
	if removeIdx > startIdx {
		t.Fatalf("RemoveAllCheckpoints (index %d) must happen before StartBackup (index %d), calls = %v", removeIdx, startIdx, hv.calls)
	}

	data, err := os.ReadFile(chainPath)
	if err != nil {
		t.Fatalf("read chain file: %v", err)
	}
	if string(data) != "[]" {
		t.Fatalf("chain file = %s, want an empty chain truncated before StartBackup ran", data)
	}
}
