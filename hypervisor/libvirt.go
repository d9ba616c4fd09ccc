package hypervisor

import (
	"context"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"

	libvirt "github.com/digitalocean/go-libvirt"
	"github.com/pkg/errors"
)

var diskElementRe = regexp.MustCompile(`(?s)<disk\b[^>]*>.*?</disk>`)

// LibvirtHypervisor is the concrete Hypervisor backed by a live libvirt
// connection. Checkpoint and backup-job lifecycle goes through
// libvirt's own virDomainCheckpoint*/virDomainBackup* API; in offline
// mode the orchestrator still looks the domain and its disks up here but
// skips this adapter's checkpoint and backup-job calls, and backupengine
// drives a qemu-storage-daemon instance directly over QMP instead.
type LibvirtHypervisor struct {
	conn   *libvirt.Libvirt
	prefix string
}

// NewLibvirtHypervisor wraps an already-connected libvirt client.
func NewLibvirtHypervisor(conn *libvirt.Libvirt, checkpointPrefix string) *LibvirtHypervisor {
	return &LibvirtHypervisor{conn: conn, prefix: checkpointPrefix}
}

type domainHandle struct {
	dom libvirt.Domain
}

func (h *LibvirtHypervisor) GetDomain(ctx context.Context, name string) (Domain, error) {
	dom, err := h.conn.DomainLookupByName(name)
	if err != nil {
		return Domain{}, errors.Wrapf(err, "lookup domain %s", name)
	}
	return Domain{Name: name, impl: domainHandle{dom: dom}}, nil
}

func (h *LibvirtHypervisor) handle(d Domain) libvirt.Domain {
	return d.impl.(domainHandle).dom
}

func (h *LibvirtHypervisor) GetDomainConfig(ctx context.Context, d Domain) ([]byte, error) {
	x, err := h.conn.DomainGetXMLDesc(h.handle(d), 0)
	if err != nil {
		return nil, errors.Wrapf(err, "get domain config for %s", d.Name)
	}
	return []byte(x), nil
}

// domainXMLDisk mirrors the subset of libvirt's domain XML disk
// elements the backup/restore engines need.
type domainXMLDisk struct {
	Device string `xml:"device,attr"`
	Driver struct {
		Type string `xml:"type,attr"`
	} `xml:"driver"`
	Source struct {
		File string `xml:"file,attr"`
		Dev  string `xml:"dev,attr"`
	} `xml:"source"`
	Target struct {
		Dev string `xml:"dev,attr"`
	} `xml:"target"`
}

type domainXML struct {
	Devices struct {
		Disks []domainXMLDisk `xml:"disk"`
	} `xml:"devices"`
}

func (h *LibvirtHypervisor) GetDomainDisks(ctx context.Context, d Domain) ([]DomainDisk, error) {
	raw, err := h.GetDomainConfig(ctx, d)
	if err != nil {
		return nil, err
	}

	var parsed domainXML
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return nil, errors.Wrapf(err, "parse domain config for %s", d.Name)
	}

	disks := make([]DomainDisk, 0, len(parsed.Devices.Disks))
	for _, dk := range parsed.Devices.Disks {
		source := dk.Source.File
		if source == "" {
			source = dk.Source.Dev
		}
		disks = append(disks, DomainDisk{
			Target: dk.Target.Dev,
			Source: source,
			Format: dk.Driver.Type,
			Device: dk.Device,
		})
	}
	return disks, nil
}

func (h *LibvirtHypervisor) BackupCheckpoints(ctx context.Context, d Domain) ([]string, error) {
	checkpoints, _, err := h.conn.DomainListAllCheckpoints(h.handle(d), -1, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "list checkpoints for %s", d.Name)
	}
	names := make([]string, 0, len(checkpoints))
	for _, c := range checkpoints {
		names = append(names, c.Name)
	}
	return names, nil
}

func (h *LibvirtHypervisor) HasForeignCheckpoint(ctx context.Context, d Domain, prefix string) ([]string, error) {
	names, err := h.BackupCheckpoints(ctx, d)
	if err != nil {
		return nil, err
	}
	var foreign []string
	for _, name := range names {
		if !strings.HasPrefix(name, prefix+".") {
			foreign = append(foreign, name)
			continue
		}
		if _, err := fmt.Sscanf(strings.TrimPrefix(name, prefix+"."), "%d", new(int)); err != nil {
			foreign = append(foreign, name)
		}
	}
	return foreign, nil
}

func (h *LibvirtHypervisor) RemoveAllCheckpoints(ctx context.Context, d Domain) error {
	checkpoints, _, err := h.conn.DomainListAllCheckpoints(h.handle(d), -1, 0)
	if err != nil {
		return errors.Wrapf(err, "list checkpoints for %s", d.Name)
	}
	for _, c := range checkpoints {
		if err := h.conn.DomainCheckpointDelete(c, 0); err != nil {
			return errors.Wrapf(err, "delete checkpoint %s", c.Name)
		}
	}
	return nil
}

func (h *LibvirtHypervisor) RedefineCheckpoints(ctx context.Context, d Domain, names []string) error {
	for _, name := range names {
		checkpointXML := fmt.Sprintf(`<domaincheckpoint><name>%s</name></domaincheckpoint>`, name)
		flags := libvirt.DomainCheckpointCreateRedefine
		if _, err := h.conn.DomainCheckpointCreateXML(h.handle(d), checkpointXML, uint32(flags)); err != nil {
			return errors.Wrapf(err, "redefine checkpoint %s", name)
		}
	}
	return nil
}

func (h *LibvirtHypervisor) StartBackup(ctx context.Context, d Domain, disks []DomainDisk, checkpointName, parentCheckpoint string) (BackupJob, error) {
	var diskXML strings.Builder
	for _, disk := range disks {
		fmt.Fprintf(&diskXML, `<disk name='%s' backup='yes'><scratch file='%s.scratch'/></disk>`, disk.Target, disk.Target)
	}
	var incrementalXML string
	if parentCheckpoint != "" {
		incrementalXML = fmt.Sprintf(`<incremental>%s</incremental>`, parentCheckpoint)
	}
	backupXML := fmt.Sprintf(`<domainbackup mode='pull'>%s<disks>%s</disks></domainbackup>`, incrementalXML, diskXML.String())

	var checkpointXML libvirt.OptString
	if checkpointName != "" {
		checkpointXML = libvirt.OptString{fmt.Sprintf(`<domaincheckpoint><name>%s</name></domaincheckpoint>`, checkpointName)}
	}

	if err := h.conn.DomainBackupBegin(h.handle(d), backupXML, checkpointXML, 0); err != nil {
		return BackupJob{}, errors.Wrapf(err, "start backup job for %s", d.Name)
	}

	nbdXML, err := h.conn.DomainBackupGetXMLDesc(h.handle(d), 0)
	if err != nil {
		return BackupJob{}, errors.Wrap(err, "get backup job endpoint")
	}

	return BackupJob{CheckpointName: checkpointName, NBDSocket: parseBackupSocket(nbdXML)}, nil
}

func (h *LibvirtHypervisor) StopBackup(ctx context.Context, d Domain, job BackupJob) error {
	return errors.Wrap(h.conn.DomainAbortJob(h.handle(d)), "stop backup job")
}

func (h *LibvirtHypervisor) DefineDomain(ctx context.Context, configXML []byte) error {
	_, err := h.conn.DomainDefineXML(string(configXML))
	return errors.Wrap(err, "define domain")
}

func (h *LibvirtHypervisor) AdjustDomainConfig(ctx context.Context, configXML []byte, pathRewrites map[string]string) ([]byte, error) {
	raw := string(configXML)
	for oldPath, newPath := range pathRewrites {
		raw = strings.ReplaceAll(raw, fmt.Sprintf(`file='%s'`, oldPath), fmt.Sprintf(`file='%s'`, newPath))
		raw = strings.ReplaceAll(raw, fmt.Sprintf(`file="%s"`, oldPath), fmt.Sprintf(`file="%s"`, newPath))
	}
	return []byte(raw), nil
}

// AdjustDomainConfigRemoveDisk excises the <disk> element whose <target
// dev='...'/> matches target. It edits the raw XML text rather than
// round-tripping through domainXML, since that struct only models the
// subset of fields GetDomainDisks needs and would drop every other
// element on marshal.
func (h *LibvirtHypervisor) AdjustDomainConfigRemoveDisk(ctx context.Context, configXML []byte, target string) ([]byte, error) {
	targetRe := regexp.MustCompile(fmt.Sprintf(`<target\b[^>]*\bdev=(['"])%s['"]`, regexp.QuoteMeta(target)))

	raw := string(configXML)
	matches := diskElementRe.FindAllString(raw, -1)
	for _, m := range matches {
		if targetRe.MatchString(m) {
			raw = strings.Replace(raw, m, "", 1)
			return []byte(raw), nil
		}
	}
	return configXML, nil
}

func (h *LibvirtHypervisor) RefreshPool(ctx context.Context, poolName string) error {
	pool, err := h.conn.StoragePoolLookupByName(poolName)
	if err != nil {
		return errors.Wrapf(err, "lookup pool %s", poolName)
	}
	return errors.Wrap(h.conn.StoragePoolRefresh(pool, 0), "refresh pool")
}

func parseBackupSocket(nbdXML string) string {
	const marker = "socket='"
	idx := strings.Index(nbdXML, marker)
	if idx < 0 {
		return ""
	}
	rest := nbdXML[idx+len(marker):]
	end := strings.IndexByte(rest, '\'')
	if end < 0 {
		return ""
	}
	return rest[:end]
}
