package vento

import (
	"fmt"
	"sort"

	"github.com/mowgliph/vento/audit"
	"github.com/mowgliph/vento/internal/debug"
	"github.com/mowgliph/vento/persist"
)

// List enumerates available backups, newest first. Artifacts whose sidecar is
// missing or unreadable still appear, with size and creation time derived
// from the filesystem and an unknown checksum. Automatic safety snapshots are
// excluded.
//
// List takes a read snapshot and does not contend for the mutation lock.
func (p *Pipeline) List() ([]persist.ArtifactInfo, error) {
	infos, err := p.store.ListArtifacts()
	if err != nil {
		return nil, E("backup.list", KindStorage, err)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt().After(infos[j].CreatedAt())
	})
	return infos, nil
}

// Info returns the listing entry for a single backup.
func (p *Pipeline) Info(name string) (*persist.ArtifactInfo, error) {
	const op = "backup.info"

	if err := validateName(op, name); err != nil {
		return nil, err
	}

	infos, err := p.List()
	if err != nil {
		return nil, err
	}
	for i := range infos {
		if infos[i].Name == name {
			return &infos[i], nil
		}
	}
	return nil, Errorf(op, KindNotFound, "backup %s does not exist", name)
}

// Delete removes the named backup and its sidecar. It is idempotent: deleting
// an absent backup returns (false, nil), a successful removal returns
// (true, nil).
func (p *Pipeline) Delete(name string) (bool, error) {
	const op = "backup.delete"

	if err := validateName(op, name); err != nil {
		return false, err
	}

	if err := p.acquire(op); err != nil {
		return false, err
	}
	defer p.release()

	removed, err := p.store.DeleteArtifact(p.artifactPath(name))
	if err != nil {
		p.auditEvent(audit.EventDataDelete, name, "delete_backup", false,
			map[string]interface{}{"kind": KindStorage.String()})
		return false, E(op, KindStorage, err)
	}

	p.auditEvent(audit.EventDataDelete, name, "delete_backup", true,
		map[string]interface{}{"existed": removed})
	return removed, nil
}

// CleanupOldBackups applies the retention policy: the keep newest backups
// survive and every older one is deleted. It returns the names of the
// backups it removed. A keep count below one is rejected before any lock or
// deletion happens, so a miscalled cleanup can never wipe the whole set.
// Safety snapshots are not listed and therefore never count against
// retention.
//
// Deletion failures on individual backups are recorded and skipped; the
// cleanup removes what it can and reports the first failure alongside the
// names it did remove.
func (p *Pipeline) CleanupOldBackups(keep int) ([]string, error) {
	const op = "backup.cleanup"

	if keep < 1 {
		return nil, Errorf(op, KindValidation, "keep count must be at least 1, got %d", keep)
	}

	if err := p.acquire(op); err != nil {
		return nil, err
	}
	defer p.release()

	infos, err := p.store.ListArtifacts()
	if err != nil {
		return nil, E(op, KindStorage, err)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt().After(infos[j].CreatedAt())
	})

	if len(infos) <= keep {
		return nil, nil
	}

	var deleted []string
	var firstErr error
	for _, info := range infos[keep:] {
		if _, delErr := p.store.DeleteArtifact(info.Path); delErr != nil {
			debug.Print("cleanup: failed to delete %s: %v", info.Name, delErr)
			if firstErr == nil {
				firstErr = E(op, KindStorage, delErr)
			}
			continue
		}
		deleted = append(deleted, info.Name)
	}

	p.auditEvent(audit.EventDataDelete, "retention", "cleanup_old_backups", firstErr == nil,
		map[string]interface{}{
			"keep":    keep,
			"deleted": len(deleted),
		})

	return deleted, firstErr
}

// Cleanup applies the configured retention policy: equivalent to calling
// CleanupOldBackups with Options.KeepCount.
func (p *Pipeline) Cleanup() ([]string, error) {
	return p.CleanupOldBackups(p.opts.KeepCount)
}

// Replicate pushes the named backup's artifact and sidecar to the configured
// offsite replica store. The artifact is copied as-is: it stays encrypted end
// to end and the replica never sees plaintext or key material.
func (p *Pipeline) Replicate(name string) error {
	const op = "backup.replicate"

	if err := validateName(op, name); err != nil {
		return err
	}
	if p.replica == nil {
		return Errorf(op, KindValidation, "no replica store is configured")
	}

	artifactPath := p.artifactPath(name)

	envelope, err := p.store.LoadArtifact(artifactPath)
	if err != nil {
		p.auditEvent(audit.EventDataExport, name, "replicate_backup", false,
			map[string]interface{}{"kind": KindNotFound.String()})
		return E(op, KindNotFound, err)
	}

	key, err := p.replica.SaveArtifact(name, envelope)
	if err != nil {
		p.auditEvent(audit.EventDataExport, name, "replicate_backup", false,
			map[string]interface{}{"kind": KindStorage.String()})
		return E(op, KindStorage, fmt.Errorf("failed to upload artifact: %w", err))
	}

	// The sidecar is replicated when present; a replica without metadata is
	// still restorable after download.
	if meta, metaErr := p.store.LoadSidecar(artifactPath); metaErr == nil {
		if err = p.replica.SaveSidecar(key, meta); err != nil {
			p.auditEvent(audit.EventDataExport, name, "replicate_backup", false,
				map[string]interface{}{"kind": KindStorage.String()})
			return E(op, KindStorage, fmt.Errorf("failed to upload metadata: %w", err))
		}
	}

	p.auditEvent(audit.EventDataExport, name, "replicate_backup", true,
		map[string]interface{}{"target": p.replica.GetType()})
	return nil
}
