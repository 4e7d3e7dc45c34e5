package vento

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mowgliph/vento/audit"
	"github.com/mowgliph/vento/internal/crypto"
	"github.com/mowgliph/vento/internal/debug"
	"github.com/mowgliph/vento/internal/misc"
	"github.com/mowgliph/vento/persist"
)

// RestoreResult describes a completed restore.
type RestoreResult struct {
	Name           string
	SafetySnapshot string // name of the automatic pre-restore snapshot, "" if none was taken
	RestoredAt     time.Time
}

// Restore replaces the live store with the contents of the named backup.
//
// The artifact is decrypted and decompressed into a staging file next to the
// live store, verified structurally, and checked against the sidecar checksum
// when one is recorded. Only after every check passes is the current live
// store preserved as an automatic safety snapshot and the staged candidate
// renamed over the live path. The rename is the single commit point: a crash
// at any earlier step leaves the live store untouched.
//
// Decryption failures report an integrity error whether the artifact was
// tampered with or encrypted under a different secret/salt pair; the two
// cases are deliberately indistinguishable.
func (p *Pipeline) Restore(name string) (*RestoreResult, error) {
	const op = "backup.restore"

	if err := validateName(op, name); err != nil {
		return nil, err
	}

	if err := p.acquire(op); err != nil {
		p.auditEvent(audit.EventDataUpdate, name, "restore_backup", false,
			map[string]interface{}{"reason": "lock_timeout"})
		return nil, err
	}
	defer p.release()

	result, err := p.restoreLocked(op, name)
	if err != nil {
		eventType := audit.EventDataUpdate
		if IsKind(err, KindIntegrity) {
			eventType = audit.EventSecurityViolation
		}
		p.auditEvent(eventType, name, "restore_backup", false,
			map[string]interface{}{"kind": KindOf(err).String()})
		return nil, err
	}

	p.auditEvent(audit.EventDataUpdate, name, "restore_backup", true,
		map[string]interface{}{"safety_snapshot": result.SafetySnapshot})
	return result, nil
}

func (p *Pipeline) restoreLocked(op, name string) (*RestoreResult, error) {
	artifactPath := p.artifactPath(name)

	exists, err := p.store.ArtifactExists(artifactPath)
	if err != nil {
		return nil, E(op, KindStorage, err)
	}
	if !exists {
		return nil, Errorf(op, KindNotFound, "backup %s does not exist", name)
	}

	envelope, err := p.store.LoadArtifact(artifactPath)
	if err != nil {
		return nil, E(op, KindStorage, err)
	}

	compressed, err := p.engine.Decrypt(envelope)
	if err != nil {
		return nil, err
	}

	snapshot, err := decompress(compressed)
	if err != nil {
		// The envelope authenticated but its payload does not decompress;
		// treat it as a corrupt artifact.
		return nil, E(op, KindIntegrity, fmt.Errorf("artifact payload is corrupt: %w", err))
	}

	// The sidecar checksum covers the uncompressed snapshot. A missing or
	// unreadable sidecar degrades to structural verification only.
	if meta, metaErr := p.store.LoadSidecar(artifactPath); metaErr == nil && meta.Checksum != "" {
		if crypto.CalculateChecksum(snapshot) != meta.Checksum {
			return nil, Errorf(op, KindIntegrity, "restored snapshot does not match recorded checksum")
		}
	}

	// Stage the candidate in the live store's directory so the final
	// rename cannot cross filesystems.
	candidate, err := p.stageCandidate(op, snapshot)
	if err != nil {
		return nil, err
	}
	defer os.Remove(candidate)

	ok, err := p.verifier.Verify(candidate)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, Errorf(op, KindIntegrity, "restored snapshot failed structural verification")
	}

	safetyName, err := p.takeSafetySnapshot(op)
	if err != nil {
		return nil, err
	}

	if err = os.Rename(candidate, p.opts.StorePath); err != nil {
		return nil, E(op, KindStorage, fmt.Errorf("failed to swap live store: %w", err))
	}

	return &RestoreResult{
		Name:           name,
		SafetySnapshot: safetyName,
		RestoredAt:     time.Now().UTC(),
	}, nil
}

func (p *Pipeline) stageCandidate(op string, snapshot []byte) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(p.opts.StorePath), ".vento-restore-*")
	if err != nil {
		return "", E(op, KindStorage, fmt.Errorf("failed to create restore staging file: %w", err))
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err = tmp.Chmod(misc.FilePermissions); err != nil {
		cleanup()
		return "", E(op, KindStorage, fmt.Errorf("failed to secure staging file: %w", err))
	}
	if _, err = tmp.Write(snapshot); err != nil {
		cleanup()
		return "", E(op, KindStorage, fmt.Errorf("failed to write staging file: %w", err))
	}
	if err = tmp.Sync(); err != nil {
		cleanup()
		return "", E(op, KindStorage, fmt.Errorf("failed to sync staging file: %w", err))
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", E(op, KindStorage, fmt.Errorf("failed to close staging file: %w", err))
	}

	return tmpPath, nil
}

// takeSafetySnapshot preserves the current live store as an encrypted
// pre-restore artifact. Safety snapshots carry no sidecar and are excluded
// from listings and retention, but they decrypt and restore like any backup.
// A missing live store (first restore on a fresh installation) is not an
// error; no snapshot is taken.
func (p *Pipeline) takeSafetySnapshot(op string) (string, error) {
	current, err := os.ReadFile(p.opts.StorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", E(op, KindStorage, fmt.Errorf("failed to read live store for safety snapshot: %w", err))
	}

	compressed, err := compress(current)
	if err != nil {
		return "", E(op, KindStorage, fmt.Errorf("failed to compress safety snapshot: %w", err))
	}

	envelope, err := p.engine.Encrypt(compressed)
	if err != nil {
		return "", err
	}

	name := persist.SafetyPrefix + time.Now().UTC().Format(backupNameTimeFormat)
	if _, err = p.store.SaveArtifact(name, envelope); err != nil {
		return "", E(op, KindStorage, fmt.Errorf("failed to save safety snapshot: %w", err))
	}

	debug.Print("safety snapshot %s taken before restore", name)
	return name, nil
}
