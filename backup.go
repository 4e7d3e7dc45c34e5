package vento

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"os"
	"time"

	"github.com/mowgliph/vento/audit"
	"github.com/mowgliph/vento/internal/crypto"
	"github.com/mowgliph/vento/internal/debug"
	"github.com/mowgliph/vento/persist"
)

// BackupResult describes a successfully created backup.
type BackupResult struct {
	Name         string
	ArtifactPath string
	Size         int64
	Checksum     string
	CreatedAt    time.Time
}

// Create snapshots the live store and persists it as an encrypted artifact
// plus a metadata sidecar. When name is empty a timestamped name is
// generated. The write pipeline is snapshot, checksum, compress, encrypt,
// store; the checksum in the sidecar covers the raw snapshot bytes, before
// compression, so a restore can verify end to end that the recovered store
// file is byte-identical to what was backed up.
//
// On any failure every partial output is removed: the store never gains an
// artifact without its sidecar or vice versa.
func (p *Pipeline) Create(name string) (*BackupResult, error) {
	const op = "backup.create"

	if name == "" {
		name = GenerateBackupName()
	}

	if err := p.acquire(op); err != nil {
		p.auditEvent(audit.EventDataCreate, name, "create_backup", false,
			map[string]interface{}{"reason": "lock_timeout"})
		return nil, err
	}
	defer p.release()

	result, err := p.createLocked(op, name)
	if err != nil {
		p.auditEvent(audit.EventDataCreate, name, "create_backup", false,
			map[string]interface{}{"kind": KindOf(err).String()})
		return nil, err
	}

	p.auditEvent(audit.EventDataCreate, name, "create_backup", true,
		map[string]interface{}{
			"size_bytes": result.Size,
			"checksum":   result.Checksum,
		})
	return result, nil
}

func (p *Pipeline) createLocked(op, name string) (*BackupResult, error) {
	snapshot, err := p.snapshotLiveStore(op)
	if err != nil {
		return nil, err
	}

	checksum := crypto.CalculateChecksum(snapshot)

	compressed, err := compress(snapshot)
	if err != nil {
		return nil, E(op, KindStorage, fmt.Errorf("failed to compress snapshot: %w", err))
	}

	envelope, err := p.engine.Encrypt(compressed)
	if err != nil {
		return nil, err
	}

	artifactPath, err := p.store.SaveArtifact(name, envelope)
	if err != nil {
		return nil, E(op, KindStorage, err)
	}

	createdAt := time.Now().UTC()
	meta := &persist.Metadata{
		Name:      name,
		CreatedAt: createdAt,
		Size:      int64(len(snapshot)),
		Checksum:  checksum,
		Version:   persist.MetadataVersion,
	}

	if err = p.store.SaveSidecar(artifactPath, meta); err != nil {
		// Roll back the artifact so a half-written backup never appears
		// in listings or survives a crash as an orphan.
		if _, rmErr := p.store.DeleteArtifact(artifactPath); rmErr != nil {
			debug.Print("failed to remove orphaned artifact %s: %v", artifactPath, rmErr)
		}
		return nil, E(op, KindStorage, err)
	}

	return &BackupResult{
		Name:         name,
		ArtifactPath: artifactPath,
		Size:         int64(len(snapshot)),
		Checksum:     checksum,
		CreatedAt:    createdAt,
	}, nil
}

// snapshotLiveStore reads the live store file in full. The mutation lock is
// held, so no concurrent restore can swap the file mid-read.
func (p *Pipeline) snapshotLiveStore(op string) ([]byte, error) {
	data, err := os.ReadFile(p.opts.StorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, E(op, KindNotFound, fmt.Errorf("live store not found at configured path: %w", err))
		}
		return nil, E(op, KindStorage, fmt.Errorf("failed to read live store: %w", err))
	}
	if len(data) == 0 {
		return nil, Errorf(op, KindValidation, "live store file is empty")
	}
	return data, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err = buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
