package vento

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/mowgliph/vento/audit"
	"github.com/mowgliph/vento/internal/debug"
	"github.com/mowgliph/vento/internal/mem"
	"github.com/mowgliph/vento/persist"
)

// Pipeline orchestrates encrypted backup and restore of the live embedded
// store. It owns the key material, the crypto engine, the artifact store, the
// structural verifier, the audit trail, and the error reporter, and it
// serializes every mutating operation through a single advisory lock.
//
// CONCURRENCY:
// Create, Restore, Delete, and CleanupOldBackups are mutually exclusive
// within a process. A second mutation arriving while one is in flight waits
// up to Options.LockTimeout and then fails with a busy error instead of
// queueing indefinitely. List and Info take read snapshots without the lock.
//
// A Pipeline is safe for concurrent use by multiple goroutines.
// artifactStore is the store contract the pipeline needs from its local
// backend: the generic artifact operations plus a resolvable base directory.
type artifactStore interface {
	persist.Store
	BaseDir() string
}

type Pipeline struct {
	opts     Options
	keys     *KeyManager
	engine   *Engine
	store    artifactStore
	replica  persist.Store
	verifier *Verifier
	auditor  audit.Logger
	reporter *Reporter

	// Buffered depth-one channel used as the mutation semaphore.
	lock chan struct{}
}

// New creates a fully wired backup pipeline from options. Key material is
// loaded (or generated on first use), the symmetric key is derived, and the
// artifact store and audit trail are initialized. The returned pipeline is
// ready for use; Close releases its resources.
func New(options Options) (*Pipeline, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}

	// Best effort: keep derived key material out of swap. Reduced
	// protection is logged, never fatal.
	if level, err := mem.Lock(); err != nil || level != mem.ProtectionFull {
		debug.Print("memory protection degraded (level=%d err=%v)", level, err)
	}

	keys, err := NewKeyManager(options.KeyDir)
	if err != nil {
		return nil, err
	}

	secret, err := keys.GetOrCreateSecret()
	if err != nil {
		return nil, err
	}
	salt, err := keys.GetOrCreateSalt()
	if err != nil {
		return nil, err
	}
	derived, err := keys.DeriveKey(secret, salt)
	if err != nil {
		return nil, err
	}

	engine, err := NewEngine(derived)
	if err != nil {
		return nil, err
	}

	store, err := persist.NewFileSystemStore(options.BackupDir)
	if err != nil {
		return nil, E("pipeline.init", KindStorage, err)
	}

	var replica persist.Store
	if options.Replica != nil {
		replica, err = persist.NewS3Store(*options.Replica)
		if err != nil {
			return nil, E("pipeline.init", KindStorage, fmt.Errorf("failed to connect replica store: %w", err))
		}
	}

	auditor, err := audit.NewLogger(options.Audit)
	if err != nil {
		return nil, E("pipeline.init", KindStorage, fmt.Errorf("failed to initialize audit trail: %w", err))
	}

	verifier := NewVerifier()
	if len(options.RequiredTables) > 0 {
		verifier = NewVerifierWithTables(options.RequiredTables)
	}

	return &Pipeline{
		opts:     options,
		keys:     keys,
		engine:   engine,
		store:    store,
		replica:  replica,
		verifier: verifier,
		auditor:  auditor,
		reporter: NewReporter(options.DiagnosticsPath),
		lock:     make(chan struct{}, 1),
	}, nil
}

// Reporter returns the error reporter wired into the pipeline, for embedders
// that need to convert failures into user-facing reports.
func (p *Pipeline) Reporter() *Reporter {
	return p.reporter
}

// AuditQuery retrieves audit trail records matching the given filters. Not
// every audit backend supports querying; syslog, for one, is write-only.
func (p *Pipeline) AuditQuery(options audit.QueryOptions) (audit.QueryResult, error) {
	result, err := p.auditor.Query(options)
	if err != nil {
		return result, E("audit.query", KindStorage, err)
	}
	return result, nil
}

// Close releases the pipeline's resources: the audit trail backend, the
// artifact stores, and the process memory locks.
func (p *Pipeline) Close() error {
	var firstErr error
	if err := p.auditor.Close(); err != nil {
		firstErr = err
	}
	if p.replica != nil {
		if err := p.replica.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := p.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := mem.Unlock(); err != nil {
		debug.Print("failed to release memory locks: %v", err)
	}
	return firstErr
}

// acquire takes the mutation lock, waiting up to the configured timeout.
// Callers must release() once the mutation completes.
func (p *Pipeline) acquire(op string) error {
	select {
	case p.lock <- struct{}{}:
		return nil
	case <-time.After(p.opts.LockTimeout):
		return Errorf(op, KindBusy, "another backup operation is in progress")
	}
}

func (p *Pipeline) release() {
	<-p.lock
}

// artifactPath resolves a backup name to its artifact path in the local store.
// Callers must validate the name first: artifactPath joins it blindly.
func (p *Pipeline) artifactPath(name string) string {
	return filepath.Join(p.store.BaseDir(), name+persist.ArtifactExt)
}

// validateName rejects backup names that are empty, not filesystem-safe, or
// carry traversal sequences. Every operation that resolves a caller-supplied
// name into the backup directory runs it before the join.
func validateName(op, name string) error {
	if err := persist.ValidateBackupName(name); err != nil {
		return E(op, KindValidation, err)
	}
	return nil
}

// auditEvent records a pipeline event. Delivery is best-effort: a failed
// append never aborts the audited operation, but the drop itself is recorded
// in the diagnostics log so it is not silent.
func (p *Pipeline) auditEvent(eventType, resource, action string, success bool, details map[string]interface{}) {
	err := p.auditor.Log(audit.Event{
		EventType: eventType,
		Resource:  resource,
		Action:    action,
		Success:   success,
		Origin:    "pipeline",
		Details:   details,
	})
	if err != nil {
		debug.Print("audit event dropped: %v", err)
		p.reporter.Report(E("audit.log", KindStorage, err))
	}
}
