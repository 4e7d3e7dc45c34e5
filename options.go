package vento

import (
	"os"
	"path/filepath"
	"time"

	"github.com/mowgliph/vento/audit"
	"github.com/mowgliph/vento/persist"
)

const (
	// DefaultKeepCount is the number of newest backups retained by an
	// automatic cleanup when the caller does not specify one.
	DefaultKeepCount = 5

	// DefaultLockTimeout bounds how long a pipeline operation waits for the
	// in-process mutation lock before failing with a busy error.
	DefaultLockTimeout = 30 * time.Second

	// BackupNamePrefix prefixes every auto-generated backup name.
	BackupNamePrefix = "vento_backup_"

	// backupNameTimeFormat is the timestamp layout embedded in generated
	// backup names, e.g. vento_backup_20240101_120000.
	backupNameTimeFormat = "20060102_150405"
)

// Options configures a backup pipeline.
//
// Only StorePath is mandatory. Every other field has a usable default so a
// minimal embedding is:
//
//	pipeline, err := vento.New(vento.Options{StorePath: "/var/lib/vento/vento.db"})
type Options struct {
	// StorePath is the path of the live embedded store file that backups
	// snapshot and restores replace. Required.
	StorePath string

	// BackupDir is the directory holding encrypted artifacts and their
	// sidecars. Defaults to <dir of StorePath>/backups.
	BackupDir string

	// KeyDir is the directory holding the installation secret and
	// derivation salt. Defaults to ~/.vento.
	KeyDir string

	// RequiredTables is the structural contract a restore candidate must
	// satisfy. Defaults to the standard inventory schema tables.
	RequiredTables []string

	// KeepCount is the default retention count for CleanupOldBackups.
	// Defaults to DefaultKeepCount.
	KeepCount int

	// LockTimeout bounds the wait for the pipeline mutation lock.
	// Defaults to DefaultLockTimeout.
	LockTimeout time.Duration

	// Audit configures the audit trail. A nil or disabled config installs
	// the no-op logger; backup operations never fail because auditing is
	// unavailable.
	Audit *audit.Config

	// DiagnosticsPath is the file receiving full diagnostic records from
	// the error reporter. Defaults to <BackupDir>/diagnostics.log.
	DiagnosticsPath string

	// Replica optionally configures an S3-compatible object store as an
	// offsite replica target for Replicate. Nil disables replication.
	Replica *persist.S3Config
}

// Validate checks the options and fills defaults in place.
func (o *Options) Validate() error {
	if o.StorePath == "" {
		return Errorf("options", KindValidation, "store path is required")
	}

	if _, err := os.Stat(filepath.Dir(o.StorePath)); err != nil {
		return E("options", KindValidation, err)
	}

	if o.BackupDir == "" {
		o.BackupDir = filepath.Join(filepath.Dir(o.StorePath), "backups")
	}
	if o.DiagnosticsPath == "" {
		o.DiagnosticsPath = filepath.Join(o.BackupDir, "diagnostics.log")
	}
	if o.KeepCount == 0 {
		o.KeepCount = DefaultKeepCount
	}
	if o.KeepCount < 1 {
		return Errorf("options", KindValidation, "keep count must be at least 1, got %d", o.KeepCount)
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = DefaultLockTimeout
	}

	return nil
}

// GenerateBackupName produces a fresh timestamped backup name.
func GenerateBackupName() string {
	return BackupNamePrefix + time.Now().UTC().Format(backupNameTimeFormat)
}
