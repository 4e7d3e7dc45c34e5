package persist

import (
	"errors"
	"strings"
	"time"
)

const (
	// ArtifactExt is the extension of encrypted backup artifact files.
	ArtifactExt = ".enc"

	// SidecarExt is the extension of the metadata file persisted next to
	// each artifact, sharing its base name.
	SidecarExt = ".meta"

	// SafetyPrefix marks the automatic pre-restore snapshot of the live
	// store. Safety snapshots carry no sidecar and are excluded from
	// listings so they never count against retention.
	SafetyPrefix = "pre_restore_"

	// MetadataVersion is the current sidecar schema version.
	MetadataVersion = "1.0"
)

// ErrNotFound reports a missing artifact or sidecar.
var ErrNotFound = errors.New("artifact not found")

// Metadata is the sidecar record persisted next to each artifact.
type Metadata struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	Version   string    `json:"version"`
}

// ArtifactInfo pairs an artifact with its sidecar metadata. Metadata is nil
// when the sidecar is absent or unreadable; callers fall back to the
// stat-derived Size and ModTime, with the checksum then unknown.
type ArtifactInfo struct {
	Path     string
	Name     string
	Size     int64
	ModTime  time.Time
	Metadata *Metadata
}

// CreatedAt returns the best-known creation time of the artifact: the
// sidecar timestamp when present, otherwise the filesystem modification time.
func (a ArtifactInfo) CreatedAt() time.Time {
	if a.Metadata != nil && !a.Metadata.CreatedAt.IsZero() {
		return a.Metadata.CreatedAt
	}
	return a.ModTime
}

// Checksum returns the recorded content checksum, or "" when unknown.
func (a ArtifactInfo) Checksum() string {
	if a.Metadata != nil {
		return a.Metadata.Checksum
	}
	return ""
}

// Store defines the interface for persisting backup artifacts and their
// sidecar metadata. All artifact data passed to this interface is assumed to
// be encrypted by the pipeline layer; the store never sees plaintext.
type Store interface {

	// SaveArtifact persists an artifact under the given backup name using
	// a write-to-temp-then-rename strategy: a crash mid-write can never
	// leave a truncated artifact visible at the canonical path. Returns
	// the final artifact path (or backend key).
	SaveArtifact(name string, data []byte) (string, error)

	// LoadArtifact reads the full artifact at the given path.
	// Returns an error wrapping ErrNotFound when the artifact is absent.
	LoadArtifact(path string) ([]byte, error)

	// ArtifactExists reports whether an artifact is present at path.
	ArtifactExists(path string) (bool, error)

	// SaveSidecar persists the metadata record next to the artifact with
	// restrictive permissions.
	SaveSidecar(artifactPath string, meta *Metadata) error

	// LoadSidecar reads the metadata record for the artifact.
	// Returns an error wrapping ErrNotFound when the sidecar is absent.
	LoadSidecar(artifactPath string) (*Metadata, error)

	// ListArtifacts enumerates artifacts paired with their sidecar
	// metadata where readable. Safety snapshots are excluded. Order is
	// unspecified; callers sort.
	ListArtifacts() ([]ArtifactInfo, error)

	// DeleteArtifact removes the artifact and its sidecar. It is
	// idempotent: it returns false (not an error) when the artifact was
	// already absent, true once removal succeeds, and is safe to call
	// when only one of the two files exists.
	DeleteArtifact(path string) (bool, error)

	// Ping tests connectivity for remote backends.
	Ping() error

	// Close releases any resources the store holds.
	Close() error

	// GetType returns the backend type ("filesystem", "s3").
	GetType() string
}

// SidecarPath derives the sidecar path/key from an artifact path/key.
func SidecarPath(artifactPath string) string {
	return strings.TrimSuffix(artifactPath, ArtifactExt) + SidecarExt
}

// IsSafetySnapshot reports whether the base artifact name marks an automatic
// pre-restore snapshot.
func IsSafetySnapshot(baseName string) bool {
	return strings.HasPrefix(baseName, SafetyPrefix)
}

// StoreConfig provides configuration for the different storage backends.
type StoreConfig struct {
	// Type specifies the storage backend to be used.
	Type StoreType `json:"type"`

	// Config contains backend-specific settings, e.g. "base_path" for the
	// filesystem store or endpoint/bucket/credentials for S3.
	Config map[string]interface{} `json:"config"`
}

// StoreType represents the different types of storage backends.
type StoreType string

const (
	// StoreTypeFileSystem indicates the local filesystem backend.
	StoreTypeFileSystem StoreType = "filesystem"

	// StoreTypeS3 indicates an S3-compatible object store backend, used
	// for offsite artifact replicas.
	StoreTypeS3 StoreType = "s3"
)
