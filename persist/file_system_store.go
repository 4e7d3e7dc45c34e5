package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mowgliph/vento/internal/debug"
)

const (
	FilePermissions os.FileMode = 0600
	DirPermissions  os.FileMode = 0700
)

var backupNameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// Ensure FileSystemStore implements Store interface
var _ Store = (*FileSystemStore)(nil)

// FileSystemStore implements Store on the local filesystem. All writes go
// through a temp-file-then-rename path inside the same directory, so readers
// only ever observe fully formed artifacts.
type FileSystemStore struct {
	baseDir string // backup artifacts + sidecars
	tempDir string // staging area for atomic writes, baseDir/temp/
}

// NewFileSystemStore initializes a FileSystemStore rooted at baseDir,
// creating the directory tree with owner-only permissions.
func NewFileSystemStore(baseDir string) (*FileSystemStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory cannot be empty")
	}

	fs := &FileSystemStore{
		baseDir: baseDir,
		tempDir: filepath.Join(baseDir, "temp"),
	}

	for _, dir := range []string{fs.baseDir, fs.tempDir} {
		if err := os.MkdirAll(dir, DirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// Tighten the base dir in case it pre-existed with looser permissions
	if err := os.Chmod(fs.baseDir, DirPermissions); err != nil {
		return nil, fmt.Errorf("failed to secure backup directory: %w", err)
	}

	return fs, nil
}

// NewFileSystemStoreFromConfig creates a FileSystemStore from StoreConfig
func NewFileSystemStoreFromConfig(config StoreConfig) (*FileSystemStore, error) {
	basePath, ok := config.Config["base_path"].(string)
	if !ok {
		return nil, fmt.Errorf("base_path is required for filesystem store")
	}
	return NewFileSystemStore(basePath)
}

// BaseDir returns the directory holding artifacts and sidecars.
func (fs *FileSystemStore) BaseDir() string {
	return fs.baseDir
}

// TempDir returns the staging directory used for atomic writes. The pipeline
// also uses it for snapshot staging and restore candidates so that temp files
// share the artifact filesystem and renames stay atomic.
func (fs *FileSystemStore) TempDir() string {
	return fs.tempDir
}

// SaveArtifact writes the artifact for the given backup name atomically and
// returns its final path.
func (fs *FileSystemStore) SaveArtifact(name string, data []byte) (string, error) {
	if err := ValidateBackupName(name); err != nil {
		return "", err
	}

	finalPath := filepath.Join(fs.baseDir, name+ArtifactExt)
	if err := fs.writeSecureFile(finalPath, data); err != nil {
		return "", fmt.Errorf("failed to save artifact %s: %w", name, err)
	}

	debug.Print("saved artifact %s (%d bytes)", finalPath, len(data))
	return finalPath, nil
}

// LoadArtifact reads the artifact at path.
func (fs *FileSystemStore) LoadArtifact(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return data, nil
}

// ArtifactExists reports whether an artifact is present at path.
func (fs *FileSystemStore) ArtifactExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat artifact: %w", err)
}

// SaveSidecar persists the metadata record next to the artifact.
func (fs *FileSystemStore) SaveSidecar(artifactPath string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}

	if err = fs.writeSecureFile(SidecarPath(artifactPath), data); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

// LoadSidecar reads the metadata record for the artifact.
func (fs *FileSystemStore) LoadSidecar(artifactPath string) (*Metadata, error) {
	data, err := os.ReadFile(SidecarPath(artifactPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: metadata for %s", ErrNotFound, filepath.Base(artifactPath))
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err = json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &meta, nil
}

// ListArtifacts enumerates artifacts in the backup directory, pairing each
// with its sidecar where readable. Safety snapshots are skipped.
func (fs *FileSystemStore) ListArtifacts() ([]ArtifactInfo, error) {
	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ArtifactInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	infos := make([]ArtifactInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ArtifactExt) {
			continue
		}

		baseName := strings.TrimSuffix(entry.Name(), ArtifactExt)
		if IsSafetySnapshot(baseName) {
			continue
		}

		stat, err := entry.Info()
		if err != nil {
			// Artifact disappeared between ReadDir and stat
			continue
		}

		path := filepath.Join(fs.baseDir, entry.Name())
		info := ArtifactInfo{
			Path:    path,
			Name:    baseName,
			Size:    stat.Size(),
			ModTime: stat.ModTime(),
		}

		// Sidecar is optional: unreadable metadata degrades to
		// stat-derived fields, it never fails the listing
		if meta, err := fs.LoadSidecar(path); err == nil {
			info.Metadata = meta
		}

		infos = append(infos, info)
	}

	return infos, nil
}

// DeleteArtifact removes the artifact and its sidecar. Idempotent.
func (fs *FileSystemStore) DeleteArtifact(path string) (bool, error) {
	removed := false

	err := os.Remove(path)
	switch {
	case err == nil:
		removed = true
	case !os.IsNotExist(err):
		return false, fmt.Errorf("failed to delete artifact: %w", err)
	}

	// The sidecar may exist without the artifact and vice versa
	if err = os.Remove(SidecarPath(path)); err != nil && !os.IsNotExist(err) {
		return removed, fmt.Errorf("failed to delete metadata: %w", err)
	}

	return removed, nil
}

func (fs *FileSystemStore) Ping() error {
	_, err := os.Stat(fs.baseDir)
	return err
}

func (fs *FileSystemStore) Close() error {
	return nil
}

func (fs *FileSystemStore) GetType() string {
	return string(StoreTypeFileSystem)
}

// writeSecureFile writes data to a temp file in the staging directory, syncs
// it, locks down permissions, and renames it over the final path. The rename
// is the commit point: a crash at any earlier step leaves nothing visible at
// the canonical path.
func (fs *FileSystemStore) writeSecureFile(finalPath string, data []byte) error {
	tmp, err := os.CreateTemp(fs.tempDir, filepath.Base(finalPath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err = tmp.Chmod(FilePermissions); err != nil {
		cleanup()
		return fmt.Errorf("failed to set temp file permissions: %w", err)
	}

	if _, err = tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err = os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	return nil
}

// ValidateBackupName rejects names that are empty, contain characters outside
// the filesystem-safe set, or carry path traversal sequences. Every layer
// that joins a caller-supplied name onto a directory must run it before the
// join.
func ValidateBackupName(name string) error {
	if name == "" {
		return fmt.Errorf("backup name cannot be empty")
	}
	if !backupNameRegex.MatchString(name) {
		return fmt.Errorf("backup name contains characters that are not filesystem-safe")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("backup name cannot contain path traversal sequences")
	}
	return nil
}
