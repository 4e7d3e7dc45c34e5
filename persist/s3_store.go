package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mowgliph/vento/internal/debug"
)

const (
	ctxTimeout = 10 * time.Second
)

// Ensure S3Store implements Store interface
var _ Store = (*S3Store)(nil)

// S3Config holds the connection settings for an S3-compatible object store.
type S3Config struct {
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	UseSSL          bool   `json:"use_ssl"`
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	KeyPrefix       string `json:"key_prefix,omitempty"`
}

// S3Store implements Store using an S3-compatible backend via MinIO. It is
// used as an offsite replica target for backup artifacts.
//
// Object structure:
//
//	bucket/
//	└── [keyPrefix/]
//	    ├── vento_backup_20240101_120000.enc   # encrypted artifact
//	    ├── vento_backup_20240101_120000.meta  # sidecar metadata
//	    └── ...
type S3Store struct {
	client     *minio.Client
	bucketName string
	keyPrefix  string
}

// NewS3Store initializes an S3Store from config, establishing a connection
// and verifying the bucket exists.
func NewS3Store(config S3Config) (*S3Store, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint cannot be empty")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket cannot be empty")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	exists, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", config.Bucket)
	}

	prefix := strings.Trim(config.KeyPrefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &S3Store{
		client:     client,
		bucketName: config.Bucket,
		keyPrefix:  prefix,
	}, nil
}

// NewS3StoreFromConfig creates an S3Store from a generic StoreConfig.
func NewS3StoreFromConfig(config StoreConfig) (*S3Store, error) {
	data, err := json.Marshal(config.Config)
	if err != nil {
		return nil, fmt.Errorf("invalid s3 store config: %w", err)
	}
	var s3cfg S3Config
	if err = json.Unmarshal(data, &s3cfg); err != nil {
		return nil, fmt.Errorf("invalid s3 store config: %w", err)
	}
	return NewS3Store(s3cfg)
}

// SaveArtifact uploads the artifact under the given backup name. Object
// stores commit PutObject atomically, so no temp-and-rename dance is needed:
// readers never observe a partial object.
func (s *S3Store) SaveArtifact(name string, data []byte) (string, error) {
	if err := ValidateBackupName(name); err != nil {
		return "", err
	}

	key := s.keyPrefix + name + ArtifactExt

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data),
		int64(len(data)), minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact %s: %w", name, err)
	}

	debug.Print("uploaded artifact %s (%d bytes)", key, len(data))
	return key, nil
}

// LoadArtifact downloads the artifact stored under key.
func (s *S3Store) LoadArtifact(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	return data, nil
}

// ArtifactExists reports whether an object is present under key.
func (s *S3Store) ArtifactExists(key string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	_, err := s.client.StatObject(ctx, s.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat artifact: %w", err)
	}
	return true, nil
}

// SaveSidecar uploads the metadata record next to the artifact.
func (s *S3Store) SaveSidecar(artifactKey string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	key := SidecarPath(artifactKey)
	_, err = s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data),
		int64(len(data)), minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to upload metadata: %w", err)
	}
	return nil
}

// LoadSidecar downloads the metadata record for the artifact.
func (s *S3Store) LoadSidecar(artifactKey string) (*Metadata, error) {
	data, err := s.LoadArtifact(SidecarPath(artifactKey))
	if err != nil {
		return nil, err
	}

	var meta Metadata
	if err = json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return &meta, nil
}

// ListArtifacts enumerates artifact objects under the key prefix, pairing
// each with its sidecar where readable. Safety snapshots are skipped.
func (s *S3Store) ListArtifacts() ([]ArtifactInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	var infos []ArtifactInfo
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    s.keyPrefix,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list artifacts: %w", obj.Err)
		}
		if !strings.HasSuffix(obj.Key, ArtifactExt) {
			continue
		}

		baseName := strings.TrimSuffix(strings.TrimPrefix(obj.Key, s.keyPrefix), ArtifactExt)
		if IsSafetySnapshot(baseName) {
			continue
		}

		info := ArtifactInfo{
			Path:    obj.Key,
			Name:    baseName,
			Size:    obj.Size,
			ModTime: obj.LastModified,
		}

		if meta, err := s.LoadSidecar(obj.Key); err == nil {
			info.Metadata = meta
		}

		infos = append(infos, info)
	}

	return infos, nil
}

// DeleteArtifact removes the artifact and its sidecar objects. Idempotent:
// RemoveObject succeeds for absent keys, so existence is checked first to
// produce the correct return value.
func (s *S3Store) DeleteArtifact(key string) (bool, error) {
	existed, err := s.ArtifactExists(key)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	if err = s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return false, fmt.Errorf("failed to delete artifact: %w", err)
	}

	if err = s.client.RemoveObject(ctx, s.bucketName, SidecarPath(key), minio.RemoveObjectOptions{}); err != nil {
		return existed, fmt.Errorf("failed to delete metadata: %w", err)
	}

	return existed, nil
}

// Ping verifies connectivity to the backend.
func (s *S3Store) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("s3 connectivity check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s no longer exists", s.bucketName)
	}
	return nil
}

func (s *S3Store) Close() error {
	return nil
}

func (s *S3Store) GetType() string {
	return string(StoreTypeS3)
}
