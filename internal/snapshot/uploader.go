// Package snapshot uploads catalog snapshots to S3-compatible storage.
// When no bucket is configured the NoopUploader is used and snapshots stay
// local to the snapshot directory.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/jukebox/internal/config"
)

// ErrNotConfigured is returned when S3 snapshot storage is not configured.
var ErrNotConfigured = errors.New("snapshot storage not configured")

// Uploader ships a snapshot file to remote storage.
type Uploader interface {
	// Upload copies the snapshot at filePath and returns the object key.
	Upload(ctx context.Context, filePath string) (string, error)

	// Enabled reports whether uploads leave the machine.
	Enabled() bool
}

// s3Client is the subset of *minio.Client used by S3Uploader.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath string) error
}

type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) FPutObject(ctx context.Context, bucket, objectName, filePath string) error {
	_, err := w.client.FPutObject(ctx, bucket, objectName, filePath, minio.PutObjectOptions{
		ContentType: "application/vnd.sqlite3",
	})
	return err
}

// S3Uploader uploads snapshots to S3-compatible storage.
type S3Uploader struct {
	client s3Client
	bucket string
	prefix string
}

// Upload implements Uploader.
func (u *S3Uploader) Upload(ctx context.Context, filePath string) (string, error) {
	key := objectKey(u.prefix)
	if err := u.client.FPutObject(ctx, u.bucket, key, filePath); err != nil {
		return "", fmt.Errorf("upload snapshot to S3: %w", err)
	}
	return key, nil
}

// Enabled implements Uploader.
func (u *S3Uploader) Enabled() bool { return true }

// NoopUploader is used when S3 storage is not configured.
type NoopUploader struct{}

// Upload is a no-op and returns ErrNotConfigured.
func (NoopUploader) Upload(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

// Enabled implements Uploader.
func (NoopUploader) Enabled() bool { return false }

// NewUploader returns a NoopUploader when bucket is empty and an
// S3Uploader otherwise.
func NewUploader(cfg config.SnapshotStorageConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return NoopUploader{}, nil
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("create S3 client: endpoint is required when bucket is set")
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}
	endpoint := stripScheme(cfg.Endpoint, &useSSL)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Uploader{
		client: &minioClientWrapper{client: client},
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// stripScheme removes an http:// or https:// prefix from endpoint. An
// explicit scheme overrides the use_ssl setting.
func stripScheme(endpoint string, useSSL *bool) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		*useSSL = true
		return strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		*useSSL = false
		return strings.TrimPrefix(endpoint, "http://")
	}
	return endpoint
}

// objectKey returns the object key for the catalog snapshot.
// Convention: {prefix}/snapshot/catalog.db
func objectKey(prefix string) string {
	return path.Join(strings.Trim(prefix, "/"), "snapshot", "catalog.db")
}
