// Package recordings uploads device call recordings to S3-compatible object
// storage so posted call records can reference a durable URL instead of a
// path on the phone.
package recordings

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"callsync_agent/platform/config"
	"callsync_agent/platform/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// presignedTTL is how long download links for uploaded recordings stay valid.
const presignedTTL = 15 * time.Minute

// Service uploads recordings to a MinIO bucket.
type Service struct {
	client      *minio.Client
	bucket      string
	maxFileSize int64
	log         *logger.Logger
}

// NewService creates the uploader, or returns (nil, nil) when MinIO is not
// configured; callers treat a nil service as "recordings disabled".
func NewService(cfg config.StorageConfig, log *logger.Logger) (*Service, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Service{
		client:      client,
		bucket:      cfg.GetMinioBucketRecordings(),
		maxFileSize: cfg.GetMinIOMaxFileSize(),
		log:         log,
	}, nil
}

// EnsureBucket creates the recordings bucket if it does not exist.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Upload pushes the recording at path into the bucket under the call id and
// returns a presigned download URL for the call record.
func (s *Service) Upload(ctx context.Context, callID, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat recording %s: %w", path, err)
	}
	if s.maxFileSize > 0 && info.Size() > s.maxFileSize {
		return "", fmt.Errorf("recording %s exceeds size limit (%d > %d bytes)", path, info.Size(), s.maxFileSize)
	}

	ext := filepath.Ext(path)
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	objectKey := fmt.Sprintf("calls/%s%s", callID, ext)

	if _, err := s.client.FPutObject(ctx, s.bucket, objectKey, path, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("upload recording %s: %w", objectKey, err)
	}
	s.log.Info("recording uploaded", "call_id", callID, "object_key", objectKey, "bytes", info.Size())

	url, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, presignedTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign recording %s: %w", objectKey, err)
	}
	return url.String(), nil
}
