package storage

import (
	"context"

	"github.com/geocoder89/civichub/internal/config"
)

// FromConfig returns the S3 uploader when S3_ENDPOINT is set, creating the
// bucket if needed, and the local disk uploader otherwise.
func FromConfig(ctx context.Context, cfg config.Config) (Uploader, error) {
	if cfg.S3Endpoint == "" {
		return NewLocalUploader(cfg.UploadDir, cfg.UploadURL)
	}

	up, err := NewS3Uploader(S3Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
		PublicURL: cfg.S3PublicURL,
	})
	if err != nil {
		return nil, err
	}

	if err := up.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return up, nil
}
