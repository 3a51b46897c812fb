package config

import (
	"context"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// NewMinIOClient connects to the transcript bucket, creating it on first use.
func NewMinIOClient(ctx context.Context, cfg Storage) (*minio.Client, error) {
	client, err := minio.New(cfg.MinIOURL, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIOAccessID, cfg.MinIOSecretKey, ""),
		Secure: cfg.MinIOSecure,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.MinIOBucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinIOBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}

	return client, nil
}
