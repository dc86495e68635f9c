package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore locates content in an S3 compatible bucket and hands out presigned GET
// URLs.
type ObjectStore struct {
	conn   *minio.Client
	bucket string
	expiry time.Duration
}

// NewObjectStore connects to the object storage and checks that the bucket exists.
func NewObjectStore(ctx context.Context, endpoint, accessKeyID, secretAccessKey, bucket string, useSSL bool, expiry time.Duration) (*ObjectStore, error) {
	conn, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := conn.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to reach object storage: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", bucket)
	}

	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &ObjectStore{conn: conn, bucket: bucket, expiry: expiry}, nil
}

// Locate checks that the object exists before presigning it.
func (o *ObjectStore) Locate(ctx context.Context, contentID string) (string, error) {
	if _, err := o.conn.StatObject(ctx, o.bucket, contentID, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", fmt.Errorf("%w: %s", ErrContentNotFound, contentID)
		}
		return "", err
	}

	presigned, err := o.conn.PresignedGetObject(ctx, o.bucket, contentID, o.expiry, nil)
	if err != nil {
		return "", err
	}
	return presigned.String(), nil
}
