package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const statementContentType = "application/json"

// MinioArchive keeps raw GSTR-2B downloads in an S3-compatible bucket.
type MinioArchive struct {
	client *minio.Client
	bucket string
}

func NewMinioArchive(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioArchive, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("minio archive: bucket name is required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio archive: %w", err)
	}
	return &MinioArchive{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the bucket on first start.
func (m *MinioArchive) EnsureBucket(ctx context.Context) error {
	found, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !found {
		return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// Store uploads raw under key and returns its s3:// location.
func (m *MinioArchive) Store(ctx context.Context, key string, raw []byte) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: statementContentType,
	})
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", key, err)
	}
	return objectURI(m.bucket, key), nil
}

func objectURI(bucket, key string) string {
	return "s3://" + bucket + "/" + strings.TrimPrefix(key, "/")
}
