package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// PresignTTL is the validity window of temporary fetch links.
const PresignTTL = time.Hour

// BlobStore is the object storage contract used by the router, the upload
// endpoint and the close-time purge.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PresignedURL(ctx context.Context, key string) (string, error)
	Remove(ctx context.Context, key string) error
	// PurgePrefix removes every object under the prefix; used on chat close
	// with the "<chat_id>/" namespace.
	PurgePrefix(ctx context.Context, prefix string) error
}

// MinioStore is the MinIO implementation of BlobStore.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects the client and ensures the bucket exists.
func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, secure bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("make bucket: %w", err)
		}
		log.Printf("created bucket %s", bucket)
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

// PresignedURL returns a temporary GET link for the object.
func (s *MinioStore) PresignedURL(ctx context.Context, key string) (string, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return "", fmt.Errorf("stat object %s: %w", key, err)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, PresignTTL, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (s *MinioStore) Remove(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

func (s *MinioStore) PurgePrefix(ctx context.Context, prefix string) error {
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	var lastErr error
	for obj := range objects {
		if obj.Err != nil {
			lastErr = obj.Err
			continue
		}
		if err := s.Remove(ctx, obj.Key); err != nil {
			log.Printf("purge %s: %v", obj.Key, err)
			lastErr = err
		}
	}
	return lastErr
}
