package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rl1809/bookstore/internal/core/domain"
)

type MinIOAdapter struct {
	client *minio.Client
	bucket string
}

// NewMinIOAdapter connects and creates the bucket when it does not exist.
func NewMinIOAdapter(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinIOAdapter, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
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
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &MinIOAdapter{client: client, bucket: bucket}, nil
}

func (a *MinIOAdapter) FetchEbook(ctx context.Context, key string) ([]byte, error) {
	data, _, err := a.get(ctx, key)
	return data, err
}

func (a *MinIOAdapter) PutEbook(ctx context.Context, key string, data []byte, contentType string) error {
	return a.put(ctx, key, data, contentType)
}

// FetchCover returns domain.ErrCoverNotFound when the object is missing.
func (a *MinIOAdapter) FetchCover(ctx context.Context, key string) ([]byte, string, error) {
	data, contentType, err := a.get(ctx, key)
	if minio.ToErrorResponse(errors.Unwrap(err)).Code == "NoSuchKey" {
		return nil, "", domain.ErrCoverNotFound
	}
	return data, contentType, err
}

func (a *MinIOAdapter) PutCover(ctx context.Context, key string, data []byte, contentType string) error {
	return a.put(ctx, key, data, contentType)
}

func (a *MinIOAdapter) get(ctx context.Context, key string) ([]byte, string, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, "", fmt.Errorf("stat object %s: %w", key, err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", fmt.Errorf("read object %s: %w", key, err)
	}
	return data, info.ContentType, nil
}

func (a *MinIOAdapter) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}
