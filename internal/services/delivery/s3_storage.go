package delivery

import (
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
)

// S3Storage serves catalog objects from an S3-compatible bucket. The stored
// reference is the object key.
type S3Storage struct {
	client *minio.Client
	bucket string
}

func NewS3Storage(client *minio.Client, bucket string) *S3Storage {
	return &S3Storage{client: client, bucket: bucket}
}

func (s *S3Storage) Fetch(ctx context.Context, key string) (Object, error) {
	if s.client == nil {
		return Object{}, fmt.Errorf("s3 client is nil")
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return Object{}, fmt.Errorf("get object %s: %w", key, err)
	}

	// GetObject is lazy; Stat surfaces missing-key errors before we hand the
	// reader to the sender.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return Object{}, fmt.Errorf("object %s: %s: %w", key, resp.Code, ErrDeliveryPermanent)
		}
		return Object{}, fmt.Errorf("stat object %s: %w", key, err)
	}

	return Object{
		Body:        obj,
		Size:        info.Size,
		Name:        path.Base(key),
		ContentType: info.ContentType,
	}, nil
}
