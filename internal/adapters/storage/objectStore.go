package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"feedcore/internal/core/errs"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// ObjectStoreMinio stores media blobs in one bucket.
type ObjectStoreMinio struct {
	client  Client
	bucket  string
	maxSize int64
	logger  *zap.Logger
}

// NewObjectStoreMinio builds the store. maxSize caps how much of an object Get reads.
func NewObjectStoreMinio(client Client, bucket string, maxSize int64, logger *zap.Logger) *ObjectStoreMinio {
	return &ObjectStoreMinio{client: client, bucket: bucket, maxSize: maxSize, logger: logger}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *ObjectStoreMinio) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return classify(err, s.bucket)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return classify(err, s.bucket)
	}
	s.logger.Info("created bucket", zap.String("bucket", s.bucket))
	return nil
}

func (s *ObjectStoreMinio) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, classify(err, key)
}

// PutIfAbsent writes data under key unless an object is already there. Keys
// are content-derived, so a concurrent writer racing past the check stores
// identical bytes.
func (s *ObjectStoreMinio) PutIfAbsent(ctx context.Context, key string, data []byte, contentType string) (bool, error) {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return false, classify(err, key)
	}
	s.logger.Debug("stored object", zap.String("key", key), zap.Int("bytes", len(data)))
	return true, nil
}

func (s *ObjectStoreMinio) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify(err, key)
	}
	defer obj.Close()

	var r io.Reader = obj
	if s.maxSize > 0 {
		r = io.LimitReader(obj, s.maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, classify(err, key)
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return nil, errs.Validation("object %s exceeds %d bytes", key, s.maxSize)
	}
	return data, nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}

func classify(err error, key string) error {
	var netErr net.Error
	switch {
	case isNoSuchKey(err):
		return errs.NotFound("object", key)
	case minio.ToErrorResponse(err).Code == "QuotaExceeded", minio.ToErrorResponse(err).Code == "XMinioStorageFull":
		return errs.Capacity(err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return errs.Transient(err)
	}
	return errs.Transient(fmt.Errorf("object %s: %w", key, err))
}
