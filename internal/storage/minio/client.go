// Package minio stores submitted payment proofs in an S3-compatible bucket.
// The object key is the opaque proof reference recorded on a pending
// purchase; nothing else in the system interprets it.
package minio

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	"github.com/credvend/credvend-server/internal/model"
)

// proofKeyPrefix namespaces proof objects inside the bucket.
const proofKeyPrefix = "proofs/"

// NewProofKey returns a fresh opaque key for a payment proof object.
func NewProofKey() string {
	return proofKeyPrefix + uuid.NewString()
}

// minioAPI is the subset of the MinIO client the store uses; mockable in
// tests without a real server.
type minioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

type minioClientWrapper struct{ c *minio.Client }

func (w minioClientWrapper) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return w.c.BucketExists(ctx, bucketName)
}
func (w minioClientWrapper) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return w.c.MakeBucket(ctx, bucketName, opts)
}
func (w minioClientWrapper) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return w.c.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}
func (w minioClientWrapper) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := w.c.GetObject(ctx, bucketName, objectName, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}
func (w minioClientWrapper) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return w.c.RemoveObject(ctx, bucketName, objectName, opts)
}
func (w minioClientWrapper) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return w.c.StatObject(ctx, bucketName, objectName, opts)
}

var _ model.ProofStorage = (*ProofStore)(nil)

// ProofStore is the bucket-backed proof storage.
type ProofStore struct {
	api    minioAPI
	bucket string
}

// NewProofStore creates a proof store on top of a real *minio.Client,
// ensuring the bucket exists.
func NewProofStore(ctx context.Context, client *minio.Client, bucket string) (*ProofStore, error) {
	return NewProofStoreWithAPI(ctx, minioClientWrapper{c: client}, bucket)
}

// NewProofStoreWithAPI allows injecting a mockable API (used in tests).
func NewProofStoreWithAPI(ctx context.Context, api minioAPI, bucket string) (*ProofStore, error) {
	s := &ProofStore{
		api:    api,
		bucket: bucket,
	}

	if err := s.ensureBucketExists(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}

	return s, nil
}

func (s *ProofStore) ensureBucketExists(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// Upload stores a proof under the given key.
func (s *ProofStore) Upload(ctx context.Context, key string, reader io.Reader) error {
	_, err := s.api.PutObject(ctx, s.bucket, key, reader, -1, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to upload proof: %w", err)
	}
	return nil
}

// Download returns the proof body for the given key.
func (s *ProofStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.api.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get proof: %w", err)
	}
	return obj, nil
}

// Delete removes the proof for the given key.
func (s *ProofStore) Delete(ctx context.Context, key string) error {
	if err := s.api.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete proof: %w", err)
	}
	return nil
}

// Exists reports whether a proof is stored under the given key.
func (s *ProofStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.api.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat proof: %w", err)
	}
	return true, nil
}
