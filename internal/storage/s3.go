package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/officefn/internal/config"
)

// S3Sink uploads artifacts to an S3-compatible bucket (AWS S3, MinIO, ...)
type S3Sink struct {
	client *minio.Client
	bucket string
	prefix string
	region string

	bucketMu    sync.Mutex
	bucketReady bool
}

// NewS3Sink creates the client. No request is made until the first write.
func NewS3Sink(cfg config.S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	log.Debug().
		Str("endpoint", cfg.Endpoint).
		Str("bucket", cfg.Bucket).
		Str("prefix", cfg.Prefix).
		Bool("ssl", cfg.UseSSL).
		Msg("S3 sink initialized")

	return &S3Sink{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: cfg.Region,
	}, nil
}

// Name returns the sink type
func (s *S3Sink) Name() string {
	return "s3"
}

// Key returns the object key of name
func (s *S3Sink) Key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Location returns the s3:// URL of name
func (s *S3Sink) Location(name string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.Key(name))
}

// Write uploads content, creating the bucket on first use if it is missing
func (s *S3Sink) Write(ctx context.Context, name string, content []byte, contentType string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}

	key := s.Key(name)
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "no-cache",
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}

	log.Debug().
		Str("bucket", s.bucket).
		Str("key", key).
		Int64("size", info.Size).
		Str("etag", info.ETag).
		Msg("Artifact uploaded to S3")

	return nil
}

func (s *S3Sink) ensureBucket(ctx context.Context) error {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()
	if s.bucketReady {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
		log.Info().Str("bucket", s.bucket).Msg("Created S3 bucket")
	}

	s.bucketReady = true
	return nil
}

// Close is a no-op; the client holds no long-lived connections of its own
func (s *S3Sink) Close() error {
	return nil
}
