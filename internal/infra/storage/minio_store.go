package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"multimodal-agent/internal/config"
	"multimodal-agent/internal/domain"
	"multimodal-agent/internal/domain/ports/repository"
)

var _ repository.ArtifactStore = (*MinioStore)(nil)

// MinioStore keeps artifacts in a MinIO/S3 bucket under
// jobs/<jobID>/<ulid>-<key>. The object name embeds the logical key so a
// repeated Put for the same (jobID, key) can be detected and refused.
type MinioStore struct {
	cli    *minio.Client
	bucket string
	log    *zerolog.Logger
	// entropy feeds ulid generation; ulids make refs lexically sortable by
	// creation time. Locked because Put runs on many worker goroutines.
	entropy *ulid.LockedMonotonicReader
}

func NewMinioStore(ctx context.Context, cfg *config.StorageConfig, logger *zerolog.Logger) (*MinioStore, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	s := &MinioStore{
		cli:     cli,
		bucket:  cfg.Bucket,
		log:     logger,
		entropy: &ulid.LockedMonotonicReader{
			MonotonicReader: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		},
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	exists, err := s.cli.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket check: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.cli.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	s.log.Info().Str("bucket", s.bucket).Msg("created artifact bucket")
	return nil
}

func (s *MinioStore) Put(ctx context.Context, jobID, key string, data []byte, contentType string) (string, error) {
	if jobID == "" || key == "" {
		return "", domain.ErrInvalidArgument
	}
	// Write-once: refuse if any object for this (job, key) already exists.
	switch _, err := s.Resolve(ctx, jobID, key); {
	case err == nil:
		return "", domain.ErrConflict
	case !errors.Is(err, domain.ErrNotFound):
		return "", err
	}

	ref := fmt.Sprintf("jobs/%s/%s-%s", jobID, ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy), key)
	_, err := s.cli.PutObject(ctx, s.bucket, ref, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", ref, err)
	}
	s.log.Debug().Str("ref", ref).Int("size", len(data)).Msg("artifact stored")
	return ref, nil
}

func (s *MinioStore) Resolve(ctx context.Context, jobID, key string) (string, error) {
	prefix := fmt.Sprintf("jobs/%s/", jobID)
	suffix := "-" + key
	for obj := range s.cli.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return "", obj.Err
		}
		if len(obj.Key) >= len(prefix)+len(suffix) && obj.Key[len(obj.Key)-len(suffix):] == suffix {
			return obj.Key, nil
		}
	}
	return "", domain.ErrNotFound
}

func (s *MinioStore) Get(ctx context.Context, ref string) ([]byte, error) {
	obj, err := s.cli.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		var mErr minio.ErrorResponse
		if errors.As(err, &mErr) && mErr.Code == "NoSuchKey" {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return data, nil
}
