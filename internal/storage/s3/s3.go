package s3

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"classdesk/internal/storage"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config 包含 S3/MinIO 存储所需的配置。
type Config struct {
	Endpoint  string // 不含协议，如 "localhost:9000" 或 "s3.amazonaws.com"
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool // 是否使用 HTTPS
	PathStyle bool // 是否使用路径风格（MinIO 需要 true）
}

// Store 实现了 storage.BlobStore 接口，使用 S3 兼容存储。
type Store struct {
	client *minio.Client
	bucket string
	region string
}

// New 创建新的 S3 存储实例。
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	// 检查 bucket 是否存在，不存在则创建
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{
			Region: cfg.Region,
		}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
	}, nil
}

// Put 将对象写入 S3 存储。
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (storage.Location, error) {
	if s == nil || s.client == nil {
		return storage.Location{}, fmt.Errorf("s3 store uninitialized")
	}

	cleanKey := cleanPath(key)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.client.PutObject(ctx, s.bucket, cleanKey, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return storage.Location{}, fmt.Errorf("put object: %w", err)
	}

	return storage.Location{
		Path: cleanKey,
		URL:  fmt.Sprintf("s3://%s/%s", s.bucket, info.Key),
	}, nil
}

// Open 从 S3 存储读取对象。
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("s3 store uninitialized")
	}

	cleanKey := cleanPath(key)

	obj, err := s.client.GetObject(ctx, s.bucket, cleanKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}

	// 验证对象是否存在
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("object not found: %s", key)
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}

	return obj, nil
}

// SignedURL 签发限时访问 URL。
func (s *Store) SignedURL(ctx context.Context, key string, action storage.SignedAction, ttl time.Duration, contentType string) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("s3 store uninitialized")
	}

	cleanKey := cleanPath(key)

	switch action {
	case storage.SignedActionRead:
		u, err := s.client.PresignedGetObject(ctx, s.bucket, cleanKey, ttl, nil)
		if err != nil {
			return "", fmt.Errorf("presign get: %w", err)
		}
		return u.String(), nil
	case storage.SignedActionWrite:
		headers := http.Header{}
		if contentType != "" {
			headers.Set("Content-Type", contentType)
		}
		u, err := s.client.PresignHeader(ctx, http.MethodPut, s.bucket, cleanKey, ttl, nil, headers)
		if err != nil {
			return "", fmt.Errorf("presign put: %w", err)
		}
		return u.String(), nil
	default:
		return "", fmt.Errorf("unknown signed action: %s", action)
	}
}

// Delete 幂等地从 S3 存储删除对象。
func (s *Store) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("s3 store uninitialized")
	}

	return s.client.RemoveObject(ctx, s.bucket, cleanPath(key), minio.RemoveObjectOptions{})
}

// Exists 探测对象是否存在。
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("s3 store uninitialized")
	}

	_, err := s.client.StatObject(ctx, s.bucket, cleanPath(key), minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}

func cleanPath(key string) string {
	return filepath.ToSlash(filepath.Clean(key))
}
