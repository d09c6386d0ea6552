package local

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"classdesk/internal/storage"
)

// Store 将对象保存在本地文件系统，面向开发环境与测试。
// 本地驱动没有真正的签名能力，SignedURL 只返回可直接访问的静态 URL。
type Store struct {
	BaseDir string
	BaseURL string
}

func New(baseDir, baseURL string) *Store {
	return &Store{BaseDir: baseDir, BaseURL: baseURL}
}

// Put 将对象写入本地文件系统，先写临时文件再原子改名。
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (storage.Location, error) {
	if s == nil {
		return storage.Location{}, fmt.Errorf("local store uninitialized")
	}

	select {
	case <-ctx.Done():
		return storage.Location{}, ctx.Err()
	default:
	}

	targetPath := filepath.Join(s.BaseDir, filepath.Clean(key))
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return storage.Location{}, fmt.Errorf("ensure dir: %w", err)
	}

	tempPath := targetPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return storage.Location{}, fmt.Errorf("create temp file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("write file: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("sync file: %w", err)
	}

	if err := file.Close(); err != nil {
		return storage.Location{}, fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		return storage.Location{}, fmt.Errorf("rename temp file: %w", err)
	}

	loc := storage.Location{Path: filepath.ToSlash(filepath.Clean(key))}
	if s.BaseURL != "" {
		if u, err := url.JoinPath(s.BaseURL, filepath.ToSlash(key)); err == nil {
			loc.URL = u
		}
	}

	return loc, nil
}

// Open 打开并返回指定 key 对应的文件内容。
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if s == nil {
		return nil, fmt.Errorf("local store uninitialized")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	targetPath := filepath.Join(s.BaseDir, filepath.Clean(key))
	file, err := os.Open(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object not found: %s", key)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}

	return file, nil
}

// SignedURL 返回静态访问 URL；本地驱动不做时效控制。
func (s *Store) SignedURL(ctx context.Context, key string, action storage.SignedAction, ttl time.Duration, contentType string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("local store uninitialized")
	}
	if s.BaseURL == "" {
		return "", fmt.Errorf("local store has no base url")
	}

	u, err := url.JoinPath(s.BaseURL, filepath.ToSlash(filepath.Clean(key)))
	if err != nil {
		return "", fmt.Errorf("join url: %w", err)
	}
	return u, nil
}

// Delete 幂等地删除本地对象。
func (s *Store) Delete(ctx context.Context, key string) error {
	if s == nil {
		return fmt.Errorf("local store uninitialized")
	}

	targetPath := filepath.Join(s.BaseDir, filepath.Clean(key))
	if err := os.Remove(targetPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// Exists 探测本地对象是否存在。
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("local store uninitialized")
	}

	targetPath := filepath.Join(s.BaseDir, filepath.Clean(key))
	if _, err := os.Stat(targetPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat file: %w", err)
	}
	return true, nil
}
