package storage

import (
	"context"
	"io"
	"time"
)

// SignedAction 区分签名 URL 的用途。
type SignedAction string

const (
	SignedActionRead  SignedAction = "read"
	SignedActionWrite SignedAction = "write"
)

// BlobStore 是系统中唯一允许访问二进制对象存储的接口。
// 其余组件只通过这几个操作与存储打交道，便于整体替换提供商。
type BlobStore interface {
	// Put 以流式方式写入对象。
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Location, error)
	// Open 以流式方式读取对象。
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// SignedURL 签发限时访问 URL。写 URL 可额外绑定 Content-Type，
	// 让存储端在协议层拒绝类型不符的上传。
	SignedURL(ctx context.Context, key string, action SignedAction, ttl time.Duration, contentType string) (string, error)
	// Delete 幂等地删除对象，对象不存在不算错误。
	Delete(ctx context.Context, key string) error
	// Exists 探测对象是否存在。
	Exists(ctx context.Context, key string) (bool, error)
}

// Location 描述已经写入对象的可访问信息。
type Location struct {
	Path string
	URL  string
}
