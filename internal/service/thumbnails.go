package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"classdesk/internal/repository"
	"classdesk/internal/storage"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus 缩略图指标。
var (
	thumbnailsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cd_thumbnails_generated_total",
		Help: "Total number of generated thumbnails by kind.",
	}, []string{"kind"})

	thumbnailFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cd_thumbnail_failures_total",
		Help: "Total number of thumbnail generation failures that degraded to an icon.",
	})
)

// fileCategory 划分通用图标的配色类别。
type fileCategory string

const (
	categoryImage    fileCategory = "image"
	categoryPDF      fileCategory = "pdf"
	categoryDocument fileCategory = "document"
	categoryVideo    fileCategory = "video"
	categoryAudio    fileCategory = "audio"
	categoryText     fileCategory = "text"
	categoryUnknown  fileCategory = "unknown"
)

// 各类别图标的填充色。
var categoryColors = map[fileCategory]color.NRGBA{
	categoryDocument: {R: 0x4a, G: 0x6f, B: 0xdc, A: 0xff},
	categoryVideo:    {R: 0xc0, G: 0x39, B: 0x2b, A: 0xff},
	categoryAudio:    {R: 0x27, G: 0xae, B: 0x60, A: 0xff},
	categoryText:     {R: 0x95, G: 0xa5, B: 0xa6, A: 0xff},
}

// Thumbnail 是生成结果，内容总是 JPEG。
type Thumbnail struct {
	Bytes    []byte
	MimeType string
}

// ThumbnailService 为部分文件类型生成小尺寸预览，尽力而为。
// 缩略图永远是建议性的，失败不影响主上传流程。
type ThumbnailService struct {
	repo   repository.FileRepository
	store  storage.BlobStore
	logger *slog.Logger
	client *http.Client

	maxPx        int
	jpegQuality  int
	signedURLTTL time.Duration
}

// ThumbnailConfig 描述缩略图服务的可调参数。
type ThumbnailConfig struct {
	MaxPx        int
	JPEGQuality  int
	SignedURLTTL time.Duration
}

func NewThumbnailService(repo repository.FileRepository, store storage.BlobStore, logger *slog.Logger, cfg ThumbnailConfig) *ThumbnailService {
	if cfg.MaxPx <= 0 {
		cfg.MaxPx = 200
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 80
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 5 * time.Minute
	}
	return &ThumbnailService{
		repo:         repo,
		store:        store,
		logger:       logger,
		client:       &http.Client{Timeout: 30 * time.Second},
		maxPx:        cfg.MaxPx,
		jpegQuality:  cfg.JPEGQuality,
		signedURLTTL: cfg.SignedURLTTL,
	}
}

// Generate 根据 MIME 类型生成缩略图。
// 图片缩放到外接框内且不放大；PDF 先栅格化首页；其余已知类别
// 返回按类别配色的通用图标；未知类型返回 nil（不是错误）。
func (s *ThumbnailService) Generate(data []byte, mimeType string) (*Thumbnail, error) {
	category := categorize(mimeType)

	switch category {
	case categoryImage:
		thumb, err := s.resizeImage(data)
		if err != nil {
			thumbnailFailures.Inc()
			return s.genericIcon(categoryText), nil
		}
		thumbnailsGenerated.WithLabelValues("image").Inc()
		return thumb, nil

	case categoryPDF:
		page, err := firstPDFPage(data)
		if err != nil {
			// 损坏或不支持的文档退回通用图标
			thumbnailFailures.Inc()
			return s.genericIcon(categoryDocument), nil
		}
		thumb, err := s.encodeFitted(page)
		if err != nil {
			thumbnailFailures.Inc()
			return s.genericIcon(categoryDocument), nil
		}
		thumbnailsGenerated.WithLabelValues("pdf").Inc()
		return thumb, nil

	case categoryDocument, categoryVideo, categoryAudio, categoryText:
		thumbnailsGenerated.WithLabelValues("icon").Inc()
		return s.genericIcon(category), nil

	default:
		// 未知类型：没有缩略图是一个已定义的结果
		return nil, nil
	}
}

// Materialize 通过短时签名读 URL 拉取源字节并生成缩略图。
// 受支持类型在任何意外失败下都退化为通用图标，不向上抛错。
func (s *ThumbnailService) Materialize(ctx context.Context, path, mimeType string) (*Thumbnail, error) {
	if s == nil || s.store == nil {
		return nil, errors.New("thumbnail service not initialized")
	}

	if categorize(mimeType) == categoryUnknown {
		return nil, nil
	}

	data, err := s.fetchSource(ctx, path)
	if err != nil {
		s.logger.Warn("fetch thumbnail source", "path", path, "error", err)
		thumbnailFailures.Inc()
		return s.genericIcon(categorize(mimeType)), nil
	}

	return s.Generate(data, mimeType)
}

// Persist 把生成的缩略图写入对象存储并创建其文件记录，
// 返回记录 id 供调用方挂接到父记录的单层缩略图关联上。
func (s *ThumbnailService) Persist(ctx context.Context, thumb *Thumbnail, originalName, ownerID string) (string, error) {
	if s == nil || s.repo == nil || s.store == nil {
		return "", errors.New("thumbnail service not initialized")
	}
	if thumb == nil || len(thumb.Bytes) == 0 {
		return "", fmt.Errorf("%w: empty thumbnail", ErrValidation)
	}

	id := uuid.NewString()
	path := "thumbs/" + id + ".jpg"

	if _, err := s.store.Put(ctx, path, bytes.NewReader(thumb.Bytes), int64(len(thumb.Bytes)), thumb.MimeType); err != nil {
		return "", fmt.Errorf("put thumbnail blob: %w", err)
	}

	now := time.Now().UTC()
	record := &repository.FileRecord{
		ID:          id,
		DisplayName: thumbnailName(originalName),
		MimeType:    thumb.MimeType,
		SizeBytes:   int64(len(thumb.Bytes)),
		StoragePath: path,
		OwnerUserID: ownerID,
		Status:      repository.FileStatusCompleted,
		Progress:    100,
		UploadedAt:  &now,
	}

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return "", fmt.Errorf("create thumbnail record: %w", err)
	}
	return created.ID, nil
}

// GenerateFor 实现 Thumbnailer：为确认完成的上传生成并挂接缩略图。
// 整个流程尽力而为，任何失败只记日志。
func (s *ThumbnailService) GenerateFor(ctx context.Context, record *repository.FileRecord) {
	if s == nil || record == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	thumb, err := s.Materialize(ctx, record.StoragePath, record.MimeType)
	if err != nil {
		s.logger.Warn("materialize thumbnail", "file_id", record.ID, "error", err)
		return
	}
	if thumb == nil {
		return
	}

	thumbID, err := s.Persist(ctx, thumb, record.DisplayName, record.OwnerUserID)
	if err != nil {
		s.logger.Warn("persist thumbnail", "file_id", record.ID, "error", err)
		return
	}

	if err := s.repo.LinkThumbnail(ctx, record.ID, thumbID); err != nil {
		s.logger.Warn("link thumbnail", "file_id", record.ID, "thumbnail_id", thumbID, "error", err)
	}
}

func (s *ThumbnailService) fetchSource(ctx context.Context, path string) ([]byte, error) {
	signedURL, err := s.store.SignedURL(ctx, path, storage.SignedActionRead, s.signedURLTTL, "")
	if err != nil {
		return nil, fmt.Errorf("sign read url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch source: unexpected status %d", resp.StatusCode)
	}

	// 源文件可能很大，限制读入量
	const maxSourceBytes = 64 * 1024 * 1024
	return io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
}

func (s *ThumbnailService) resizeImage(data []byte) (*Thumbnail, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return s.encodeFitted(img)
}

// encodeFitted 把图像缩放进外接框（保持纵横比，不放大）并编码为 JPEG。
func (s *ThumbnailService) encodeFitted(img image.Image) (*Thumbnail, error) {
	fitted := imaging.Fit(img, s.maxPx, s.maxPx, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(s.jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	return &Thumbnail{Bytes: buf.Bytes(), MimeType: "image/jpeg"}, nil
}

// genericIcon 生成按类别配色的纯色占位图。
func (s *ThumbnailService) genericIcon(category fileCategory) *Thumbnail {
	fill, ok := categoryColors[category]
	if !ok {
		fill = categoryColors[categoryText]
	}

	icon := imaging.New(s.maxPx, s.maxPx, fill)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, icon, imaging.JPEG, imaging.JPEGQuality(s.jpegQuality)); err != nil {
		// 对纯色图编码失败几乎不可能，放弃生成
		return nil
	}

	return &Thumbnail{Bytes: buf.Bytes(), MimeType: "image/jpeg"}
}

// firstPDFPage 以较高分辨率栅格化 PDF 首页。
func firstPDFPage(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("render pdf page: %w", err)
	}
	return img, nil
}

func categorize(mimeType string) fileCategory {
	normalized := strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(normalized, ";"); idx >= 0 {
		normalized = strings.TrimSpace(normalized[:idx])
	}

	switch {
	case strings.HasPrefix(normalized, "image/"):
		return categoryImage
	case normalized == "application/pdf":
		return categoryPDF
	case strings.HasPrefix(normalized, "video/"):
		return categoryVideo
	case strings.HasPrefix(normalized, "audio/"):
		return categoryAudio
	case strings.HasPrefix(normalized, "text/"):
		return categoryText
	}

	switch normalized {
	case "application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-powerpoint",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation":
		return categoryDocument
	case "application/json", "application/xml", "application/javascript":
		return categoryText
	}

	return categoryUnknown
}

func thumbnailName(originalName string) string {
	ext := filepath.Ext(originalName)
	return "thumb_" + strings.TrimSuffix(originalName, ext) + ".jpg"
}
