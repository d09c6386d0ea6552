package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"classdesk/internal/repository"
	"classdesk/internal/storage"

	"github.com/google/uuid"
)

// imageExtMimes 是图片扩展名与合法 MIME 的允许表。
// 表内扩展名要求声明类型完全匹配；表外扩展名不做校验。
var imageExtMimes = map[string][]string{
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".png":  {"image/png"},
	".gif":  {"image/gif"},
	".webp": {"image/webp"},
}

// Thumbnailer 是上传确认后触发缩略图生成的回调接口。
type Thumbnailer interface {
	GenerateFor(ctx context.Context, record *repository.FileRecord)
}

// UploadService 负责上传槽位的签发、进度上报与最终确认。
// 文件字节不经过本服务持久化决策，只在代理端点上被转写进对象存储。
type UploadService struct {
	repo        repository.FileRepository
	store       storage.BlobStore
	thumbnailer Thumbnailer
	logger      *slog.Logger

	baseURL      string
	slotTTL      time.Duration
	signedURLTTL time.Duration
}

// UploadConfig 描述上传服务的可调参数。
type UploadConfig struct {
	PublicBaseURL string
	SlotTTL       time.Duration
	SignedURLTTL  time.Duration
}

func NewUploadService(repo repository.FileRepository, store storage.BlobStore, thumbnailer Thumbnailer, logger *slog.Logger, cfg UploadConfig) *UploadService {
	if cfg.SlotTTL <= 0 {
		cfg.SlotTTL = 15 * time.Minute
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 5 * time.Minute
	}
	return &UploadService{
		repo:         repo,
		store:        store,
		thumbnailer:  thumbnailer,
		logger:       logger,
		baseURL:      strings.TrimRight(cfg.PublicBaseURL, "/"),
		slotTTL:      cfg.SlotTTL,
		signedURLTTL: cfg.SignedURLTTL,
	}
}

// SlotInput 描述申请上传槽位所需的信息（声明值，不含文件字节）。
type SlotInput struct {
	DisplayName string
	MimeType    string
	SizeBytes   int64
	PathPrefix  string // 可选目录前缀

	// 归属目标，至多填一个
	AssignmentID   *string
	SubmissionID   *string
	AnnotatesID    *string
	AnnouncementID *string
	FolderID       *string
}

// Slot 是交给客户端的上传契约。
type Slot struct {
	FileID    string    `json:"file_id"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
	SessionID string    `json:"session_id"`
}

// RequestSlot 校验声明值并创建 pending 文件记录，返回上传槽位。
// 槽位过期时间在创建时一次性确定，不续期。
func (s *UploadService) RequestSlot(ctx context.Context, input SlotInput, ownerID string) (*Slot, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("upload service not initialized")
	}
	if ownerID == "" {
		return nil, ErrUnauthorized
	}
	if err := validateSlotInput(input); err != nil {
		return nil, err
	}

	storagePath := buildStoragePath(input.PathPrefix, input.DisplayName)
	sessionID := uuid.NewString()
	fileID := uuid.NewString()
	expiresAt := time.Now().UTC().Add(s.slotTTL)
	uploadURL := fmt.Sprintf("%s/api/v1/files/%s/content?session=%s", s.baseURL, fileID, sessionID)

	record := &repository.FileRecord{
		ID:             fileID,
		DisplayName:    input.DisplayName,
		MimeType:       input.MimeType,
		SizeBytes:      input.SizeBytes,
		StoragePath:    storagePath,
		OwnerUserID:    ownerID,
		Status:         repository.FileStatusPending,
		Progress:       0,
		UploadURL:      &uploadURL,
		UploadExpiry:   &expiresAt,
		SessionID:      &sessionID,
		AssignmentID:   input.AssignmentID,
		SubmissionID:   input.SubmissionID,
		AnnotatesID:    input.AnnotatesID,
		AnnouncementID: input.AnnouncementID,
		FolderID:       input.FolderID,
	}

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("create file record: %w", err)
	}

	return &Slot{
		FileID:    created.ID,
		UploadURL: uploadURL,
		ExpiresAt: expiresAt,
		SessionID: sessionID,
	}, nil
}

// RequestSlots 批量申请槽位。整批先过校验，任何一个文件不合法则
// 整批拒绝，不写任何记录；校验全部通过后逐个创建。
func (s *UploadService) RequestSlots(ctx context.Context, inputs []SlotInput, ownerID string) ([]Slot, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("upload service not initialized")
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no files requested", ErrValidation)
	}

	for i, input := range inputs {
		if err := validateSlotInput(input); err != nil {
			return nil, fmt.Errorf("file %d (%s): %w", i, input.DisplayName, err)
		}
	}

	slots := make([]Slot, 0, len(inputs))
	for _, input := range inputs {
		slot, err := s.RequestSlot(ctx, input, ownerID)
		if err != nil {
			return nil, err
		}
		slots = append(slots, *slot)
	}
	return slots, nil
}

// ReportProgress 记录上传进度，输入值被钳制到 [0,100]。
// completed 记录不会被改写；failed 记录允许经此重试回 uploading。
// 仅文件属主或教师可操作。
func (s *UploadService) ReportProgress(ctx context.Context, actor Actor, fileID string, percent int) (*repository.FileRecord, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("upload service not initialized")
	}

	record, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := fileAccess(record, actor); err != nil {
		return nil, err
	}

	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	return s.repo.SetProgress(ctx, fileID, percent)
}

// Confirm 是上传的最终确认。成功置 completed 并异步触发缩略图生成；
// 失败置 failed 并累计重试次数。“上传失败”本身是被正常记录的结果，
// 只有文件记录不存在之类的情况才会返回错误。仅文件属主或教师可操作。
func (s *UploadService) Confirm(ctx context.Context, actor Actor, fileID string, success bool, errorMessage string) (*repository.FileRecord, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("upload service not initialized")
	}

	current, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := fileAccess(current, actor); err != nil {
		return nil, err
	}

	var msg *string
	if errorMessage != "" {
		msg = &errorMessage
	}

	record, err := s.repo.Finalize(ctx, fileID, success, msg)
	if err != nil {
		return nil, err
	}

	// 已挂缩略图的记录再次确认不再生成，避免孤儿缩略图行和 blob
	if success && s.thumbnailer != nil && record.ThumbnailID == nil {
		// 缩略图是建议性产物，脱离请求生命周期异步生成
		go s.thumbnailer.GenerateFor(context.WithoutCancel(ctx), record)
	}

	return record, nil
}

// ReceiveContent 是槽位 URL 指向的服务端代理：校验会话与过期时间，
// 把客户端推来的字节流直接转写进对象存储，并把状态推进到 uploading。
func (s *UploadService) ReceiveContent(ctx context.Context, fileID, sessionID string, r io.Reader, size int64) error {
	if s == nil || s.repo == nil || s.store == nil {
		return errors.New("upload service not initialized")
	}

	record, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		return err
	}

	if record.SessionID == nil || *record.SessionID != sessionID {
		return fmt.Errorf("%w: session mismatch", ErrForbidden)
	}
	if record.UploadExpiry != nil && time.Now().After(*record.UploadExpiry) {
		return fmt.Errorf("%w: upload slot expired", ErrValidation)
	}
	// failed 记录在槽位有效期内允许重新推送字节；completed 不可覆盖
	if record.Status == repository.FileStatusCompleted {
		return fmt.Errorf("%w: upload already completed", ErrValidation)
	}

	if _, err := s.store.Put(ctx, record.StoragePath, r, size, record.MimeType); err != nil {
		return fmt.Errorf("write blob: %w", err)
	}

	if _, err := s.repo.SetProgress(ctx, fileID, 100); err != nil {
		// 字节已经落盘，进度没写上只影响展示
		s.logger.Warn("record progress after content receive", "file_id", fileID, "error", err)
	}

	return nil
}

// DownloadURL 为已完成的文件签发短时读 URL。
// 作业与公告附件属于班级共享材料，任何登录用户可取；
// 其余文件只开放给属主与教师。
func (s *UploadService) DownloadURL(ctx context.Context, actor Actor, fileID string) (string, error) {
	if s == nil || s.repo == nil || s.store == nil {
		return "", errors.New("upload service not initialized")
	}

	record, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		return "", err
	}
	if err := downloadAccess(record, actor); err != nil {
		return "", err
	}
	if record.Status != repository.FileStatusCompleted {
		return "", fmt.Errorf("%w: file not uploaded", ErrValidation)
	}

	return s.store.SignedURL(ctx, record.StoragePath, storage.SignedActionRead, s.signedURLTTL, "")
}

// GetFile 返回单个文件的元数据，仅文件属主或教师可见。
// 元数据里带着会话 id 等上传凭据，不能泄给其他用户。
func (s *UploadService) GetFile(ctx context.Context, actor Actor, fileID string) (*repository.FileRecord, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("upload service not initialized")
	}

	record, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := fileAccess(record, actor); err != nil {
		return nil, err
	}
	return record, nil
}

// fileAccess 校验操作者是文件属主或教师。
func fileAccess(record *repository.FileRecord, actor Actor) error {
	if actor.ID == "" {
		return ErrUnauthorized
	}
	if actor.Teacher || record.OwnerUserID == actor.ID {
		return nil
	}
	return fmt.Errorf("%w: not the file owner", ErrForbidden)
}

// downloadAccess 在属主与教师之外，放行挂在作业或公告上的附件。
func downloadAccess(record *repository.FileRecord, actor Actor) error {
	if actor.ID == "" {
		return ErrUnauthorized
	}
	if record.AssignmentID != nil || record.AnnouncementID != nil {
		return nil
	}
	return fileAccess(record, actor)
}

// ListFiles 按状态与槽位过期时间检索文件，供教师排查滞留的上传。
func (s *UploadService) ListFiles(ctx context.Context, params repository.ListFilesParams) ([]repository.FileRecord, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("upload service not initialized")
	}
	return s.repo.List(ctx, params)
}

func validateSlotInput(input SlotInput) error {
	switch {
	case strings.TrimSpace(input.DisplayName) == "":
		return fmt.Errorf("%w: display name is required", ErrValidation)
	case strings.TrimSpace(input.MimeType) == "":
		return fmt.Errorf("%w: mime type is required", ErrValidation)
	case input.SizeBytes <= 0:
		return fmt.Errorf("%w: size must be positive", ErrValidation)
	}

	if err := validateImageExtension(input.DisplayName, input.MimeType); err != nil {
		return err
	}

	targets := 0
	for _, t := range []*string{input.AssignmentID, input.SubmissionID, input.AnnotatesID, input.AnnouncementID, input.FolderID} {
		if t != nil && *t != "" {
			targets++
		}
	}
	if targets > 1 {
		return fmt.Errorf("%w: at most one attach target allowed", ErrValidation)
	}

	return nil
}

// validateImageExtension 拦截扩展名与声明 MIME 明显不符的图片上传。
// 只覆盖允许表内的扩展名，不做内容探测。
func validateImageExtension(name, mimeType string) error {
	ext := strings.ToLower(filepath.Ext(name))
	allowed, known := imageExtMimes[ext]
	if !known {
		return nil
	}

	declared, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		declared = strings.ToLower(strings.TrimSpace(mimeType))
	}

	for _, m := range allowed {
		if declared == m {
			return nil
		}
	}
	return fmt.Errorf("%w: extension %s does not match declared type %s", ErrValidation, ext, mimeType)
}

// buildStoragePath 用新随机 id 拼接原始扩展名，必要时加目录前缀，
// 同名文件也不会产生路径碰撞。
func buildStoragePath(prefix, name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	key := uuid.NewString() + ext
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
