package repository

import (
	"context"
	"time"
)

// FileStatus 描述上传生命周期。
// 状态向前推进 pending → uploading → completed|failed；
// failed 在槽位有效期内可经重试回到 uploading，completed 不可回退。
type FileStatus string

const (
	FileStatusPending   FileStatus = "pending"
	FileStatusUploading FileStatus = "uploading"
	FileStatusCompleted FileStatus = "completed"
	FileStatusFailed    FileStatus = "failed"
)

// OwnerKind 标记文件归属的聚合实体类别。
// 一个文件至多归属一种实体。
type OwnerKind string

const (
	OwnerAssignment   OwnerKind = "assignment"
	OwnerSubmission   OwnerKind = "submission"
	OwnerAnnotation   OwnerKind = "annotation" // 教师批注，挂在 submission 上
	OwnerAnnouncement OwnerKind = "announcement"
	OwnerFolder       OwnerKind = "folder"
)

// FileOwner 是 (类别, 实体 id) 的组合。
type FileOwner struct {
	Kind OwnerKind
	ID   string
}

// FileRecord 代表数据库中的文件元数据，无论上传是否完成。
type FileRecord struct {
	ID           string     `json:"id"`
	DisplayName  string     `json:"display_name"`
	MimeType     string     `json:"mime_type"`
	SizeBytes    int64      `json:"size_bytes"`
	StoragePath  string     `json:"storage_path"`
	OwnerUserID  string     `json:"owner_user_id"`
	Status       FileStatus `json:"status"`
	Progress     int        `json:"progress"`
	UploadURL    *string    `json:"upload_url,omitempty"`
	UploadExpiry *time.Time `json:"upload_expires_at,omitempty"`
	SessionID    *string    `json:"session_id,omitempty"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	UploadedAt   *time.Time `json:"uploaded_at,omitempty"`

	AssignmentID   *string `json:"assignment_id,omitempty"`
	SubmissionID   *string `json:"submission_id,omitempty"`
	AnnotatesID    *string `json:"annotates_id,omitempty"`
	AnnouncementID *string `json:"announcement_id,omitempty"`
	FolderID       *string `json:"folder_id,omitempty"`
	ThumbnailID    *string `json:"thumbnail_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilesParams 用于按状态与槽位过期时间检索文件。
type ListFilesParams struct {
	Statuses      []FileStatus
	ExpiredBefore *time.Time // 只返回槽位在该时刻前过期的记录
	Limit         int
	Offset        int
}

// FileRepository 统一文件元数据持久层接口。
type FileRepository interface {
	Create(ctx context.Context, record *FileRecord) (*FileRecord, error)
	GetByID(ctx context.Context, id string) (*FileRecord, error)
	ListByIDs(ctx context.Context, ids []string) ([]FileRecord, error)
	List(ctx context.Context, params ListFilesParams) ([]FileRecord, error)
	// ListByOwner 返回直接归属于指定实体的文件（不含缩略图）。
	ListByOwner(ctx context.Context, owner FileOwner) ([]FileRecord, error)
	// SetProgress 写入进度并置状态为 uploading；failed 记录由此重试，
	// completed 记录保持不变。
	SetProgress(ctx context.Context, id string, progress int) (*FileRecord, error)
	// Finalize 记录上传确认结果，后写覆盖先写。
	Finalize(ctx context.Context, id string, success bool, errorMessage *string) (*FileRecord, error)
	LinkThumbnail(ctx context.Context, id, thumbnailID string) error
	DeleteByIDs(ctx context.Context, ids []string) error
}
