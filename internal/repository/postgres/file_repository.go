package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"classdesk/internal/repository"
)

// NewFileRepository 返回基于 *sql.DB 的 Postgres 实现。
func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

// FileRepository 实现 repository.FileRepository。
type FileRepository struct {
	db *sql.DB
}

var fileSelectColumns = []string{
	"id",
	"display_name",
	"mime_type",
	"size_bytes",
	"storage_path",
	"owner_id",
	"status",
	"progress",
	"upload_url",
	"upload_expires_at",
	"session_id",
	"retry_count",
	"error_message",
	"uploaded_at",
	"assignment_id",
	"submission_id",
	"annotates_id",
	"announcement_id",
	"folder_id",
	"thumbnail_id",
	"created_at",
	"updated_at",
}

var fileInsertColumns = []string{
	"id",
	"display_name",
	"mime_type",
	"size_bytes",
	"storage_path",
	"owner_id",
	"status",
	"progress",
	"upload_url",
	"upload_expires_at",
	"session_id",
	"uploaded_at",
	"assignment_id",
	"submission_id",
	"annotates_id",
	"announcement_id",
	"folder_id",
}

// Create 插入文件记录并返回数据库生成字段（如时间戳）。
func (r *FileRepository) Create(ctx context.Context, record *repository.FileRecord) (*repository.FileRecord, error) {
	if record == nil {
		return nil, fmt.Errorf("file record is nil")
	}

	placeholders := make([]string, len(fileInsertColumns))
	for i := range fileInsertColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(`INSERT INTO files (%s)
	VALUES (%s)
	RETURNING %s`,
		strings.Join(fileInsertColumns, ","),
		strings.Join(placeholders, ","),
		strings.Join(fileSelectColumns, ","),
	)

	row := r.db.QueryRowContext(
		ctx,
		query,
		record.ID,
		record.DisplayName,
		record.MimeType,
		record.SizeBytes,
		record.StoragePath,
		record.OwnerUserID,
		record.Status,
		record.Progress,
		nullString(record.UploadURL),
		nullTime(record.UploadExpiry),
		nullString(record.SessionID),
		nullTime(record.UploadedAt),
		nullString(record.AssignmentID),
		nullString(record.SubmissionID),
		nullString(record.AnnotatesID),
		nullString(record.AnnouncementID),
		nullString(record.FolderID),
	)

	return scanFileRecord(row)
}

// GetByID 通过主键查询文件记录。
func (r *FileRepository) GetByID(ctx context.Context, id string) (*repository.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1`, strings.Join(fileSelectColumns, ","))
	row := r.db.QueryRowContext(ctx, query, id)
	file, err := scanFileRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

// ListByIDs 批量按主键查询，结果不保证顺序。
func (r *FileRepository) ListByIDs(ctx context.Context, ids []string) ([]repository.FileRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT %s FROM files WHERE id IN (%s)`,
		strings.Join(fileSelectColumns, ","), strings.Join(placeholders, ","))

	return r.queryFiles(ctx, query, args...)
}

// List 支持按状态与槽位过期时间过滤并分页。
func (r *FileRepository) List(ctx context.Context, params repository.ListFilesParams) ([]repository.FileRecord, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	var conditions []string
	var args []any

	if len(params.Statuses) > 0 {
		placeholders := make([]string, len(params.Statuses))
		for i, status := range params.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ",")+")")
	}

	if params.ExpiredBefore != nil {
		args = append(args, *params.ExpiredBefore)
		conditions = append(conditions, fmt.Sprintf("upload_expires_at IS NOT NULL AND upload_expires_at < $%d", len(args)))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, limit)
	tail := fmt.Sprintf("ORDER BY created_at DESC LIMIT $%d", len(args))

	if params.Offset > 0 {
		args = append(args, params.Offset)
		tail += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	query := fmt.Sprintf(`SELECT %s FROM files %s %s`, strings.Join(fileSelectColumns, ","), whereClause, tail)
	return r.queryFiles(ctx, query, args...)
}

// ListByOwner 返回直接归属于指定实体的文件。
func (r *FileRepository) ListByOwner(ctx context.Context, owner repository.FileOwner) ([]repository.FileRecord, error) {
	column, err := ownerColumn(owner.Kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM files WHERE %s = $1 ORDER BY created_at`,
		strings.Join(fileSelectColumns, ","), column)
	return r.queryFiles(ctx, query, owner.ID)
}

// SetProgress 写入进度并置状态为 uploading。failed 记录允许由此重试；
// completed 记录保持原样返回；记录不存在时返回 ErrNotFound。
func (r *FileRepository) SetProgress(ctx context.Context, id string, progress int) (*repository.FileRecord, error) {
	query := fmt.Sprintf(`UPDATE files
	SET progress = $1, status = $2, updated_at = $3
	WHERE id = $4 AND status <> $5
	RETURNING %s`, strings.Join(fileSelectColumns, ","))

	row := r.db.QueryRowContext(ctx, query,
		progress,
		repository.FileStatusUploading,
		time.Now().UTC(),
		id,
		repository.FileStatusCompleted,
	)

	record, err := scanFileRecord(row)
	if err == nil {
		return record, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	// 没有命中更新：要么记录不存在，要么已是 completed
	return r.GetByID(ctx, id)
}

// Finalize 记录上传确认结果。成功置 completed/100/uploaded_at，
// 失败置 failed/0 并累加 retry_count。后写覆盖先写。
func (r *FileRepository) Finalize(ctx context.Context, id string, success bool, errorMessage *string) (*repository.FileRecord, error) {
	var query string
	now := time.Now().UTC()

	if success {
		query = fmt.Sprintf(`UPDATE files
		SET status = $1, progress = 100, uploaded_at = $2, error_message = NULL, updated_at = $2
		WHERE id = $3
		RETURNING %s`, strings.Join(fileSelectColumns, ","))

		row := r.db.QueryRowContext(ctx, query, repository.FileStatusCompleted, now, id)
		return finalizeResult(row)
	}

	query = fmt.Sprintf(`UPDATE files
	SET status = $1, progress = 0, error_message = $2, retry_count = retry_count + 1, updated_at = $3
	WHERE id = $4
	RETURNING %s`, strings.Join(fileSelectColumns, ","))

	row := r.db.QueryRowContext(ctx, query, repository.FileStatusFailed, nullString(errorMessage), now, id)
	return finalizeResult(row)
}

// LinkThumbnail 建立单层缩略图关联。
func (r *FileRepository) LinkThumbnail(ctx context.Context, id, thumbnailID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE files SET thumbnail_id = $1, updated_at = $2 WHERE id = $3`,
		thumbnailID, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteByIDs 按主键删除文件行，用于清理无宿主的缩略图行。
func (r *FileRepository) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM files WHERE id IN (%s)`, strings.Join(placeholders, ",")),
		args...)
	return err
}

func (r *FileRepository) queryFiles(ctx context.Context, query string, args ...any) ([]repository.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []repository.FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func finalizeResult(row *sql.Row) (*repository.FileRecord, error) {
	record, err := scanFileRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

func ownerColumn(kind repository.OwnerKind) (string, error) {
	switch kind {
	case repository.OwnerAssignment:
		return "assignment_id", nil
	case repository.OwnerSubmission:
		return "submission_id", nil
	case repository.OwnerAnnotation:
		return "annotates_id", nil
	case repository.OwnerAnnouncement:
		return "announcement_id", nil
	case repository.OwnerFolder:
		return "folder_id", nil
	default:
		return "", fmt.Errorf("unknown owner kind: %s", kind)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRecord(rs rowScanner) (*repository.FileRecord, error) {
	var (
		rec            repository.FileRecord
		uploadURL      sql.NullString
		uploadExpiry   sql.NullTime
		sessionID      sql.NullString
		errorMessage   sql.NullString
		uploadedAt     sql.NullTime
		assignmentID   sql.NullString
		submissionID   sql.NullString
		annotatesID    sql.NullString
		announcementID sql.NullString
		folderID       sql.NullString
		thumbnailID    sql.NullString
	)

	if err := rs.Scan(
		&rec.ID,
		&rec.DisplayName,
		&rec.MimeType,
		&rec.SizeBytes,
		&rec.StoragePath,
		&rec.OwnerUserID,
		&rec.Status,
		&rec.Progress,
		&uploadURL,
		&uploadExpiry,
		&sessionID,
		&rec.RetryCount,
		&errorMessage,
		&uploadedAt,
		&assignmentID,
		&submissionID,
		&annotatesID,
		&announcementID,
		&folderID,
		&thumbnailID,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rec.UploadURL = fromNullString(uploadURL)
	rec.UploadExpiry = fromNullTime(uploadExpiry)
	rec.SessionID = fromNullString(sessionID)
	rec.ErrorMessage = fromNullString(errorMessage)
	rec.UploadedAt = fromNullTime(uploadedAt)
	rec.AssignmentID = fromNullString(assignmentID)
	rec.SubmissionID = fromNullString(submissionID)
	rec.AnnotatesID = fromNullString(annotatesID)
	rec.AnnouncementID = fromNullString(announcementID)
	rec.FolderID = fromNullString(folderID)
	rec.ThumbnailID = fromNullString(thumbnailID)

	return &rec, nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}

func fromNullString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

func fromNullTime(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}
