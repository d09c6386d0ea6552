package postgres

import (
	"context"
	"database/sql"

	"classdesk/internal/repository"
)

// NewAnnouncementRepository 返回基于 *sql.DB 的公告仓储实现。
func NewAnnouncementRepository(db *sql.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// AnnouncementRepository 实现 repository.AnnouncementRepository。
type AnnouncementRepository struct {
	db *sql.DB
}

const announcementSelect = `SELECT id, class_id, title, body, created_by, created_at FROM announcements`

// Create 插入公告行。
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *repository.Announcement) (*repository.Announcement, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO announcements (id, class_id, title, body, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, class_id, title, body, created_by, created_at`,
		announcement.ID, announcement.ClassID, announcement.Title,
		announcement.Body, announcement.CreatedBy)

	return scanAnnouncement(row)
}

// GetByID 按主键查询公告。
func (r *AnnouncementRepository) GetByID(ctx context.Context, id string) (*repository.Announcement, error) {
	row := r.db.QueryRowContext(ctx, announcementSelect+` WHERE id = $1`, id)
	announcement, err := scanAnnouncement(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return announcement, nil
}

// ListByClass 返回班级下全部公告。
func (r *AnnouncementRepository) ListByClass(ctx context.Context, classID string) ([]repository.Announcement, error) {
	rows, err := r.db.QueryContext(ctx,
		announcementSelect+` WHERE class_id = $1 ORDER BY created_at DESC`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []repository.Announcement
	for rows.Next() {
		announcement, err := scanAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *announcement)
	}

	return result, rows.Err()
}

// Delete 删除公告行，附件文件行由外键级联删除。
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM announcements WHERE id = $1`, id)
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

func scanAnnouncement(rs rowScanner) (*repository.Announcement, error) {
	var announcement repository.Announcement
	if err := rs.Scan(&announcement.ID, &announcement.ClassID, &announcement.Title,
		&announcement.Body, &announcement.CreatedBy, &announcement.CreatedAt); err != nil {
		return nil, err
	}
	return &announcement, nil
}
