package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"classdesk/internal/repository"
)

// NewNotificationRepository 返回基于 *sql.DB 的通知仓储实现。
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// NotificationRepository 实现 repository.NotificationRepository。
type NotificationRepository struct {
	db *sql.DB
}

// CreateBatch 单条语句批量插入通知行。
func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []repository.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	values := make([]string, len(notifications))
	args := make([]any, 0, len(notifications)*4)
	for i, n := range notifications {
		base := i * 4
		values[i] = fmt.Sprintf("($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4)
		args = append(args, n.ID, n.RecipientID, n.Title, n.Body)
	}

	query := fmt.Sprintf(
		`INSERT INTO notifications (id, recipient_id, title, body) VALUES %s`,
		strings.Join(values, ","))

	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// ListByRecipient 返回指定用户的通知，按时间倒序。
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]repository.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, recipient_id, title, body, read, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		recipientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []repository.Notification
	for rows.Next() {
		var n repository.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, n)
	}

	return result, rows.Err()
}

// MarkRead 把通知标记为已读，只允许本人操作。
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2`,
		id, recipientID)
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
