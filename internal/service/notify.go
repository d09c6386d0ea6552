package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"classdesk/internal/repository"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var notificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cd_notifications_dropped_total",
	Help: "Total number of notification batches that failed to persist.",
})

// NotifyService 负责站内通知的批量写入。
// 写入按固定分片拆开并在分片间停顿，避免占满共享连接池。
type NotifyService struct {
	repo   repository.NotificationRepository
	logger *slog.Logger

	batchSize  int
	batchPause time.Duration
}

func NewNotifyService(repo repository.NotificationRepository, logger *slog.Logger, batchSize int, batchPause time.Duration) *NotifyService {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &NotifyService{
		repo:       repo,
		logger:     logger,
		batchSize:  batchSize,
		batchPause: batchPause,
	}
}

// NotifyOne 为单个用户创建通知。
func (s *NotifyService) NotifyOne(ctx context.Context, recipientID, title, body string) error {
	return s.NotifyMany(ctx, []string{recipientID}, title, body)
}

// NotifyMany 为多个用户批量创建通知。
func (s *NotifyService) NotifyMany(ctx context.Context, recipientIDs []string, title, body string) error {
	if s == nil || s.repo == nil {
		return errors.New("notify service not initialized")
	}
	if len(recipientIDs) == 0 {
		return nil
	}

	notifications := make([]repository.Notification, len(recipientIDs))
	for i, recipient := range recipientIDs {
		notifications[i] = repository.Notification{
			ID:          uuid.NewString(),
			RecipientID: recipient,
			Title:       title,
			Body:        body,
		}
	}

	for start := 0; start < len(notifications); start += s.batchSize {
		end := start + s.batchSize
		if end > len(notifications) {
			end = len(notifications)
		}

		if err := s.repo.CreateBatch(ctx, notifications[start:end]); err != nil {
			return err
		}

		if end < len(notifications) && s.batchPause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.batchPause):
			}
		}
	}

	return nil
}

// Dispatch 在触发请求之外异步投递通知：错误只记日志，
// 永远不会影响触发它的那次变更的返回结果。
func (s *NotifyService) Dispatch(recipientIDs []string, title, body string) {
	if s == nil || s.repo == nil || len(recipientIDs) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.NotifyMany(ctx, recipientIDs, title, body); err != nil {
			notificationsDropped.Inc()
			s.logger.Error("dispatch notifications", "recipients", len(recipientIDs), "title", title, "error", err)
		}
	}()
}

// ListForUser 返回用户的通知流。
func (s *NotifyService) ListForUser(ctx context.Context, userID string, limit, offset int) ([]repository.Notification, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("notify service not initialized")
	}
	return s.repo.ListByRecipient(ctx, userID, limit, offset)
}

// MarkRead 把通知标记为已读。
func (s *NotifyService) MarkRead(ctx context.Context, id, userID string) error {
	if s == nil || s.repo == nil {
		return errors.New("notify service not initialized")
	}
	return s.repo.MarkRead(ctx, id, userID)
}
