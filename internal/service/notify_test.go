package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"classdesk/internal/repository"
)

type notificationRepo struct {
	mu      sync.Mutex
	batches [][]repository.Notification
	err     error
	done    chan struct{}
}

func (m *notificationRepo) CreateBatch(ctx context.Context, notifications []repository.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		defer close(m.done)
	}
	if m.err != nil {
		return m.err
	}
	batch := make([]repository.Notification, len(notifications))
	copy(batch, notifications)
	m.batches = append(m.batches, batch)
	return nil
}

func (m *notificationRepo) ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]repository.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.Notification
	for _, batch := range m.batches {
		for _, n := range batch {
			if n.RecipientID == recipientID {
				out = append(out, n)
			}
		}
	}
	return out, nil
}

func (m *notificationRepo) MarkRead(ctx context.Context, id, recipientID string) error {
	return nil
}

func recipientList(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("user-%d", i)
	}
	return out
}

func TestNotifyService_NotifyMany_Chunks(t *testing.T) {
	repo := &notificationRepo{}
	svc := NewNotifyService(repo, testLogger(), 10, 0)

	if err := svc.NotifyMany(context.Background(), recipientList(25), "New assignment", "Essay due Friday"); err != nil {
		t.Fatalf("notify many: %v", err)
	}

	if len(repo.batches) != 3 {
		t.Fatalf("expected 25 recipients in 3 batches, got %d", len(repo.batches))
	}
	for i, want := range []int{10, 10, 5} {
		if len(repo.batches[i]) != want {
			t.Fatalf("batch %d: expected %d notifications, got %d", i, want, len(repo.batches[i]))
		}
	}

	total := 0
	for _, batch := range repo.batches {
		for _, n := range batch {
			if n.Title != "New assignment" || n.ID == "" {
				t.Fatalf("malformed notification: %+v", n)
			}
			total++
		}
	}
	if total != 25 {
		t.Fatalf("expected 25 notifications, got %d", total)
	}
}

func TestNotifyService_NotifyMany_EmptyRecipients(t *testing.T) {
	repo := &notificationRepo{}
	svc := NewNotifyService(repo, testLogger(), 10, 0)

	if err := svc.NotifyMany(context.Background(), nil, "t", "b"); err != nil {
		t.Fatalf("empty recipient list must be a no-op, got %v", err)
	}
	if len(repo.batches) != 0 {
		t.Fatalf("expected no batches, got %d", len(repo.batches))
	}
}

func TestNotifyService_NotifyMany_CanceledBetweenChunks(t *testing.T) {
	repo := &notificationRepo{}
	svc := NewNotifyService(repo, testLogger(), 10, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.NotifyMany(ctx, recipientList(15), "t", "b")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation between chunks, got %v", err)
	}
	if len(repo.batches) != 1 {
		t.Fatalf("expected exactly the first chunk written, got %d", len(repo.batches))
	}
}

func TestNotifyService_Dispatch_ErrorsDoNotSurface(t *testing.T) {
	repo := &notificationRepo{
		err:  errors.New("database down"),
		done: make(chan struct{}),
	}
	svc := NewNotifyService(repo, testLogger(), 10, 0)

	// Dispatch 立即返回，底层错误只能被日志吞掉
	svc.Dispatch(recipientList(3), "t", "b")

	select {
	case <-repo.done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected dispatch goroutine to attempt the write")
	}
}

func TestNotifyService_Dispatch_DeliversInBackground(t *testing.T) {
	repo := &notificationRepo{done: make(chan struct{})}
	svc := NewNotifyService(repo, testLogger(), 10, 0)

	svc.Dispatch([]string{"student-1"}, "Graded", "Your essay was graded")

	select {
	case <-repo.done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected background delivery")
	}

	notifications, err := svc.ListForUser(context.Background(), "student-1", 10, 0)
	if err != nil {
		t.Fatalf("list for user: %v", err)
	}
	if len(notifications) != 1 || notifications[0].Title != "Graded" {
		t.Fatalf("unexpected inbox contents: %+v", notifications)
	}
}
