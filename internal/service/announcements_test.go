package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"classdesk/internal/repository"
)

type announcementRepo struct {
	byID    map[string]*repository.Announcement
	deleted []string
}

func newAnnouncementRepo() *announcementRepo {
	return &announcementRepo{byID: map[string]*repository.Announcement{}}
}

func (m *announcementRepo) Create(ctx context.Context, announcement *repository.Announcement) (*repository.Announcement, error) {
	clone := *announcement
	m.byID[announcement.ID] = &clone
	return announcement, nil
}

func (m *announcementRepo) GetByID(ctx context.Context, id string) (*repository.Announcement, error) {
	announcement, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *announcement
	return &clone, nil
}

func (m *announcementRepo) ListByClass(ctx context.Context, classID string) ([]repository.Announcement, error) {
	var out []repository.Announcement
	for _, announcement := range m.byID {
		if announcement.ClassID == classID {
			out = append(out, *announcement)
		}
	}
	return out, nil
}

func (m *announcementRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.byID, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type announcementFixture struct {
	announcements *announcementRepo
	classes       *classRepo
	notifyRepo    *notificationRepo
	files         *cascadeFileRepo
	store         *faultyStore
	svc           *AnnouncementService
}

func newAnnouncementFixture(notifyDone chan struct{}) *announcementFixture {
	f := &announcementFixture{
		announcements: newAnnouncementRepo(),
		classes:       newClassRepo(),
		notifyRepo:    &notificationRepo{done: notifyDone},
		files: &cascadeFileRepo{
			byOwner: map[repository.FileOwner][]repository.FileRecord{},
			byID:    map[string]repository.FileRecord{},
		},
		store: &faultyStore{},
	}
	f.classes.seed(repository.Class{ID: "class-1", TeacherID: "teacher-1"}, "teacher-1", "student-1", "student-2")

	logger := testLogger()
	classService := NewClassService(f.classes, newMemoryCache(), logger)
	cascade := NewCascadeService(f.files, &cascadeSubmissionRepo{}, f.store, logger)
	notify := NewNotifyService(f.notifyRepo, logger, 10, 0)
	f.svc = NewAnnouncementService(f.announcements, classService, cascade, notify, logger)
	return f
}

func TestAnnouncementService_Create(t *testing.T) {
	done := make(chan struct{})
	f := newAnnouncementFixture(done)

	if _, err := f.svc.Create(context.Background(), studentActor, "class-1", "Field trip", "Friday"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for student, got %v", err)
	}
	if _, err := f.svc.Create(context.Background(), teacherActor, "class-1", "  ", "Friday"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for blank title, got %v", err)
	}

	created, err := f.svc.Create(context.Background(), teacherActor, "class-1", "Field trip", "Friday")
	if err != nil {
		t.Fatalf("create announcement: %v", err)
	}
	if created.ClassID != "class-1" || created.CreatedBy != "teacher-1" {
		t.Fatalf("unexpected announcement: %+v", created)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected notification dispatch")
	}

	recipients := map[string]bool{}
	for _, batch := range f.notifyRepo.batches {
		for _, n := range batch {
			recipients[n.RecipientID] = true
		}
	}
	if len(recipients) != 2 || recipients["teacher-1"] {
		t.Fatalf("expected both students and not the sender, got %v", recipients)
	}
}

func TestAnnouncementService_Create_NotificationOutage(t *testing.T) {
	done := make(chan struct{})
	f := newAnnouncementFixture(done)
	f.notifyRepo.err = errors.New("notification store down")

	created, err := f.svc.Create(context.Background(), teacherActor, "class-1", "Field trip", "Friday")
	if err != nil {
		t.Fatalf("expected creation to survive notification outage, got %v", err)
	}
	if _, ok := f.announcements.byID[created.ID]; !ok {
		t.Fatal("expected announcement to be persisted")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected notification write to be attempted")
	}
	if len(f.notifyRepo.batches) != 0 {
		t.Fatalf("expected no notifications written, got %d batches", len(f.notifyRepo.batches))
	}
}

func TestAnnouncementService_Delete_Cascades(t *testing.T) {
	f := newAnnouncementFixture(nil)
	f.announcements.byID["ann-1"] = &repository.Announcement{ID: "ann-1", ClassID: "class-1", Title: "Field trip"}
	f.files.byOwner[repository.FileOwner{Kind: repository.OwnerAnnouncement, ID: "ann-1"}] = []repository.FileRecord{
		completedRecord("f-flyer", "ann/flyer.pdf", nil),
	}

	if err := f.svc.Delete(context.Background(), studentActor, "ann-1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for student, got %v", err)
	}
	if err := f.svc.Delete(context.Background(), teacherActor, "ann-1"); err != nil {
		t.Fatalf("delete announcement: %v", err)
	}

	if len(f.announcements.deleted) != 1 || f.announcements.deleted[0] != "ann-1" {
		t.Fatalf("expected announcement row deleted, got %v", f.announcements.deleted)
	}
	if len(f.store.deleted) != 1 || f.store.deleted[0] != "ann/flyer.pdf" {
		t.Fatalf("expected attachment blob purged, got %v", f.store.deleted)
	}
}
