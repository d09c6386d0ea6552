package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"classdesk/internal/repository"
)

type assignmentRepo struct {
	byID      map[string]*repository.Assignment
	listCalls int
	deleted   []string
}

func newAssignmentRepo() *assignmentRepo {
	return &assignmentRepo{byID: map[string]*repository.Assignment{}}
}

func (m *assignmentRepo) Create(ctx context.Context, assignment *repository.Assignment) (*repository.Assignment, error) {
	clone := *assignment
	m.byID[assignment.ID] = &clone
	return assignment, nil
}

func (m *assignmentRepo) GetByID(ctx context.Context, id string) (*repository.Assignment, error) {
	assignment, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *assignment
	return &clone, nil
}

func (m *assignmentRepo) ListByClass(ctx context.Context, classID string) ([]repository.Assignment, error) {
	m.listCalls++
	var out []repository.Assignment
	for _, assignment := range m.byID {
		if assignment.ClassID == classID {
			out = append(out, *assignment)
		}
	}
	return out, nil
}

func (m *assignmentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.byID, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type assignmentFixture struct {
	assignments *assignmentRepo
	classes     *classRepo
	cache       *memoryCache
	notifyRepo  *notificationRepo
	files       *cascadeFileRepo
	store       *faultyStore
	svc         *AssignmentService
}

func newAssignmentFixture(notifyDone chan struct{}) *assignmentFixture {
	f := &assignmentFixture{
		assignments: newAssignmentRepo(),
		classes:     newClassRepo(),
		cache:       newMemoryCache(),
		notifyRepo:  &notificationRepo{done: notifyDone},
		files: &cascadeFileRepo{
			byOwner: map[repository.FileOwner][]repository.FileRecord{},
			byID:    map[string]repository.FileRecord{},
		},
		store: &faultyStore{},
	}
	f.classes.seed(repository.Class{ID: "class-1", TeacherID: "teacher-1"}, "teacher-1", "student-1", "student-2")

	logger := testLogger()
	classService := NewClassService(f.classes, f.cache, logger)
	cascade := NewCascadeService(f.files, &cascadeSubmissionRepo{}, f.store, logger)
	notify := NewNotifyService(f.notifyRepo, logger, 10, 0)
	f.svc = NewAssignmentService(f.assignments, classService, cascade, notify, f.cache, logger)
	return f
}

func TestAssignmentService_Create(t *testing.T) {
	done := make(chan struct{})
	f := newAssignmentFixture(done)

	if _, err := f.svc.Create(context.Background(), studentActor, "class-1", "Essay", "", nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for student, got %v", err)
	}

	outsider := Actor{ID: "teacher-2", Teacher: true}
	if _, err := f.svc.Create(context.Background(), outsider, "class-1", "Essay", "", nil); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found for non-member teacher, got %v", err)
	}

	due := time.Date(2026, 9, 4, 23, 59, 0, 0, time.UTC)
	created, err := f.svc.Create(context.Background(), teacherActor, "class-1", "Essay", "Write 500 words", &due)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	if created.ClassID != "class-1" || created.CreatedBy != "teacher-1" {
		t.Fatalf("unexpected assignment: %+v", created)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected notification dispatch")
	}

	// 发起教师不给自己发通知
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

func TestAssignmentService_Create_NotificationOutage(t *testing.T) {
	done := make(chan struct{})
	f := newAssignmentFixture(done)
	f.notifyRepo.err = errors.New("notification store down")

	created, err := f.svc.Create(context.Background(), teacherActor, "class-1", "Essay", "", nil)
	if err != nil {
		t.Fatalf("expected creation to survive notification outage, got %v", err)
	}
	if _, ok := f.assignments.byID[created.ID]; !ok {
		t.Fatal("expected assignment to be persisted")
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

func TestAssignmentService_ListByClass_UsesCache(t *testing.T) {
	f := newAssignmentFixture(nil)
	f.assignments.Create(context.Background(), &repository.Assignment{ID: "asg-1", ClassID: "class-1", Title: "Essay"})

	first, err := f.svc.ListByClass(context.Background(), teacherActor, "class-1")
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	second, err := f.svc.ListByClass(context.Background(), teacherActor, "class-1")
	if err != nil {
		t.Fatalf("list assignments from cache: %v", err)
	}

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected 1 assignment, got %d and %d", len(first), len(second))
	}
	if f.assignments.listCalls != 1 {
		t.Fatalf("expected single repository read, got %d", f.assignments.listCalls)
	}

	if _, err := f.svc.ListByClass(context.Background(), Actor{ID: "outsider"}, "class-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found for non-member, got %v", err)
	}
}

func TestAssignmentService_Delete_CascadesAndInvalidates(t *testing.T) {
	f := newAssignmentFixture(nil)
	f.assignments.Create(context.Background(), &repository.Assignment{ID: "asg-1", ClassID: "class-1", Title: "Essay"})
	f.files.byOwner[repository.FileOwner{Kind: repository.OwnerAssignment, ID: "asg-1"}] = []repository.FileRecord{
		completedRecord("f-brief", "asg/brief.pdf", nil),
	}

	// 预热列表缓存
	if _, err := f.svc.ListByClass(context.Background(), teacherActor, "class-1"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	if err := f.svc.Delete(context.Background(), studentActor, "asg-1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for student, got %v", err)
	}
	if err := f.svc.Delete(context.Background(), teacherActor, "asg-1"); err != nil {
		t.Fatalf("delete assignment: %v", err)
	}

	if len(f.assignments.deleted) != 1 {
		t.Fatalf("expected assignment row deleted, got %v", f.assignments.deleted)
	}
	if len(f.store.deleted) != 1 || f.store.deleted[0] != "asg/brief.pdf" {
		t.Fatalf("expected attachment blob purged, got %v", f.store.deleted)
	}

	listed, err := f.svc.ListByClass(context.Background(), teacherActor, "class-1")
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected cache invalidated after delete, got %v", listed)
	}
}

func TestAssignmentService_Delete_Missing(t *testing.T) {
	f := newAssignmentFixture(nil)

	if err := f.svc.Delete(context.Background(), teacherActor, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
