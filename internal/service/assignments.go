package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"classdesk/internal/repository"

	"github.com/google/uuid"
)

func assignmentCacheKey(classID string) string {
	return "assignments:class:" + classID
}

// AssignmentService 封装作业的创建、查询与级联删除。
type AssignmentService struct {
	assignments repository.AssignmentRepository
	classes     *ClassService
	cascade     *CascadeService
	notify      *NotifyService
	cache       Cache
	logger      *slog.Logger
}

func NewAssignmentService(
	assignments repository.AssignmentRepository,
	classes *ClassService,
	cascade *CascadeService,
	notify *NotifyService,
	cache Cache,
	logger *slog.Logger,
) *AssignmentService {
	return &AssignmentService{
		assignments: assignments,
		classes:     classes,
		cascade:     cascade,
		notify:      notify,
		cache:       cache,
		logger:      logger,
	}
}

// Create 创建作业并向班级成员异步发出通知。
// 通知是旁路副作用，它的失败不影响本次创建的结果。
func (s *AssignmentService) Create(ctx context.Context, actor Actor, classID, title, description string, dueAt *time.Time) (*repository.Assignment, error) {
	if s == nil || s.assignments == nil {
		return nil, errors.New("assignment service not initialized")
	}
	if actor.ID == "" {
		return nil, ErrUnauthorized
	}
	if !actor.Teacher {
		return nil, fmt.Errorf("%w: only teachers can create assignments", ErrForbidden)
	}
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if err := s.classes.requireMember(ctx, classID, actor); err != nil {
		return nil, err
	}

	assignment := &repository.Assignment{
		ID:          uuid.NewString(),
		ClassID:     classID,
		Title:       strings.TrimSpace(title),
		Description: description,
		DueAt:       dueAt,
		CreatedBy:   actor.ID,
	}

	created, err := s.assignments.Create(ctx, assignment)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, assignmentCacheKey(classID))
	}

	s.dispatchToClass(ctx, classID, actor.ID,
		"New assignment: "+created.Title,
		fmt.Sprintf("A new assignment was posted in your class, due %s.", formatDue(created.DueAt)))

	return created, nil
}

// Get 按 id 查询作业，仅班级成员可见。
func (s *AssignmentService) Get(ctx context.Context, actor Actor, id string) (*repository.Assignment, error) {
	if s == nil || s.assignments == nil {
		return nil, errors.New("assignment service not initialized")
	}

	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.classes.requireMember(ctx, assignment.ClassID, actor); err != nil {
		return nil, err
	}
	return assignment, nil
}

// ListByClass 返回班级作业列表，走旁路缓存。
func (s *AssignmentService) ListByClass(ctx context.Context, actor Actor, classID string) ([]repository.Assignment, error) {
	if s == nil || s.assignments == nil {
		return nil, errors.New("assignment service not initialized")
	}
	if err := s.classes.requireMember(ctx, classID, actor); err != nil {
		return nil, err
	}

	key := assignmentCacheKey(classID)
	if s.cache != nil {
		var cached []repository.Assignment
		if s.cache.GetJSON(ctx, key, &cached) {
			return cached, nil
		}
	}

	assignments, err := s.assignments.ListByClass(ctx, classID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetJSON(ctx, key, assignments)
	}
	return assignments, nil
}

// Delete 级联删除作业：先清 blob 再删行，存储侧失败不阻断删除。
func (s *AssignmentService) Delete(ctx context.Context, actor Actor, id string) error {
	if s == nil || s.assignments == nil || s.cascade == nil {
		return errors.New("assignment service not initialized")
	}
	if actor.ID == "" {
		return ErrUnauthorized
	}
	if !actor.Teacher {
		return fmt.Errorf("%w: only teachers can delete assignments", ErrForbidden)
	}

	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.classes.requireMember(ctx, assignment.ClassID, actor); err != nil {
		return err
	}

	if err := s.cascade.DeleteAssignment(ctx, s.assignments, id); err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, assignmentCacheKey(assignment.ClassID))
	}
	return nil
}

// dispatchToClass 把通知发给除发起者外的全部班级成员。
func (s *AssignmentService) dispatchToClass(ctx context.Context, classID, senderID, title, body string) {
	if s.notify == nil {
		return
	}

	members, err := s.classes.MemberIDs(ctx, classID)
	if err != nil {
		s.logger.Warn("resolve class members for notification", "class_id", classID, "error", err)
		return
	}

	recipients := members[:0:0]
	for _, id := range members {
		if id != senderID {
			recipients = append(recipients, id)
		}
	}
	s.notify.Dispatch(recipients, title, body)
}

func formatDue(dueAt *time.Time) string {
	if dueAt == nil {
		return "no due date"
	}
	return dueAt.Format("2006-01-02 15:04")
}
