package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"classdesk/internal/repository"

	"github.com/google/uuid"
)

// SubmissionService 封装学生提交的创建、评分与级联删除。
type SubmissionService struct {
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	classes     *ClassService
	cascade     *CascadeService
	notify      *NotifyService
	logger      *slog.Logger
}

func NewSubmissionService(
	submissions repository.SubmissionRepository,
	assignments repository.AssignmentRepository,
	classes *ClassService,
	cascade *CascadeService,
	notify *NotifyService,
	logger *slog.Logger,
) *SubmissionService {
	return &SubmissionService{
		submissions: submissions,
		assignments: assignments,
		classes:     classes,
		cascade:     cascade,
		notify:      notify,
		logger:      logger,
	}
}

// Create 学生提交作业，需要是作业所属班级的成员。
func (s *SubmissionService) Create(ctx context.Context, actor Actor, assignmentID, body string) (*repository.Submission, error) {
	if s == nil || s.submissions == nil {
		return nil, errors.New("submission service not initialized")
	}
	if actor.ID == "" {
		return nil, ErrUnauthorized
	}

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.classes.requireMember(ctx, assignment.ClassID, actor); err != nil {
		return nil, err
	}

	submission := &repository.Submission{
		ID:           uuid.NewString(),
		AssignmentID: assignmentID,
		StudentID:    actor.ID,
		Body:         body,
	}
	return s.submissions.Create(ctx, submission)
}

// Get 查询提交，只有提交者本人或教师可见。
func (s *SubmissionService) Get(ctx context.Context, actor Actor, id string) (*repository.Submission, error) {
	if s == nil || s.submissions == nil {
		return nil, errors.New("submission service not initialized")
	}
	if actor.ID == "" {
		return nil, ErrUnauthorized
	}

	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if submission.StudentID != actor.ID && !actor.Teacher {
		// 不泄露存在性
		return nil, repository.ErrNotFound
	}
	return submission, nil
}

// ListByAssignment 返回作业下全部提交，仅教师可用。
func (s *SubmissionService) ListByAssignment(ctx context.Context, actor Actor, assignmentID string) ([]repository.Submission, error) {
	if s == nil || s.submissions == nil {
		return nil, errors.New("submission service not initialized")
	}
	if actor.ID == "" {
		return nil, ErrUnauthorized
	}
	if !actor.Teacher {
		return nil, fmt.Errorf("%w: only teachers can list submissions", ErrForbidden)
	}
	return s.submissions.ListByAssignment(ctx, assignmentID)
}

// Grade 教师评分并通知学生。通知失败不影响评分结果。
func (s *SubmissionService) Grade(ctx context.Context, actor Actor, id, grade string, feedback *string) (*repository.Submission, error) {
	if s == nil || s.submissions == nil {
		return nil, errors.New("submission service not initialized")
	}
	if actor.ID == "" {
		return nil, ErrUnauthorized
	}
	if !actor.Teacher {
		return nil, fmt.Errorf("%w: only teachers can grade submissions", ErrForbidden)
	}
	if strings.TrimSpace(grade) == "" {
		return nil, fmt.Errorf("%w: grade is required", ErrValidation)
	}

	graded, err := s.submissions.SetGrade(ctx, id, grade, feedback)
	if err != nil {
		return nil, err
	}

	if s.notify != nil {
		s.notify.Dispatch([]string{graded.StudentID},
			"Your submission was graded",
			fmt.Sprintf("Grade: %s", grade))
	}
	return graded, nil
}

// Delete 级联删除提交：提交者本人或教师可删。
func (s *SubmissionService) Delete(ctx context.Context, actor Actor, id string) error {
	if s == nil || s.submissions == nil || s.cascade == nil {
		return errors.New("submission service not initialized")
	}
	if actor.ID == "" {
		return ErrUnauthorized
	}

	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if submission.StudentID != actor.ID && !actor.Teacher {
		return repository.ErrNotFound
	}

	return s.cascade.DeleteSubmission(ctx, s.submissions, id)
}
