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

// Actor 是鉴权层交给业务层的最小身份：用户 id 与教师标记。
type Actor struct {
	ID      string
	Teacher bool
}

func memberCacheKey(classID string) string {
	return "class:members:" + classID
}

// ClassService 封装班级相关的业务流程。
type ClassService struct {
	classes repository.ClassRepository
	cache   Cache
	logger  *slog.Logger
}

func NewClassService(classes repository.ClassRepository, cache Cache, logger *slog.Logger) *ClassService {
	return &ClassService{classes: classes, cache: cache, logger: logger}
}

// Create 创建班级，仅教师可用。
func (s *ClassService) Create(ctx context.Context, actor Actor, name, description string) (*repository.Class, error) {
	if s == nil || s.classes == nil {
		return nil, errors.New("class service not initialized")
	}
	if actor.ID == "" {
		return nil, ErrUnauthorized
	}
	if !actor.Teacher {
		return nil, fmt.Errorf("%w: only teachers can create classes", ErrForbidden)
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: class name is required", ErrValidation)
	}

	class := &repository.Class{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(name),
		Description: description,
		TeacherID:   actor.ID,
	}
	return s.classes.Create(ctx, class)
}

// Get 按 id 查询班级，仅成员可见。
func (s *ClassService) Get(ctx context.Context, actor Actor, id string) (*repository.Class, error) {
	if s == nil || s.classes == nil {
		return nil, errors.New("class service not initialized")
	}

	if err := s.requireMember(ctx, id, actor); err != nil {
		return nil, err
	}
	return s.classes.GetByID(ctx, id)
}

// List 返回班级列表。
func (s *ClassService) List(ctx context.Context, limit, offset int) ([]repository.Class, error) {
	if s == nil || s.classes == nil {
		return nil, errors.New("class service not initialized")
	}
	return s.classes.List(ctx, limit, offset)
}

// AddMember 把用户加入班级并使成员缓存失效，仅教师可用。
func (s *ClassService) AddMember(ctx context.Context, actor Actor, classID, userID string) error {
	if s == nil || s.classes == nil {
		return errors.New("class service not initialized")
	}
	if actor.ID == "" {
		return ErrUnauthorized
	}
	if !actor.Teacher {
		return fmt.Errorf("%w: only teachers can add members", ErrForbidden)
	}
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}

	if _, err := s.classes.GetByID(ctx, classID); err != nil {
		return err
	}

	if err := s.classes.AddMember(ctx, classID, userID); err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, memberCacheKey(classID))
	}
	return nil
}

// MemberIDs 返回班级成员 id，走旁路缓存。
func (s *ClassService) MemberIDs(ctx context.Context, classID string) ([]string, error) {
	if s == nil || s.classes == nil {
		return nil, errors.New("class service not initialized")
	}

	key := memberCacheKey(classID)
	if s.cache != nil {
		var cached []string
		if s.cache.GetJSON(ctx, key, &cached) {
			return cached, nil
		}
	}

	ids, err := s.classes.ListMemberIDs(ctx, classID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetJSON(ctx, key, ids)
	}
	return ids, nil
}

// requireMember 校验访问者是班级成员。存在性不泄露：
// 非成员与班级不存在得到同样的 not found。
func (s *ClassService) requireMember(ctx context.Context, classID string, actor Actor) error {
	if actor.ID == "" {
		return ErrUnauthorized
	}

	member, err := s.classes.IsMember(ctx, classID, actor.ID)
	if err != nil {
		return err
	}
	if !member {
		return repository.ErrNotFound
	}
	return nil
}
