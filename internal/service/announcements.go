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

// AnnouncementService 封装公告的创建、查询与级联删除。
type AnnouncementService struct {
	announcements repository.AnnouncementRepository
	classes       *ClassService
	cascade       *CascadeService
	notify        *NotifyService
	logger        *slog.Logger
}

func NewAnnouncementService(
	announcements repository.AnnouncementRepository,
	classes *ClassService,
	cascade *CascadeService,
	notify *NotifyService,
	logger *slog.Logger,
) *AnnouncementService {
	return &AnnouncementService{
		announcements: announcements,
		classes:       classes,
		cascade:       cascade,
		notify:        notify,
		logger:        logger,
	}
}

// Create 发布公告并向班级成员异步发出通知。
// 通知失败只记日志，公告创建照常返回成功。
func (s *AnnouncementService) Create(ctx context.Context, actor Actor, classID, title, body string) (*repository.Announcement, error) {
	if s == nil || s.announcements == nil {
		return nil, errors.New("announcement service not initialized")
	}
	if actor.ID == "" {
		return nil, ErrUnauthorized
	}
	if !actor.Teacher {
		return nil, fmt.Errorf("%w: only teachers can post announcements", ErrForbidden)
	}
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if err := s.classes.requireMember(ctx, classID, actor); err != nil {
		return nil, err
	}

	announcement := &repository.Announcement{
		ID:        uuid.NewString(),
		ClassID:   classID,
		Title:     strings.TrimSpace(title),
		Body:      body,
		CreatedBy: actor.ID,
	}

	created, err := s.announcements.Create(ctx, announcement)
	if err != nil {
		return nil, err
	}

	if s.notify != nil {
		members, err := s.classes.MemberIDs(ctx, classID)
		if err != nil {
			s.logger.Warn("resolve class members for notification", "class_id", classID, "error", err)
		} else {
			recipients := members[:0:0]
			for _, id := range members {
				if id != actor.ID {
					recipients = append(recipients, id)
				}
			}
			s.notify.Dispatch(recipients, "Announcement: "+created.Title, created.Body)
		}
	}

	return created, nil
}

// ListByClass 返回班级公告列表，仅成员可见。
func (s *AnnouncementService) ListByClass(ctx context.Context, actor Actor, classID string) ([]repository.Announcement, error) {
	if s == nil || s.announcements == nil {
		return nil, errors.New("announcement service not initialized")
	}
	if err := s.classes.requireMember(ctx, classID, actor); err != nil {
		return nil, err
	}
	return s.announcements.ListByClass(ctx, classID)
}

// Delete 级联删除公告及其附件。
func (s *AnnouncementService) Delete(ctx context.Context, actor Actor, id string) error {
	if s == nil || s.announcements == nil || s.cascade == nil {
		return errors.New("announcement service not initialized")
	}
	if actor.ID == "" {
		return ErrUnauthorized
	}
	if !actor.Teacher {
		return fmt.Errorf("%w: only teachers can delete announcements", ErrForbidden)
	}

	announcement, err := s.announcements.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.classes.requireMember(ctx, announcement.ClassID, actor); err != nil {
		return err
	}

	return s.cascade.DeleteAnnouncement(ctx, s.announcements, id)
}
