package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"classdesk/internal/repository"
	"classdesk/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

// Prometheus 级联删除指标。
var (
	blobPurgeAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cd_blob_purge_attempts_total",
		Help: "Total number of blob delete attempts during cascade deletion.",
	}, []string{"outcome"})
)

// CascadeRoot 标识可以整体删除的聚合根。
type CascadeRoot struct {
	Kind repository.OwnerKind // assignment、submission 或 announcement
	ID   string
}

// CascadeService 保证删除聚合根时不留下孤儿 blob 或孤儿行。
// 协议固定为三步：Collect（只读枚举）→ PurgeBlobs → 删根行。
type CascadeService struct {
	files       repository.FileRepository
	submissions repository.SubmissionRepository
	store       storage.BlobStore
	logger      *slog.Logger

	// purgeConcurrency 限制同时打到对象存储的删除请求数
	purgeConcurrency int
}

func NewCascadeService(files repository.FileRepository, submissions repository.SubmissionRepository, store storage.BlobStore, logger *slog.Logger) *CascadeService {
	return &CascadeService{
		files:            files,
		submissions:      submissions,
		store:            store,
		logger:           logger,
		purgeConcurrency: 8,
	}
}

// Collect 只读遍历聚合根，返回其传递持有的全部文件记录的平铺列表：
// 根自身的附件；作业根还包括每个子提交的附件与教师批注；
// 以及上述每条记录挂接的缩略图。删除开始前必须完整枚举。
func (s *CascadeService) Collect(ctx context.Context, root CascadeRoot) ([]repository.FileRecord, error) {
	if s == nil || s.files == nil {
		return nil, errors.New("cascade service not initialized")
	}

	var records []repository.FileRecord

	direct, err := s.files.ListByOwner(ctx, repository.FileOwner{Kind: root.Kind, ID: root.ID})
	if err != nil {
		return nil, fmt.Errorf("list files of %s %s: %w", root.Kind, root.ID, err)
	}
	records = append(records, direct...)

	switch root.Kind {
	case repository.OwnerAssignment:
		if s.submissions == nil {
			return nil, errors.New("cascade service missing submission repository")
		}
		subs, err := s.submissions.ListByAssignment(ctx, root.ID)
		if err != nil {
			return nil, fmt.Errorf("list submissions of assignment %s: %w", root.ID, err)
		}
		for _, sub := range subs {
			attachments, err := s.files.ListByOwner(ctx, repository.FileOwner{Kind: repository.OwnerSubmission, ID: sub.ID})
			if err != nil {
				return nil, fmt.Errorf("list attachments of submission %s: %w", sub.ID, err)
			}
			records = append(records, attachments...)

			annotations, err := s.files.ListByOwner(ctx, repository.FileOwner{Kind: repository.OwnerAnnotation, ID: sub.ID})
			if err != nil {
				return nil, fmt.Errorf("list annotations of submission %s: %w", sub.ID, err)
			}
			records = append(records, annotations...)
		}
	case repository.OwnerSubmission:
		annotations, err := s.files.ListByOwner(ctx, repository.FileOwner{Kind: repository.OwnerAnnotation, ID: root.ID})
		if err != nil {
			return nil, fmt.Errorf("list annotations of submission %s: %w", root.ID, err)
		}
		records = append(records, annotations...)
	}

	// 追加所有挂接的缩略图记录（单层关联，不会递归）
	var thumbIDs []string
	for _, rec := range records {
		if rec.ThumbnailID != nil {
			thumbIDs = append(thumbIDs, *rec.ThumbnailID)
		}
	}
	if len(thumbIDs) > 0 {
		thumbs, err := s.files.ListByIDs(ctx, thumbIDs)
		if err != nil {
			return nil, fmt.Errorf("list thumbnails: %w", err)
		}
		records = append(records, thumbs...)
	}

	return records, nil
}

// PurgeBlobs 逐条尝试删除已完成上传的记录对应的 blob。
// 兄弟记录之间并发执行，单个失败只记日志并继续，
// 可用性优先于存储侧的彻底清理。
func (s *CascadeService) PurgeBlobs(ctx context.Context, records []repository.FileRecord) {
	if s == nil || s.store == nil || len(records) == 0 {
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.purgeConcurrency)

	for _, rec := range records {
		if rec.Status != repository.FileStatusCompleted {
			// pending/failed 记录没有对应的 blob
			continue
		}
		rec := rec
		g.Go(func() error {
			if err := s.store.Delete(ctx, rec.StoragePath); err != nil {
				blobPurgeAttempts.WithLabelValues("error").Inc()
				s.logger.Error("purge blob", "path", rec.StoragePath, "file_id", rec.ID, "error", err)
				return nil
			}
			blobPurgeAttempts.WithLabelValues("ok").Inc()
			return nil
		})
	}

	// worker 永远返回 nil，这里只等待全部尝试结束
	_ = g.Wait()
}

// DeleteAssignment 按协议删除作业：先枚举并清 blob，再删根行，
// 数据库级联外键负责清掉提交与文件行，最后补删无宿主的缩略图行。
func (s *CascadeService) DeleteAssignment(ctx context.Context, assignments repository.AssignmentRepository, id string) error {
	records, err := s.Collect(ctx, CascadeRoot{Kind: repository.OwnerAssignment, ID: id})
	if err != nil {
		return err
	}

	s.PurgeBlobs(ctx, records)

	if err := assignments.Delete(ctx, id); err != nil {
		return err
	}

	return s.deleteThumbnailRows(ctx, records)
}

// DeleteSubmission 删除单个提交及其附件、批注与缩略图。
func (s *CascadeService) DeleteSubmission(ctx context.Context, submissions repository.SubmissionRepository, id string) error {
	records, err := s.Collect(ctx, CascadeRoot{Kind: repository.OwnerSubmission, ID: id})
	if err != nil {
		return err
	}

	s.PurgeBlobs(ctx, records)

	if err := submissions.Delete(ctx, id); err != nil {
		return err
	}

	return s.deleteThumbnailRows(ctx, records)
}

// DeleteAnnouncement 删除公告及其附件与缩略图。
func (s *CascadeService) DeleteAnnouncement(ctx context.Context, announcements repository.AnnouncementRepository, id string) error {
	records, err := s.Collect(ctx, CascadeRoot{Kind: repository.OwnerAnnouncement, ID: id})
	if err != nil {
		return err
	}

	s.PurgeBlobs(ctx, records)

	if err := announcements.Delete(ctx, id); err != nil {
		return err
	}

	return s.deleteThumbnailRows(ctx, records)
}

// deleteThumbnailRows 清理缩略图行。缩略图不挂在聚合根上，
// 根行删除的外键级联覆盖不到它们，需要按 id 显式删除。
func (s *CascadeService) deleteThumbnailRows(ctx context.Context, records []repository.FileRecord) error {
	var thumbIDs []string
	for _, rec := range records {
		if rec.ThumbnailID != nil {
			thumbIDs = append(thumbIDs, *rec.ThumbnailID)
		}
	}
	if len(thumbIDs) == 0 {
		return nil
	}

	if err := s.files.DeleteByIDs(ctx, thumbIDs); err != nil {
		// 行清理失败不应让调用方误以为根还在
		s.logger.Error("delete thumbnail rows", "count", len(thumbIDs), "error", err)
	}
	return nil
}
