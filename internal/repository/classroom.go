package repository

import (
	"context"
	"time"
)

// Class 代表一个班级。
type Class struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	TeacherID   string    `json:"teacher_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// ClassMember 代表班级成员关系。
type ClassMember struct {
	ClassID  string    `json:"class_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Assignment 代表布置的作业。
type Assignment struct {
	ID          string     `json:"id"`
	ClassID     string     `json:"class_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Submission 代表学生对某个作业的提交。
type Submission struct {
	ID           string     `json:"id"`
	AssignmentID string     `json:"assignment_id"`
	StudentID    string     `json:"student_id"`
	Body         string     `json:"body"`
	Grade        *string    `json:"grade,omitempty"`
	Feedback     *string    `json:"feedback,omitempty"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	GradedAt     *time.Time `json:"graded_at,omitempty"`
}

// Announcement 代表班级公告。
type Announcement struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"class_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Notification 代表一条站内通知。
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// ClassRepository 班级持久层接口。
type ClassRepository interface {
	Create(ctx context.Context, class *Class) (*Class, error)
	GetByID(ctx context.Context, id string) (*Class, error)
	List(ctx context.Context, limit, offset int) ([]Class, error)
	AddMember(ctx context.Context, classID, userID string) error
	ListMemberIDs(ctx context.Context, classID string) ([]string, error)
	IsMember(ctx context.Context, classID, userID string) (bool, error)
}

// AssignmentRepository 作业持久层接口。
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *Assignment) (*Assignment, error)
	GetByID(ctx context.Context, id string) (*Assignment, error)
	ListByClass(ctx context.Context, classID string) ([]Assignment, error)
	// Delete 删除作业行，依赖数据库级联清掉提交与文件行。
	Delete(ctx context.Context, id string) error
}

// SubmissionRepository 提交持久层接口。
type SubmissionRepository interface {
	Create(ctx context.Context, submission *Submission) (*Submission, error)
	GetByID(ctx context.Context, id string) (*Submission, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]Submission, error)
	SetGrade(ctx context.Context, id, grade string, feedback *string) (*Submission, error)
	Delete(ctx context.Context, id string) error
}

// AnnouncementRepository 公告持久层接口。
type AnnouncementRepository interface {
	Create(ctx context.Context, announcement *Announcement) (*Announcement, error)
	GetByID(ctx context.Context, id string) (*Announcement, error)
	ListByClass(ctx context.Context, classID string) ([]Announcement, error)
	Delete(ctx context.Context, id string) error
}

// NotificationRepository 通知持久层接口。
type NotificationRepository interface {
	CreateBatch(ctx context.Context, notifications []Notification) error
	ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]Notification, error)
	MarkRead(ctx context.Context, id, recipientID string) error
}
