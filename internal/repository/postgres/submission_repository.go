package postgres

import (
	"context"
	"database/sql"
	"time"

	"classdesk/internal/repository"
)

// NewSubmissionRepository 返回基于 *sql.DB 的提交仓储实现。
func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// SubmissionRepository 实现 repository.SubmissionRepository。
type SubmissionRepository struct {
	db *sql.DB
}

const submissionSelect = `SELECT id, assignment_id, student_id, body, grade, feedback, submitted_at, graded_at FROM submissions`

// Create 插入提交行。
func (r *SubmissionRepository) Create(ctx context.Context, submission *repository.Submission) (*repository.Submission, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO submissions (id, assignment_id, student_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING id, assignment_id, student_id, body, grade, feedback, submitted_at, graded_at`,
		submission.ID, submission.AssignmentID, submission.StudentID, submission.Body)

	return scanSubmission(row)
}

// GetByID 按主键查询提交。
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*repository.Submission, error) {
	row := r.db.QueryRowContext(ctx, submissionSelect+` WHERE id = $1`, id)
	submission, err := scanSubmission(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return submission, nil
}

// ListByAssignment 返回作业下全部提交。
func (r *SubmissionRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]repository.Submission, error) {
	rows, err := r.db.QueryContext(ctx,
		submissionSelect+` WHERE assignment_id = $1 ORDER BY submitted_at`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []repository.Submission
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *submission)
	}

	return result, rows.Err()
}

// SetGrade 写入评分与评语。
func (r *SubmissionRepository) SetGrade(ctx context.Context, id, grade string, feedback *string) (*repository.Submission, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE submissions SET grade = $1, feedback = $2, graded_at = $3
		WHERE id = $4
		RETURNING id, assignment_id, student_id, body, grade, feedback, submitted_at, graded_at`,
		grade, nullString(feedback), time.Now().UTC(), id)

	submission, err := scanSubmission(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return submission, nil
}

// Delete 删除提交行，挂在提交上的文件行由外键级联删除。
func (r *SubmissionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func scanSubmission(rs rowScanner) (*repository.Submission, error) {
	var (
		submission repository.Submission
		grade      sql.NullString
		feedback   sql.NullString
		gradedAt   sql.NullTime
	)
	if err := rs.Scan(&submission.ID, &submission.AssignmentID, &submission.StudentID,
		&submission.Body, &grade, &feedback, &submission.SubmittedAt, &gradedAt); err != nil {
		return nil, err
	}
	submission.Grade = fromNullString(grade)
	submission.Feedback = fromNullString(feedback)
	submission.GradedAt = fromNullTime(gradedAt)
	return &submission, nil
}
