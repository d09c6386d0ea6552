package postgres

import (
	"context"
	"database/sql"

	"classdesk/internal/repository"
)

// NewAssignmentRepository 返回基于 *sql.DB 的作业仓储实现。
func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// AssignmentRepository 实现 repository.AssignmentRepository。
type AssignmentRepository struct {
	db *sql.DB
}

const assignmentSelect = `SELECT id, class_id, title, description, due_at, created_by, created_at FROM assignments`

// Create 插入作业行。
func (r *AssignmentRepository) Create(ctx context.Context, assignment *repository.Assignment) (*repository.Assignment, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO assignments (id, class_id, title, description, due_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, class_id, title, description, due_at, created_by, created_at`,
		assignment.ID, assignment.ClassID, assignment.Title, assignment.Description,
		nullTime(assignment.DueAt), assignment.CreatedBy)

	return scanAssignment(row)
}

// GetByID 按主键查询作业。
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*repository.Assignment, error) {
	row := r.db.QueryRowContext(ctx, assignmentSelect+` WHERE id = $1`, id)
	assignment, err := scanAssignment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return assignment, nil
}

// ListByClass 返回班级下全部作业。
func (r *AssignmentRepository) ListByClass(ctx context.Context, classID string) ([]repository.Assignment, error) {
	rows, err := r.db.QueryContext(ctx,
		assignmentSelect+` WHERE class_id = $1 ORDER BY created_at DESC`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []repository.Assignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *assignment)
	}

	return result, rows.Err()
}

// Delete 删除作业行，提交与文件行由数据库外键级联删除。
func (r *AssignmentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assignments WHERE id = $1`, id)
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

func scanAssignment(rs rowScanner) (*repository.Assignment, error) {
	var (
		assignment repository.Assignment
		dueAt      sql.NullTime
	)
	if err := rs.Scan(&assignment.ID, &assignment.ClassID, &assignment.Title,
		&assignment.Description, &dueAt, &assignment.CreatedBy, &assignment.CreatedAt); err != nil {
		return nil, err
	}
	assignment.DueAt = fromNullTime(dueAt)
	return &assignment, nil
}
