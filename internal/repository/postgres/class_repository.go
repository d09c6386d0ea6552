package postgres

import (
	"context"
	"database/sql"

	"classdesk/internal/repository"
)

// NewClassRepository 返回基于 *sql.DB 的班级仓储实现。
func NewClassRepository(db *sql.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// ClassRepository 实现 repository.ClassRepository。
type ClassRepository struct {
	db *sql.DB
}

const classSelect = `SELECT id, name, description, teacher_id, created_at FROM classes`

// Create 插入班级行并把创建教师记为首位成员。
func (r *ClassRepository) Create(ctx context.Context, class *repository.Class) (*repository.Class, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx,
		`INSERT INTO classes (id, name, description, teacher_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, description, teacher_id, created_at`,
		class.ID, class.Name, class.Description, class.TeacherID)

	created, err := scanClass(row)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO class_members (class_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		created.ID, created.TeacherID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return created, nil
}

// GetByID 按主键查询班级。
func (r *ClassRepository) GetByID(ctx context.Context, id string) (*repository.Class, error) {
	row := r.db.QueryRowContext(ctx, classSelect+` WHERE id = $1`, id)
	class, err := scanClass(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return class, nil
}

// List 返回班级列表。
func (r *ClassRepository) List(ctx context.Context, limit, offset int) ([]repository.Class, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		classSelect+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []repository.Class
	for rows.Next() {
		class, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *class)
	}

	return result, rows.Err()
}

// AddMember 把用户加入班级，重复加入是幂等的。
func (r *ClassRepository) AddMember(ctx context.Context, classID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO class_members (class_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		classID, userID)
	return err
}

// ListMemberIDs 返回班级全部成员的用户 id。
func (r *ClassRepository) ListMemberIDs(ctx context.Context, classID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM class_members WHERE class_id = $1 ORDER BY joined_at`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// IsMember 判断用户是否属于指定班级。
func (r *ClassRepository) IsMember(ctx context.Context, classID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM class_members WHERE class_id = $1 AND user_id = $2)`,
		classID, userID).Scan(&exists)
	return exists, err
}

func scanClass(rs rowScanner) (*repository.Class, error) {
	var class repository.Class
	if err := rs.Scan(&class.ID, &class.Name, &class.Description, &class.TeacherID, &class.CreatedAt); err != nil {
		return nil, err
	}
	return &class, nil
}
