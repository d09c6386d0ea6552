package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	dbmigrations "classdesk/db/migrations"
)

// ledgerTable 记录已执行的迁移文件名。
const ledgerTable = "schema_migrations"

// Runner 按文件名顺序执行 embed 的 up 迁移脚本，
// 已出现在账本里的脚本直接跳过。
type Runner struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRunner(db *sql.DB, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{db: db, logger: logger}
}

// Apply 执行所有尚未执行的迁移。每个脚本跑在独立事务里，
// 任何一个失败就中止，已提交的脚本不回滚。
func (r *Runner) Apply(ctx context.Context) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("nil database connection")
	}

	if err := r.ensureLedger(ctx); err != nil {
		return err
	}

	done, err := r.appliedNames(ctx)
	if err != nil {
		return err
	}

	scripts, err := loadScripts()
	if err != nil {
		return err
	}

	applied := 0
	for _, sc := range scripts {
		if done[sc.name] {
			continue
		}
		r.logger.Info("applying migration", "name", sc.name)
		if err := r.runOne(ctx, sc); err != nil {
			return err
		}
		applied++
	}

	if applied == 0 {
		r.logger.Info("schema up to date", "migrations", len(scripts))
	} else {
		r.logger.Info("migrations applied", "count", applied)
	}
	return nil
}

type script struct {
	name string
	sql  string
}

func loadScripts() ([]script, error) {
	entries, err := fs.ReadDir(dbmigrations.UpFiles, ".")
	if err != nil {
		return nil, fmt.Errorf("read migration files: %w", err)
	}

	var scripts []script
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		data, err := dbmigrations.UpFiles.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		scripts = append(scripts, script{name: name, sql: string(data)})
	}

	sort.Slice(scripts, func(i, j int) bool { return scripts[i].name < scripts[j].name })
	return scripts, nil
}

func (r *Runner) ensureLedger(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+ledgerTable+` (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("ensure %s: %w", ledgerTable, err)
	}
	return nil
}

func (r *Runner) appliedNames(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM `+ledgerTable)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", ledgerTable, err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan %s: %w", ledgerTable, err)
		}
		done[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return done, nil
}

func (r *Runner) runOne(ctx context.Context, sc script) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, sc.sql); err != nil {
		tx.Rollback()
		return fmt.Errorf("apply migration %s: %w", sc.name, err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO `+ledgerTable+` (name) VALUES ($1)`, sc.name); err != nil {
		tx.Rollback()
		return fmt.Errorf("record migration %s: %w", sc.name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", sc.name, err)
	}

	return nil
}
