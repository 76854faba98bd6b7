package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // database/sql driver

	"github.com/mkrupp/taskcase-michael/internal/domain"
	"github.com/mkrupp/taskcase-michael/internal/infra/logging"
)

// SQLiteTaskRepositoryConfig holds configuration for the SQLite task repository.
type SQLiteTaskRepositoryConfig struct {
	// DatabasePath is the filesystem path to the SQLite database file
	DatabasePath string `env:"DATABASE_PATH" default:"var/storage/todosvc_tasks.db"`
}

// SQLiteTaskRepository implements Repository using SQLite as the storage backend.
type SQLiteTaskRepository struct {
	db        *sql.DB
	log       logging.Logger
	writeLock *sync.Mutex // go-sqlite does not support concurrent writes
}

var _ Repository = (*SQLiteTaskRepository)(nil)

// SQLiteTaskRepositoryFactory creates a factory function that returns a new SQLiteTaskRepository.
// The factory function implements the RepositoryFactory type.
func SQLiteTaskRepositoryFactory(cfg SQLiteTaskRepositoryConfig) RepositoryFactory {
	return func() (Repository, error) {
		return NewSQLiteTaskRepository(cfg)
	}
}

// NewSQLiteTaskRepository creates a new SQLiteTaskRepository with the given configuration.
// It initializes the database connection and creates the schema if needed.
// Returns an error if database connection or initialization fails.
func NewSQLiteTaskRepository(cfg SQLiteTaskRepositoryConfig) (*SQLiteTaskRepository, error) {
	log := logging.GetLogger("repo.task.sqlite_task_repository").With(
		logging.Group("db", "path", cfg.DatabasePath),
	)

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := initializeDB(db); err != nil {
		return nil, fmt.Errorf("initialize db: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteTaskRepository{
		db:        db,
		log:       log,
		writeLock: new(sync.Mutex),
	}, nil
}

func initializeDB(db *sql.DB) (err error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id    INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT    NOT NULL,
			owner INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS tasks_owner_idx ON tasks (owner)
	`); err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	return nil
}

// ListByOwner implements Repository.ListByOwner using SQLite.
func (r *SQLiteTaskRepository) ListByOwner(ctx context.Context, owner int64) ([]domain.Task, error) {
	rows, err := r.db.Query(
		"SELECT id, title, owner FROM tasks WHERE owner = ? ORDER BY id DESC",
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task

	for rows.Next() {
		var task domain.Task

		if err := rows.Scan(&task.ID, &task.Title, &task.Owner); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, nil
}

// GetByIDAndOwner implements Repository.GetByIDAndOwner using SQLite.
func (r *SQLiteTaskRepository) GetByIDAndOwner(ctx context.Context, id, owner int64) (*domain.Task, bool, error) {
	var task domain.Task

	err := r.db.QueryRow(
		"SELECT id, title, owner FROM tasks WHERE id = ? AND owner = ?",
		id,
		owner,
	).Scan(&task.ID, &task.Title, &task.Owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errors.Join(domain.ErrTaskNotFound, err)
		}

		return nil, false, fmt.Errorf("query task: %w", err)
	}

	return &task, true, nil
}

// Insert implements Repository.Insert using SQLite.
func (r *SQLiteTaskRepository) Insert(ctx context.Context, owner int64, title string) (*domain.Task, error) {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	res, err := r.db.Exec(
		"INSERT INTO tasks (title, owner) VALUES (?, ?)",
		title,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return &domain.Task{
		ID:    id,
		Title: title,
		Owner: owner,
	}, nil
}

// UpdateTitle implements Repository.UpdateTitle using SQLite.
func (r *SQLiteTaskRepository) UpdateTitle(ctx context.Context, id, owner int64, title string) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	res, err := r.db.Exec(
		"UPDATE tasks SET title = ? WHERE id = ? AND owner = ?",
		title,
		id,
		owner,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return domain.ErrTaskNotFound
	}

	return nil
}

// Delete implements Repository.Delete using SQLite.
func (r *SQLiteTaskRepository) Delete(ctx context.Context, id, owner int64) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	res, err := r.db.Exec(
		"DELETE FROM tasks WHERE id = ? AND owner = ?",
		id,
		owner,
	)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return domain.ErrTaskNotFound
	}

	return nil
}

// Close implements Repository.Close by closing the database connection.
func (r *SQLiteTaskRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}
