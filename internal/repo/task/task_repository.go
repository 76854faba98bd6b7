package task

import (
	"context"

	"github.com/mkrupp/taskcase-michael/internal/domain"
)

// Repository defines the interface for task data persistence.
// Every lookup and mutation is scoped to the owning user: a task id that
// exists but belongs to someone else behaves exactly like a missing task.
type Repository interface {
	// ListByOwner returns all tasks owned by the given user,
	// ordered by descending id (most recently created first).
	ListByOwner(ctx context.Context, owner int64) ([]domain.Task, error)

	// GetByIDAndOwner retrieves a task by its id and owner.
	// Returns the task and true if found, or nil and false with
	// ErrTaskNotFound if no task matches both.
	GetByIDAndOwner(ctx context.Context, id, owner int64) (*domain.Task, bool, error)

	// Insert creates a new task owned by the given user and returns it
	// with its assigned id.
	Insert(ctx context.Context, owner int64, title string) (*domain.Task, error)

	// UpdateTitle replaces the title of the task matching (id, owner).
	// Returns ErrTaskNotFound if no task matches both.
	UpdateTitle(ctx context.Context, id, owner int64, title string) error

	// Delete removes the task matching (id, owner).
	// Returns ErrTaskNotFound if no task matches both.
	Delete(ctx context.Context, id, owner int64) error

	// Close releases any resources held by the repository.
	// Returns an error if cleanup fails.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
// Returns an error if initialization fails.
type RepositoryFactory func() (Repository, error)
