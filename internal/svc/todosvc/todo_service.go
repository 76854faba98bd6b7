package todosvc

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkrupp/taskcase-michael/internal/domain"
	"github.com/mkrupp/taskcase-michael/internal/infra/logging"
	"github.com/mkrupp/taskcase-michael/internal/repo/task"
)

// TodoService provides ownership-scoped task management.
// Every operation takes the id of the requesting user and only ever sees
// tasks owned by that user; a foreign task id resolves as not found.
type TodoService struct {
	TaskRepo task.Repository
	Log      logging.Logger
}

// NewTodoService creates a new TodoService with the given task repository factory.
// Returns an error if the task repository cannot be created.
func NewTodoService(repoFactory task.RepositoryFactory) (*TodoService, error) {
	log := logging.GetLogger("svc.todosvc.todo_service")

	taskRepo, err := repoFactory()
	if err != nil {
		return nil, fmt.Errorf("new task repo: %w", err)
	}

	return &TodoService{
		TaskRepo: taskRepo,
		Log:      log,
	}, nil
}

// ListTasks returns all tasks owned by the given user, most recently
// created first.
func (s *TodoService) ListTasks(ctx context.Context, owner int64) ([]domain.Task, error) {
	tasks, err := s.TaskRepo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	return tasks, nil
}

// GetTask returns the task matching (id, owner).
// Returns domain.ErrTaskNotFound if no task matches both.
func (s *TodoService) GetTask(ctx context.Context, id, owner int64) (*domain.Task, error) {
	found, _, err := s.TaskRepo.GetByIDAndOwner(ctx, id, owner)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	return found, nil
}

// CreateTask creates a new task owned by the given user.
// The title is trimmed; domain.ErrEmptyTitle is returned if nothing remains.
func (s *TodoService) CreateTask(ctx context.Context, owner int64, title string) (_ *domain.Task, err error) {
	log := s.Log.With(logging.Group("task", "owner", owner))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "create task failed", "error", err)
		} else {
			log.DebugContext(ctx, "task created")
		}
	}()

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domain.ErrEmptyTitle
	}

	created, err := s.TaskRepo.Insert(ctx, owner, title)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	return created, nil
}

// RenameTask replaces the title of the task matching (id, owner) and
// returns the task as it was before the change.
// The title is trimmed; domain.ErrEmptyTitle is returned if nothing remains
// and the stored title is left unchanged.
func (s *TodoService) RenameTask(ctx context.Context, id, owner int64, title string) (_ *domain.Task, err error) {
	log := s.Log.With(logging.Group("task", "id", id, "owner", owner))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "rename task failed", "error", err)
		} else {
			log.DebugContext(ctx, "task renamed")
		}
	}()

	previous, _, err := s.TaskRepo.GetByIDAndOwner(ctx, id, owner)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domain.ErrEmptyTitle
	}

	if err := s.TaskRepo.UpdateTitle(ctx, id, owner, title); err != nil {
		return nil, fmt.Errorf("update title: %w", err)
	}

	return previous, nil
}

// DeleteTask removes the task matching (id, owner) and returns the deleted
// task. Returns domain.ErrTaskNotFound if no task matches both, including
// when the task was already deleted.
func (s *TodoService) DeleteTask(ctx context.Context, id, owner int64) (_ *domain.Task, err error) {
	log := s.Log.With(logging.Group("task", "id", id, "owner", owner))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "delete task failed", "error", err)
		} else {
			log.DebugContext(ctx, "task deleted")
		}
	}()

	deleted, _, err := s.TaskRepo.GetByIDAndOwner(ctx, id, owner)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	if err := s.TaskRepo.Delete(ctx, id, owner); err != nil {
		return nil, fmt.Errorf("delete task: %w", err)
	}

	return deleted, nil
}

// Close releases resources held by the service, such as database connections.
// Returns an error if cleanup fails.
func (s *TodoService) Close() error {
	if err := s.TaskRepo.Close(); err != nil {
		return fmt.Errorf("close task repo: %w", err)
	}

	return nil
}
