package domain

import "errors"

var (
	// ErrTaskNotFound is returned when a task does not exist or is owned by another user.
	// Both cases are indistinguishable on purpose.
	ErrTaskNotFound = errors.New("task not found")
	// ErrEmptyTitle is returned when a task title is empty or whitespace-only.
	ErrEmptyTitle = errors.New("empty task title")
)

// Task represents a single to-do entry. Every task has exactly one owner,
// set at creation and never reassigned.
type Task struct {
	ID    int64  // Unique identifier, assigned by the store
	Title string // Non-empty trimmed task text
	Owner int64  // ID of the owning user
}
