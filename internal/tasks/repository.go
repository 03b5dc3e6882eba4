package tasks

import "context"

// Repository persists tasks. Every read and write that names a task also
// names its owner, and a task owned by someone else behaves exactly like a
// missing one (shared.ErrNotFound).
type Repository interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, ownerID, id string) (*Task, error)
	List(ctx context.Context, ownerID string, q ListQuery) ([]Task, error)
	Update(ctx context.Context, task *Task) error
	Delete(ctx context.Context, ownerID, id string) (*Task, error)
	DeleteAllOwnedBy(ctx context.Context, ownerID string) (int64, error)
	// DeleteOrphaned removes tasks whose owner no longer exists.
	DeleteOrphaned(ctx context.Context) (int64, error)
}
