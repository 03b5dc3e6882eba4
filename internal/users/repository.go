package users

import "context"

// Repository defines persistence operations for users. Implementations return
// shared.ErrNotFound for missing users and shared.ErrDuplicate when an email
// is already registered.
type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)

	AppendToken(ctx context.Context, id, token string) error
	RemoveToken(ctx context.Context, id, token string) error
	ClearTokens(ctx context.Context, id string) error
	// FindByToken returns the user only while token is still in its active set.
	FindByToken(ctx context.Context, id, token string) (*User, error)
}
