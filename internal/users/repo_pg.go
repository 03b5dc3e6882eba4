package users

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/taskmanager/internal/platform/db"
	"github.com/noah-isme/taskmanager/internal/shared"
)

const userColumns = `id::text, name, age, email, password_hash, tokens, created_at, updated_at`

// PGRepository implements Repository using PostgreSQL. Each user row is one
// document; the token set lives in a TEXT[] column.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PostgreSQL repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts a new user.
func (r *PGRepository) Create(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	if user.Tokens == nil {
		user.Tokens = []string{}
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO users (id, name, age, email, password_hash, tokens, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		user.ID, user.Name, user.Age, user.Email, user.PasswordHash, user.Tokens, now)
	if err != nil {
		return fmt.Errorf("users: insert: %w", db.Classify(err))
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetByID fetches a user by id.
func (r *PGRepository) GetByID(ctx context.Context, id string) (*User, error) {
	if !validID(id) {
		return nil, shared.ErrNotFound
	}
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail fetches a user by normalised email.
func (r *PGRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return scanUser(row)
}

// Update writes profile fields and the password hash. Tokens are untouched;
// they only change through the token operations below.
func (r *PGRepository) Update(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE users SET name = $2, age = $3, email = $4, password_hash = $5, updated_at = $6 WHERE id = $1`,
		user.ID, user.Name, user.Age, user.Email, user.PasswordHash, now)
	if err != nil {
		return fmt.Errorf("users: update: %w", db.Classify(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	user.UpdatedAt = now
	return nil
}

// Delete removes a user row.
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return shared.ErrNotFound
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("users: delete: %w", db.Classify(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Exists reports whether a user row with id is present.
func (r *PGRepository) Exists(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("users: exists: %w", db.Classify(err))
	}
	return exists, nil
}

// AppendToken adds token to the end of the active set.
func (r *PGRepository) AppendToken(ctx context.Context, id, token string) error {
	return r.mutateTokens(ctx, `UPDATE users SET tokens = array_append(array_remove(tokens, $2), $2), updated_at = $3 WHERE id = $1`, id, token)
}

// RemoveToken drops token from the active set; absent tokens are a no-op.
func (r *PGRepository) RemoveToken(ctx context.Context, id, token string) error {
	return r.mutateTokens(ctx, `UPDATE users SET tokens = array_remove(tokens, $2), updated_at = $3 WHERE id = $1`, id, token)
}

// ClearTokens empties the active set.
func (r *PGRepository) ClearTokens(ctx context.Context, id string) error {
	if !validID(id) {
		return shared.ErrNotFound
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE users SET tokens = '{}', updated_at = $2 WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("users: clear tokens: %w", db.Classify(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByToken fetches the user only while token is still active.
func (r *PGRepository) FindByToken(ctx context.Context, id, token string) (*User, error) {
	if !validID(id) {
		return nil, shared.ErrNotFound
	}
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND $2 = ANY(tokens)`, id, token)
	return scanUser(row)
}

func (r *PGRepository) mutateTokens(ctx context.Context, query, id, token string) error {
	if !validID(id) {
		return shared.ErrNotFound
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query, id, token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("users: update tokens: %w", db.Classify(err))
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.Age, &u.Email, &u.PasswordHash, &u.Tokens, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, db.Classify(err)
	}
	return &u, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

var _ Repository = (*PGRepository)(nil)
