package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/taskmanager/internal/platform/cache"
	"github.com/noah-isme/taskmanager/internal/shared"
)

// Redis layout:
//
//	user:{id}            hash with the profile fields
//	user:{id}:tokens     list of active tokens in issuance order
//	user:email:{email}   id of the user owning email
const (
	userKeyPrefix  = "user:"
	emailKeyPrefix = "user:email:"
)

// RedisRepository implements Repository on top of Redis documents.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository constructs a Redis backed repository.
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func userKey(id string) string { return userKeyPrefix + id }

func tokensKey(id string) string { return userKeyPrefix + id + ":tokens" }

func emailKey(email string) string { return emailKeyPrefix + email }

// Create stores a new user, claiming its email first.
func (r *RedisRepository) Create(ctx context.Context, user *User) error {
	claimed, err := r.client.SetNX(ctx, emailKey(user.Email), user.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("users: claim email: %w", err)
	}
	if !claimed {
		return fmt.Errorf("%w: email", shared.ErrDuplicate)
	}

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	w := cache.Writer(ctx, r.client)
	if err := w.HSet(ctx, userKey(user.ID), userFields(user)).Err(); err != nil {
		_ = r.client.Del(ctx, emailKey(user.Email)).Err()
		return fmt.Errorf("users: store: %w", err)
	}
	if len(user.Tokens) > 0 {
		if err := w.RPush(ctx, tokensKey(user.ID), toAny(user.Tokens)...).Err(); err != nil {
			return fmt.Errorf("users: store tokens: %w", err)
		}
	}
	return nil
}

// GetByID fetches a user by id.
func (r *RedisRepository) GetByID(ctx context.Context, id string) (*User, error) {
	fields, err := r.client.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("users: load: %w", err)
	}
	if len(fields) == 0 {
		return nil, shared.ErrNotFound
	}
	user, err := parseUser(fields)
	if err != nil {
		return nil, err
	}
	tokens, err := r.client.LRange(ctx, tokensKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("users: load tokens: %w", err)
	}
	user.Tokens = tokens
	return user, nil
}

// GetByEmail fetches a user by normalised email.
func (r *RedisRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	id, err := r.client.Get(ctx, emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("users: lookup email: %w", err)
	}
	return r.GetByID(ctx, id)
}

// Update writes profile fields, moving the email claim when it changed.
func (r *RedisRepository) Update(ctx context.Context, user *User) error {
	previous, err := r.client.HGet(ctx, userKey(user.ID), "email").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("users: load email: %w", err)
	}
	if previous != user.Email {
		claimed, err := r.client.SetNX(ctx, emailKey(user.Email), user.ID, 0).Result()
		if err != nil {
			return fmt.Errorf("users: claim email: %w", err)
		}
		if !claimed {
			return fmt.Errorf("%w: email", shared.ErrDuplicate)
		}
	}

	user.UpdatedAt = time.Now().UTC()
	w := cache.Writer(ctx, r.client)
	if err := w.HSet(ctx, userKey(user.ID), map[string]any{
		"name":          user.Name,
		"age":           strconv.Itoa(user.Age),
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"updated_at":    formatTime(user.UpdatedAt),
	}).Err(); err != nil {
		return fmt.Errorf("users: update: %w", err)
	}
	if previous != user.Email {
		if err := w.Del(ctx, emailKey(previous)).Err(); err != nil {
			return fmt.Errorf("users: release email: %w", err)
		}
	}
	return nil
}

// Delete removes the user document, its token list and its email claim.
func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	email, err := r.client.HGet(ctx, userKey(id), "email").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("users: load email: %w", err)
	}
	if err := cache.Writer(ctx, r.client).Del(ctx, userKey(id), tokensKey(id), emailKey(email)).Err(); err != nil {
		return fmt.Errorf("users: delete: %w", err)
	}
	return nil
}

// Exists reports whether the user document is present.
func (r *RedisRepository) Exists(ctx context.Context, id string) (bool, error) {
	n, err := r.client.Exists(ctx, userKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("users: exists: %w", err)
	}
	return n > 0, nil
}

// AppendToken adds token to the end of the active set.
func (r *RedisRepository) AppendToken(ctx context.Context, id, token string) error {
	if err := r.requireUser(ctx, id); err != nil {
		return err
	}
	w := cache.Writer(ctx, r.client)
	if err := w.LRem(ctx, tokensKey(id), 0, token).Err(); err != nil {
		return fmt.Errorf("users: dedupe token: %w", err)
	}
	if err := w.RPush(ctx, tokensKey(id), token).Err(); err != nil {
		return fmt.Errorf("users: append token: %w", err)
	}
	return nil
}

// RemoveToken drops token from the active set; absent tokens are a no-op.
func (r *RedisRepository) RemoveToken(ctx context.Context, id, token string) error {
	if err := r.requireUser(ctx, id); err != nil {
		return err
	}
	if err := cache.Writer(ctx, r.client).LRem(ctx, tokensKey(id), 0, token).Err(); err != nil {
		return fmt.Errorf("users: remove token: %w", err)
	}
	return nil
}

// ClearTokens empties the active set.
func (r *RedisRepository) ClearTokens(ctx context.Context, id string) error {
	if err := r.requireUser(ctx, id); err != nil {
		return err
	}
	if err := cache.Writer(ctx, r.client).Del(ctx, tokensKey(id)).Err(); err != nil {
		return fmt.Errorf("users: clear tokens: %w", err)
	}
	return nil
}

// FindByToken fetches the user only while token is still active.
func (r *RedisRepository) FindByToken(ctx context.Context, id, token string) (*User, error) {
	if _, err := r.client.LPos(ctx, tokensKey(id), token, redis.LPosArgs{}).Result(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("users: token lookup: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *RedisRepository) requireUser(ctx context.Context, id string) error {
	ok, err := r.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return shared.ErrNotFound
	}
	return nil
}

func userFields(u *User) map[string]any {
	return map[string]any{
		"id":            u.ID,
		"name":          u.Name,
		"age":           strconv.Itoa(u.Age),
		"email":         u.Email,
		"password_hash": u.PasswordHash,
		"created_at":    formatTime(u.CreatedAt),
		"updated_at":    formatTime(u.UpdatedAt),
	}
}

func parseUser(fields map[string]string) (*User, error) {
	age, err := strconv.Atoi(fields["age"])
	if err != nil {
		return nil, fmt.Errorf("users: corrupt age %q: %w", fields["age"], err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("users: corrupt created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("users: corrupt updated_at: %w", err)
	}
	return &User{
		ID:           fields["id"],
		Name:         fields["name"],
		Age:          age,
		Email:        fields["email"],
		PasswordHash: fields["password_hash"],
		Tokens:       []string{},
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

var _ Repository = (*RedisRepository)(nil)
