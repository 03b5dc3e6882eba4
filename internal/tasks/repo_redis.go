package tasks

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/taskmanager/internal/platform/cache"
	"github.com/noah-isme/taskmanager/internal/shared"
)

// Redis layout:
//
//	task:{id}            hash with the task fields
//	tasks:owner:{owner}  sorted set of task ids scored by creation time
const (
	taskKeyPrefix  = "task:"
	ownerKeyPrefix = "tasks:owner:"
	scanBatch      = 100
)

// OwnerChecker reports whether a task owner still exists.
type OwnerChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// RedisRepository implements Repository on top of Redis hashes with a
// per-owner index.
type RedisRepository struct {
	client *redis.Client
	owners OwnerChecker
}

// NewRedisRepository constructs a Redis backed repository. owners is used by
// DeleteOrphaned only.
func NewRedisRepository(client *redis.Client, owners OwnerChecker) *RedisRepository {
	return &RedisRepository{client: client, owners: owners}
}

func taskKey(id string) string { return taskKeyPrefix + id }

func ownerKey(ownerID string) string { return ownerKeyPrefix + ownerID }

// Create stores a task and indexes it under its owner.
func (r *RedisRepository) Create(ctx context.Context, task *Task) error {
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, taskKey(task.ID), taskFields(task))
		pipe.ZAdd(ctx, ownerKey(task.OwnerID), redis.Z{Score: float64(now.UnixMicro()), Member: task.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("tasks: store: %w", err)
	}
	return nil
}

// Get loads a task owned by ownerID.
func (r *RedisRepository) Get(ctx context.Context, ownerID, id string) (*Task, error) {
	fields, err := r.client.HGetAll(ctx, taskKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("tasks: load: %w", err)
	}
	if len(fields) == 0 || fields["owner"] != ownerID {
		return nil, shared.ErrNotFound
	}
	return parseTask(fields)
}

// List returns the owner's tasks. Filtering, ordering and paging happen in
// memory over the owner's index.
func (r *RedisRepository) List(ctx context.Context, ownerID string, q ListQuery) ([]Task, error) {
	ids, err := r.client.ZRange(ctx, ownerKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("tasks: load index: %w", err)
	}
	if len(ids) == 0 {
		return []Task{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, taskKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tasks: load tasks: %w", err)
	}

	out := make([]Task, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 || fields["owner"] != ownerID {
			continue
		}
		task, err := parseTask(fields)
		if err != nil {
			return nil, err
		}
		if q.Completed != nil && task.Completed != *q.Completed {
			continue
		}
		out = append(out, *task)
	}

	if column, ok := sortColumns[q.SortField]; ok {
		slices.SortStableFunc(out, func(a, b Task) int {
			c := compareTasks(column, a, b)
			if q.SortDesc {
				return -c
			}
			return c
		})
	}
	return page(out, q.Skip, q.Limit), nil
}

// updateOwned rewrites the mutable fields only while the hash exists and still
// belongs to ARGV[1].
var updateOwned = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'owner') ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], 'description', ARGV[2], 'completed', ARGV[3], 'updated_at', ARGV[4])
return 1
`)

// Update writes the mutable fields of task if its owner still matches.
func (r *RedisRepository) Update(ctx context.Context, task *Task) error {
	updatedAt := time.Now().UTC()
	n, err := updateOwned.Run(ctx, r.client, []string{taskKey(task.ID)},
		task.OwnerID, task.Description, formatBool(task.Completed), formatTime(updatedAt),
	).Int()
	if err != nil {
		return fmt.Errorf("tasks: update: %w", err)
	}
	if n == 0 {
		return shared.ErrNotFound
	}
	task.UpdatedAt = updatedAt
	return nil
}

// Delete removes the owner's task and returns it.
func (r *RedisRepository) Delete(ctx context.Context, ownerID, id string) (*Task, error) {
	task, err := r.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, taskKey(id))
		pipe.ZRem(ctx, ownerKey(ownerID), id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tasks: delete: %w", err)
	}
	return task, nil
}

// DeleteAllOwnedBy removes every task indexed under ownerID. Inside a
// cache.Transactor section the deletes join the surrounding MULTI block. Only
// the ids read here leave the index, so a task created concurrently stays
// indexed for the next purge or sweep.
func (r *RedisRepository) DeleteAllOwnedBy(ctx context.Context, ownerID string) (int64, error) {
	ids, err := r.client.ZRange(ctx, ownerKey(ownerID), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("tasks: load index: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = taskKey(id)
		members[i] = id
	}
	w := cache.Writer(ctx, r.client)
	if err := w.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("tasks: delete owned: %w", err)
	}
	if err := w.ZRem(ctx, ownerKey(ownerID), members...).Err(); err != nil {
		return 0, fmt.Errorf("tasks: unindex owned: %w", err)
	}
	return int64(len(ids)), nil
}

// DeleteOrphaned scans every owner index and removes those whose owner is gone.
func (r *RedisRepository) DeleteOrphaned(ctx context.Context) (int64, error) {
	if r.owners == nil {
		return 0, fmt.Errorf("tasks: orphan sweep needs an owner checker")
	}
	var (
		removed int64
		cursor  uint64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, ownerKeyPrefix+"*", scanBatch).Result()
		if err != nil {
			return removed, fmt.Errorf("tasks: scan owners: %w", err)
		}
		for _, key := range keys {
			ownerID := strings.TrimPrefix(key, ownerKeyPrefix)
			exists, err := r.owners.Exists(ctx, ownerID)
			if err != nil {
				return removed, fmt.Errorf("tasks: check owner %s: %w", ownerID, err)
			}
			if exists {
				continue
			}
			n, err := r.DeleteAllOwnedBy(ctx, ownerID)
			if err != nil {
				return removed, err
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func compareTasks(column string, a, b Task) int {
	switch column {
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "description":
		return cmp.Compare(a.Description, b.Description)
	case "completed":
		return cmp.Compare(formatBool(a.Completed), formatBool(b.Completed))
	case "id":
		return cmp.Compare(a.ID, b.ID)
	}
	return 0
}

func page(tasks []Task, skip, limit int) []Task {
	if skip >= len(tasks) {
		return []Task{}
	}
	tasks = tasks[skip:]
	if limit > 0 && limit < len(tasks) {
		tasks = tasks[:limit]
	}
	return tasks
}

func taskFields(t *Task) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"description": t.Description,
		"completed":   formatBool(t.Completed),
		"owner":       t.OwnerID,
		"created_at":  formatTime(t.CreatedAt),
		"updated_at":  formatTime(t.UpdatedAt),
	}
}

func parseTask(fields map[string]string) (*Task, error) {
	completed, err := strconv.ParseBool(fields["completed"])
	if err != nil {
		return nil, fmt.Errorf("tasks: corrupt completed %q: %w", fields["completed"], err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("tasks: corrupt created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("tasks: corrupt updated_at: %w", err)
	}
	return &Task{
		ID:          fields["id"],
		Description: fields["description"],
		Completed:   completed,
		OwnerID:     fields["owner"],
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func formatBool(v bool) string {
	return strconv.FormatBool(v)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var _ Repository = (*RedisRepository)(nil)
