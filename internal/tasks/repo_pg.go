package tasks

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/taskmanager/internal/platform/db"
	"github.com/noah-isme/taskmanager/internal/shared"
)

const taskColumns = `id::text, description, completed, owner_id::text, created_at, updated_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PostgreSQL repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts a task.
func (r *PGRepository) Create(ctx context.Context, task *Task) error {
	now := time.Now().UTC()
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO tasks (id, description, completed, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		task.ID, task.Description, task.Completed, task.OwnerID, now)
	if err != nil {
		return db.Classify(err)
	}
	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

// Get loads a task owned by ownerID.
func (r *PGRepository) Get(ctx context.Context, ownerID, id string) (*Task, error) {
	if !validIDs(ownerID, id) {
		return nil, shared.ErrNotFound
	}
	row := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND owner_id = $2`, id, ownerID)
	return scanTask(row)
}

// List returns the owner's tasks.
func (r *PGRepository) List(ctx context.Context, ownerID string, q ListQuery) ([]Task, error) {
	if !validIDs(ownerID) {
		return []Task{}, nil
	}
	query, args := buildListQuery(ownerID, q)
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	out := []Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return out, nil
}

// Update writes the mutable fields of task, still conditioned on its owner.
func (r *PGRepository) Update(ctx context.Context, task *Task) error {
	if !validIDs(task.OwnerID, task.ID) {
		return shared.ErrNotFound
	}
	row := db.Conn(ctx, r.pool).QueryRow(ctx,
		`UPDATE tasks SET description = $3, completed = $4, updated_at = $5
		 WHERE id = $1 AND owner_id = $2
		 RETURNING updated_at`,
		task.ID, task.OwnerID, task.Description, task.Completed, time.Now().UTC())
	if err := row.Scan(&task.UpdatedAt); err != nil {
		return db.Classify(err)
	}
	return nil
}

// Delete removes the owner's task and returns it.
func (r *PGRepository) Delete(ctx context.Context, ownerID, id string) (*Task, error) {
	if !validIDs(ownerID, id) {
		return nil, shared.ErrNotFound
	}
	row := db.Conn(ctx, r.pool).QueryRow(ctx,
		`DELETE FROM tasks WHERE id = $1 AND owner_id = $2 RETURNING `+taskColumns, id, ownerID)
	return scanTask(row)
}

// DeleteAllOwnedBy removes every task of ownerID.
func (r *PGRepository) DeleteAllOwnedBy(ctx context.Context, ownerID string) (int64, error) {
	if !validIDs(ownerID) {
		return 0, nil
	}
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM tasks WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, db.Classify(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOrphaned removes tasks whose owner row is gone.
func (r *PGRepository) DeleteOrphaned(ctx context.Context) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM tasks t WHERE NOT EXISTS (SELECT 1 FROM users u WHERE u.id = t.owner_id)`)
	if err != nil {
		return 0, db.Classify(err)
	}
	return tag.RowsAffected(), nil
}

// buildListQuery renders the owner-scoped SELECT for q. Sort names are only
// ever turned into SQL through sortColumns.
func buildListQuery(ownerID string, q ListQuery) (string, []any) {
	var b strings.Builder
	args := []any{ownerID}
	b.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = $1`)

	if q.Completed != nil {
		args = append(args, *q.Completed)
		b.WriteString(` AND completed = $` + strconv.Itoa(len(args)))
	}

	if column, ok := sortColumns[q.SortField]; ok {
		direction := "ASC"
		if q.SortDesc {
			direction = "DESC"
		}
		fmt.Fprintf(&b, ` ORDER BY %s %s, id %s`, column, direction, direction)
	} else {
		b.WriteString(` ORDER BY created_at ASC, id ASC`)
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		b.WriteString(` LIMIT $` + strconv.Itoa(len(args)))
	}
	if q.Skip > 0 {
		args = append(args, q.Skip)
		b.WriteString(` OFFSET $` + strconv.Itoa(len(args)))
	}
	return b.String(), args
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	if err := row.Scan(&t.ID, &t.Description, &t.Completed, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, db.Classify(err)
	}
	return &t, nil
}

func validIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

var _ Repository = (*PGRepository)(nil)
