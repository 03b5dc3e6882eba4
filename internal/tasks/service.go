package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/taskmanager/internal/shared"
)

// Service scopes every task operation to the calling owner.
type Service struct {
	repo     Repository
	validate *validator.Validate
}

// NewService builds a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, validate: validator.New()}
}

// Create stores a new task owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID string, input CreateInput) (*Task, error) {
	task := &Task{
		ID:          uuid.NewString(),
		Description: strings.TrimSpace(input.Description),
		OwnerID:     ownerID,
	}
	if input.Completed != nil {
		task.Completed = *input.Completed
	}
	if err := s.checkDescription(task.Description); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("tasks: create: %w", err)
	}
	return task, nil
}

// Get returns the task if ownerID owns it.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*Task, error) {
	return s.repo.Get(ctx, ownerID, id)
}

// List returns the owner's tasks shaped by q.
func (s *Service) List(ctx context.Context, ownerID string, q ListQuery) ([]Task, error) {
	tasks, err := s.repo.List(ctx, ownerID, q)
	if err != nil {
		return nil, fmt.Errorf("tasks: list: %w", err)
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return tasks, nil
}

// Update applies a partial update limited to description and completed.
// Patches naming any other key are rejected before the task is loaded.
func (s *Service) Update(ctx context.Context, ownerID, id string, patch map[string]json.RawMessage) (*Task, error) {
	keys := make([]string, 0, len(patch))
	for key := range patch {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	verr := &shared.ValidationError{}
	for _, key := range keys {
		if key != "description" && key != "completed" {
			verr.Add(key, "is not an updatable field")
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	var (
		description *string
		completed   *bool
	)
	if raw, ok := patch["description"]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			verr.Add("description", "must be a string")
		} else {
			v = strings.TrimSpace(v)
			if err := s.checkDescription(v); err != nil {
				verr.Add("description", "is required")
			}
			description = &v
		}
	}
	if raw, ok := patch["completed"]; ok {
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			verr.Add("completed", "must be a boolean")
		} else {
			completed = &v
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	task, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if description != nil {
		task.Description = *description
	}
	if completed != nil {
		task.Completed = *completed
	}
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Delete removes the task if ownerID owns it and returns what was removed.
func (s *Service) Delete(ctx context.Context, ownerID, id string) (*Task, error) {
	return s.repo.Delete(ctx, ownerID, id)
}

// DeleteAllOwnedBy removes every task of ownerID.
func (s *Service) DeleteAllOwnedBy(ctx context.Context, ownerID string) (int64, error) {
	n, err := s.repo.DeleteAllOwnedBy(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("tasks: delete owned by %s: %w", ownerID, err)
	}
	return n, nil
}

// DeleteOrphaned removes tasks whose owner has been deleted.
func (s *Service) DeleteOrphaned(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteOrphaned(ctx)
	if err != nil {
		return 0, fmt.Errorf("tasks: delete orphaned: %w", err)
	}
	return n, nil
}

func (s *Service) checkDescription(description string) error {
	if err := s.validate.Var(description, "required"); err != nil {
		return shared.NewValidationError("description", "is required")
	}
	return nil
}
