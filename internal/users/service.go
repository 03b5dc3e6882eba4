package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/taskmanager/internal/shared"
)

// DefaultBcryptCost is used when ServiceConfig leaves the cost unset.
const DefaultBcryptCost = 8

// TaskRemover deletes every task owned by a user.
type TaskRemover interface {
	DeleteAllOwnedBy(ctx context.Context, ownerID string) (int64, error)
}

// Transactor runs fn inside the store's atomic section.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PurgeScheduler queues a delayed cleanup of tasks left behind by a deleted owner.
type PurgeScheduler interface {
	SchedulePurge(ctx context.Context, ownerID string) error
}

// ServiceConfig carries optional collaborators and tuning.
type ServiceConfig struct {
	BcryptCost int
	Purges     PurgeScheduler
	Logger     *slog.Logger
}

// Service implements registration, login and profile management.
type Service struct {
	repo      Repository
	tasks     TaskRemover
	tx        Transactor
	purges    PurgeScheduler
	validate  *validator.Validate
	cost      int
	dummyHash []byte
	logger    *slog.Logger
}

// NewService builds a Service. tx may be nil, in which case cascade deletion
// runs as two independent writes.
func NewService(repo Repository, tasks TaskRemover, tx Transactor, cfg ServiceConfig) *Service {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// Compared against for unknown emails so both login failures cost one bcrypt round.
	dummy, _ := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cost)
	return &Service{
		repo:      repo,
		tasks:     tasks,
		tx:        tx,
		purges:    cfg.Purges,
		validate:  newValidator(),
		cost:      cost,
		dummyHash: dummy,
		logger:    logger,
	}
}

// Register validates input and stores a new user with a hashed password.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	user := &User{
		ID:     uuid.NewString(),
		Name:   strings.TrimSpace(input.Name),
		Email:  normaliseEmail(input.Email),
		Tokens: []string{},
	}
	if input.Age != nil {
		user.Age = *input.Age
	}

	verr := &shared.ValidationError{}
	checkField(s.validate, verr, "name", user.Name)
	checkField(s.validate, verr, "email", user.Email)
	password := strings.TrimSpace(input.Password)
	checkField(s.validate, verr, "password", password)
	checkField(s.validate, verr, "age", user.Age)
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if err := s.ensureEmailFree(ctx, user.Email, ""); err != nil {
		return nil, err
	}
	if err := s.hashIfChanged(user, &password); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, duplicateEmail(err)
	}
	return user, nil
}

// FindByCredentials returns the user whose email and password match. Unknown
// emails and wrong passwords fail identically. Passwords are compared trimmed,
// as they were stored.
func (s *Service) FindByCredentials(ctx context.Context, email, password string) (*User, error) {
	password = strings.TrimSpace(password)
	user, err := s.repo.GetByEmail(ctx, normaliseEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, shared.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("users: find by email: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// GetByID loads a user.
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

var updatableFields = map[string]struct{}{
	"name":     {},
	"email":    {},
	"password": {},
	"age":      {},
}

// UpdateProfile applies a partial update. Any key outside the allow-list
// rejects the whole patch before a field is touched.
func (s *Service) UpdateProfile(ctx context.Context, user *User, patch map[string]json.RawMessage) (*User, error) {
	verr := &shared.ValidationError{}
	keys := make([]string, 0, len(patch))
	for key := range patch {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, ok := updatableFields[key]; !ok {
			verr.Add(key, "is not an updatable field")
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	updated := *user
	var password *string
	for _, key := range keys {
		raw := patch[key]
		switch key {
		case "name":
			var name string
			if err := json.Unmarshal(raw, &name); err != nil {
				verr.Add(key, "must be a string")
				continue
			}
			updated.Name = strings.TrimSpace(name)
			checkField(s.validate, verr, key, updated.Name)
		case "email":
			var email string
			if err := json.Unmarshal(raw, &email); err != nil {
				verr.Add(key, "must be a string")
				continue
			}
			updated.Email = normaliseEmail(email)
			checkField(s.validate, verr, key, updated.Email)
		case "password":
			var pw string
			if err := json.Unmarshal(raw, &pw); err != nil {
				verr.Add(key, "must be a string")
				continue
			}
			pw = strings.TrimSpace(pw)
			checkField(s.validate, verr, key, pw)
			password = &pw
		case "age":
			var age *int
			if err := json.Unmarshal(raw, &age); err != nil || age == nil {
				verr.Add(key, "must be a whole number")
				continue
			}
			updated.Age = *age
			checkField(s.validate, verr, key, updated.Age)
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if updated.Email != user.Email {
		if err := s.ensureEmailFree(ctx, updated.Email, user.ID); err != nil {
			return nil, err
		}
	}
	if err := s.hashIfChanged(&updated, password); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, duplicateEmail(err)
	}
	*user = updated
	return user, nil
}

// DeleteAccount removes the user's tasks and then the user inside one atomic
// section, then schedules a delayed purge for tasks that raced the deletion.
func (s *Service) DeleteAccount(ctx context.Context, user *User) error {
	cascade := func(ctx context.Context) error {
		if _, err := s.tasks.DeleteAllOwnedBy(ctx, user.ID); err != nil {
			return fmt.Errorf("users: delete tasks: %w", err)
		}
		if err := s.repo.Delete(ctx, user.ID); err != nil {
			return fmt.Errorf("users: delete: %w", err)
		}
		return nil
	}

	var err error
	if s.tx != nil {
		err = s.tx.WithinTx(ctx, cascade)
	} else {
		err = cascade(ctx)
	}
	if err != nil {
		return err
	}

	if s.purges != nil {
		if err := s.purges.SchedulePurge(ctx, user.ID); err != nil {
			s.logger.Warn("schedule owner purge", slog.String("owner", user.ID), slog.Any("error", err))
		}
	}
	return nil
}

// hashIfChanged replaces user.PasswordHash with a hash of raw unless raw is
// nil, already the stored hash, or the password the hash was made from.
func (s *Service) hashIfChanged(user *User, raw *string) error {
	if raw == nil {
		return nil
	}
	if user.PasswordHash != "" {
		if *raw == user.PasswordHash {
			return nil
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(*raw)) == nil {
			return nil
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(*raw), s.cost)
	if err != nil {
		return fmt.Errorf("users: hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	return nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email, selfID string) error {
	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("users: check email: %w", err)
	}
	if existing.ID == selfID {
		return nil
	}
	return shared.NewValidationError("email", "is already registered")
}

func duplicateEmail(err error) error {
	if errors.Is(err, shared.ErrDuplicate) {
		return shared.NewValidationError("email", "is already registered")
	}
	return err
}
