package users

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/taskmanager/internal/shared"
)

type memoryRepo struct {
	users     map[string]*User
	deleteErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[string]*User)}
}

func (r *memoryRepo) Create(ctx context.Context, user *User) error {
	for _, u := range r.users {
		if u.Email == user.Email {
			return shared.ErrDuplicate
		}
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id string) (*User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memoryRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) Update(ctx context.Context, user *User) error {
	u, ok := r.users[user.ID]
	if !ok {
		return shared.ErrNotFound
	}
	u.Name, u.Age, u.Email, u.PasswordHash = user.Name, user.Age, user.Email, user.PasswordHash
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, id string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *memoryRepo) Exists(ctx context.Context, id string) (bool, error) {
	_, ok := r.users[id]
	return ok, nil
}

func (r *memoryRepo) AppendToken(ctx context.Context, id, token string) error {
	u, ok := r.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.Tokens = append(u.Tokens, token)
	return nil
}

func (r *memoryRepo) RemoveToken(ctx context.Context, id, token string) error {
	return nil
}

func (r *memoryRepo) ClearTokens(ctx context.Context, id string) error {
	return nil
}

func (r *memoryRepo) FindByToken(ctx context.Context, id, token string) (*User, error) {
	return nil, shared.ErrNotFound
}

type stubTasks struct {
	owners []string
	err    error
}

func (s *stubTasks) DeleteAllOwnedBy(ctx context.Context, ownerID string) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.owners = append(s.owners, ownerID)
	return 2, nil
}

type recordingTx struct {
	calls int
}

func (t *recordingTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type stubPurges struct {
	owners []string
	err    error
}

func (p *stubPurges) SchedulePurge(ctx context.Context, ownerID string) error {
	p.owners = append(p.owners, ownerID)
	return p.err
}

func intPtr(v int) *int { return &v }

func newTestService(repo *memoryRepo, tasks *stubTasks, tx Transactor, purges PurgeScheduler) *Service {
	return NewService(repo, tasks, tx, ServiceConfig{BcryptCost: bcrypt.MinCost, Purges: purges})
}

func registerAlice(t *testing.T, svc *Service) *User {
	t.Helper()
	user, err := svc.Register(context.Background(), RegisterInput{
		Name:     "  Alice ",
		Age:      intPtr(30),
		Email:    " Alice@Example.COM ",
		Password: "s3cret!",
	})
	require.NoError(t, err)
	return user
}

// ============================================================================
// Register
// ============================================================================

func TestRegisterNormalisesAndHashes(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &stubTasks{}, nil, nil)

	user := registerAlice(t, svc)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, 30, user.Age)
	assert.NotEqual(t, "s3cret!", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret!")))
	assert.Empty(t, user.Tokens)
}

func TestRegisterDefaultsAgeToZero(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &stubTasks{}, nil, nil)

	user, err := svc.Register(context.Background(), RegisterInput{Name: "Bob", Email: "bob@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, 0, user.Age)
}

func TestRegisterValidation(t *testing.T) {
	cases := []struct {
		name  string
		input RegisterInput
		field string
	}{
		{"empty name", RegisterInput{Name: "  ", Email: "a@b.co", Password: "abcdef"}, "name"},
		{"bad email", RegisterInput{Name: "A", Email: "not-an-email", Password: "abcdef"}, "email"},
		{"negative age", RegisterInput{Name: "A", Age: intPtr(-1), Email: "a@b.co", Password: "abcdef"}, "age"},
		{"short password", RegisterInput{Name: "A", Email: "a@b.co", Password: "abc"}, "password"},
		{"password literal", RegisterInput{Name: "A", Email: "a@b.co", Password: "password123"}, "password"},
		{"password mixed case", RegisterInput{Name: "A", Email: "a@b.co", Password: "myPassWord!"}, "password"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(newMemoryRepo(), &stubTasks{}, nil, nil)
			_, err := svc.Register(context.Background(), tc.input)

			var verr *shared.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tc.field)
			assert.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestRegisterDuplicateEmailCaseInsensitive(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &stubTasks{}, nil, nil)
	registerAlice(t, svc)

	_, err := svc.Register(context.Background(), RegisterInput{Name: "Other", Email: "ALICE@example.com", Password: "another1"})

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "is already registered", verr.Fields["email"])
}

// ============================================================================
// FindByCredentials
// ============================================================================

func TestFindByCredentials(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &stubTasks{}, nil, nil)
	alice := registerAlice(t, svc)

	t.Run("matching credentials", func(t *testing.T) {
		user, err := svc.FindByCredentials(context.Background(), "  ALICE@example.com", "s3cret!")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, user.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.FindByCredentials(context.Background(), "alice@example.com", "wrong-one")
		assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.FindByCredentials(context.Background(), "nobody@example.com", "s3cret!")
		assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	})
}

// ============================================================================
// UpdateProfile
// ============================================================================

func patchOf(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	var patch map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &patch))
	return patch
}

func TestUpdateProfileAppliesAllowedFields(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &stubTasks{}, nil, nil)
	alice := registerAlice(t, svc)
	oldHash := alice.PasswordHash

	updated, err := svc.UpdateProfile(context.Background(), alice, patchOf(t, `{"name":" Alicia ","age":31,"email":"ALICIA@example.com","password":"n3w-secret"}`))
	require.NoError(t, err)

	assert.Equal(t, "Alicia", updated.Name)
	assert.Equal(t, 31, updated.Age)
	assert.Equal(t, "alicia@example.com", updated.Email)
	assert.NotEqual(t, oldHash, updated.PasswordHash)

	_, err = svc.FindByCredentials(context.Background(), "alicia@example.com", "n3w-secret")
	assert.NoError(t, err)
}

func TestUpdateProfileRejectsUnknownKeysBeforeApplying(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &stubTasks{}, nil, nil)
	alice := registerAlice(t, svc)

	_, err := svc.UpdateProfile(context.Background(), alice, patchOf(t, `{"name":"Mallory","tokens":[]}`))

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "tokens")

	stored, err := repo.GetByID(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.Name)
	assert.Equal(t, "Alice", alice.Name)
}

func TestUpdateProfileTypeAndRuleChecks(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &stubTasks{}, nil, nil)
	alice := registerAlice(t, svc)

	cases := map[string]string{
		`{"age":"old"}`:             "age",
		`{"age":-3}`:                "age",
		`{"age":null}`:              "age",
		`{"age":4.5}`:               "age",
		`{"name":42}`:               "name",
		`{"email":"nope"}`:          "email",
		`{"password":"Password99"}`: "password",
	}
	for body, field := range cases {
		_, err := svc.UpdateProfile(context.Background(), alice, patchOf(t, body))
		var verr *shared.ValidationError
		require.ErrorAs(t, err, &verr, body)
		assert.Contains(t, verr.Fields, field, body)
	}
}

func TestUpdateProfileNullAgeKeepsStoredAge(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, &stubTasks{}, nil, nil)
	alice := registerAlice(t, svc)

	_, err := svc.UpdateProfile(context.Background(), alice, patchOf(t, `{"age":null}`))

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must be a whole number", verr.Fields["age"])
	stored, err := repo.GetByID(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, stored.Age)
	assert.Equal(t, 30, alice.Age)
}

func TestPasswordsAreTrimmed(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &stubTasks{}, nil, nil)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{Name: "Bob", Email: "bob@example.com", Password: "  hunter22\t"})
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("hunter22")))

	for _, attempt := range []string{"hunter22", " hunter22 "} {
		_, err := svc.FindByCredentials(ctx, "bob@example.com", attempt)
		assert.NoError(t, err, "%q", attempt)
	}

	_, err = svc.Register(ctx, RegisterInput{Name: "Carol", Email: "carol@example.com", Password: "  abc   "})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "password")

	_, err = svc.UpdateProfile(ctx, user, patchOf(t, `{"password":"  n3w-secret  "}`))
	require.NoError(t, err)
	_, err = svc.FindByCredentials(ctx, "bob@example.com", "n3w-secret")
	assert.NoError(t, err)
}

func TestUpdateProfileEmailTakenByAnotherUser(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &stubTasks{}, nil, nil)
	alice := registerAlice(t, svc)
	_, err := svc.Register(context.Background(), RegisterInput{Name: "Bob", Email: "bob@example.com", Password: "hunter22"})
	require.NoError(t, err)

	_, err = svc.UpdateProfile(context.Background(), alice, patchOf(t, `{"email":"BOB@example.com"}`))

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "is already registered", verr.Fields["email"])
}

// ============================================================================
// hashIfChanged
// ============================================================================

func TestHashIfChanged(t *testing.T) {
	svc := newTestService(newMemoryRepo(), &stubTasks{}, nil, nil)
	hash, err := bcrypt.GenerateFromPassword([]byte("original"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("nil leaves hash", func(t *testing.T) {
		u := &User{PasswordHash: string(hash)}
		require.NoError(t, svc.hashIfChanged(u, nil))
		assert.Equal(t, string(hash), u.PasswordHash)
	})

	t.Run("stored hash leaves hash", func(t *testing.T) {
		u := &User{PasswordHash: string(hash)}
		raw := string(hash)
		require.NoError(t, svc.hashIfChanged(u, &raw))
		assert.Equal(t, string(hash), u.PasswordHash)
	})

	t.Run("same password leaves hash", func(t *testing.T) {
		u := &User{PasswordHash: string(hash)}
		raw := "original"
		require.NoError(t, svc.hashIfChanged(u, &raw))
		assert.Equal(t, string(hash), u.PasswordHash)
	})

	t.Run("new password rehashes", func(t *testing.T) {
		u := &User{PasswordHash: string(hash)}
		raw := "changed!"
		require.NoError(t, svc.hashIfChanged(u, &raw))
		assert.NotEqual(t, string(hash), u.PasswordHash)
		assert.False(t, strings.Contains(u.PasswordHash, "changed!"))
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("changed!")))
	})
}

// ============================================================================
// DeleteAccount
// ============================================================================

func TestDeleteAccountCascadesInsideTx(t *testing.T) {
	repo := newMemoryRepo()
	tasks := &stubTasks{}
	tx := &recordingTx{}
	purges := &stubPurges{}
	svc := newTestService(repo, tasks, tx, purges)
	alice := registerAlice(t, svc)

	require.NoError(t, svc.DeleteAccount(context.Background(), alice))

	assert.Equal(t, 1, tx.calls)
	assert.Equal(t, []string{alice.ID}, tasks.owners)
	assert.Equal(t, []string{alice.ID}, purges.owners)
	ok, _ := repo.Exists(context.Background(), alice.ID)
	assert.False(t, ok)
}

func TestDeleteAccountTaskFailureKeepsUser(t *testing.T) {
	repo := newMemoryRepo()
	tasks := &stubTasks{err: errors.New("store down")}
	purges := &stubPurges{}
	svc := newTestService(repo, tasks, nil, purges)
	alice := registerAlice(t, svc)

	err := svc.DeleteAccount(context.Background(), alice)
	require.Error(t, err)

	ok, _ := repo.Exists(context.Background(), alice.ID)
	assert.True(t, ok)
	assert.Empty(t, purges.owners)
}

func TestDeleteAccountIgnoresPurgeSchedulingFailure(t *testing.T) {
	repo := newMemoryRepo()
	purges := &stubPurges{err: errors.New("broker down")}
	svc := newTestService(repo, &stubTasks{}, nil, purges)
	alice := registerAlice(t, svc)

	assert.NoError(t, svc.DeleteAccount(context.Background(), alice))
	assert.Equal(t, []string{alice.ID}, purges.owners)
}
