package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cengZa/zhiyin-backend/internal/domain"
	"github.com/cengZa/zhiyin-backend/internal/repository"
	"github.com/cengZa/zhiyin-backend/pkg/config"
	"github.com/cengZa/zhiyin-backend/pkg/logger"
)

type stubUserRepo struct {
	byID      map[string]*domain.User
	byAccount map[string]*domain.User
}

var _ repository.UserRepository = (*stubUserRepo)(nil)

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		byID:      make(map[string]*domain.User),
		byAccount: make(map[string]*domain.User),
	}
}

func (r *stubUserRepo) CreateUser(_ context.Context, user *domain.User) error {
	if _, exists := r.byAccount[user.Account]; exists {
		return repository.ErrDuplicate
	}
	copied := *user
	r.byID[user.ID] = &copied
	r.byAccount[user.Account] = &copied
	return nil
}

func (r *stubUserRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *stubUserRepo) GetUserByAccount(_ context.Context, account string) (*domain.User, error) {
	user, ok := r.byAccount[account]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *stubUserRepo) UpdateUser(_ context.Context, user *domain.User) error {
	if _, ok := r.byID[user.ID]; !ok {
		return repository.ErrNotFound
	}
	copied := *user
	r.byID[user.ID] = &copied
	r.byAccount[user.Account] = &copied
	return nil
}

func (r *stubUserRepo) SearchUsersByUsername(_ context.Context, fragment string) ([]domain.User, error) {
	return nil, nil
}

func (r *stubUserRepo) SearchUsersByTags(_ context.Context, tags []string) ([]domain.User, error) {
	return nil, nil
}

func (r *stubUserRepo) ListActiveTaggedUsers(_ context.Context) ([]domain.User, error) {
	return nil, nil
}

func (r *stubUserRepo) GetUsersByIDs(_ context.Context, ids []string) (map[string]domain.User, error) {
	found := make(map[string]domain.User, len(ids))
	for _, id := range ids {
		if user, ok := r.byID[id]; ok {
			found[id] = *user
		}
	}
	return found, nil
}

func newTestService(repo *stubUserRepo) Service {
	cfg := config.Config{JWTSecret: "test-secret", AccessTokenTTL: time.Hour}
	return New(repo, nil, logger.Discard(), cfg)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(newStubUserRepo())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "abc", "longenough", ""); !errors.Is(err, errAccountTooShort) {
		t.Fatalf("short account: got %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "short", ""); !errors.Is(err, errPasswordTooShort) {
		t.Fatalf("short password: got %v", err)
	}
}

func TestRegisterDefaultsAndDuplicate(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	safe, err := svc.Register(ctx, "alice", "password1", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if safe.Username != "alice" {
		t.Fatalf("username should default to account, got %q", safe.Username)
	}

	if _, err := svc.Register(ctx, "alice", "password1", "other"); !errors.Is(err, errAccountTaken) {
		t.Fatalf("duplicate account: got %v", err)
	}
}

func TestLoginRoundTrip(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "password1", "Alice"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	safe, token, err := svc.Login(ctx, "alice", "password1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" {
		t.Fatal("expected a token")
	}
	if safe.Username != "Alice" {
		t.Fatalf("unexpected user: %+v", safe)
	}

	authed, err := svc.Authorize(ctx, token)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if authed.Account != "alice" {
		t.Fatalf("authorized wrong user: %+v", authed)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "password1", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, _, err := svc.Login(ctx, "alice", "wrongpass"); !errors.Is(err, errBadCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody", "password1"); !errors.Is(err, errBadCredentials) {
		t.Fatalf("unknown account: got %v", err)
	}
}

func TestAuthorizeRejectsGarbageToken(t *testing.T) {
	svc := newTestService(newStubUserRepo())
	if _, err := svc.Authorize(context.Background(), "not-a-token"); err == nil {
		t.Fatal("expected an error for a malformed token")
	}
}

func TestUpdatePermissions(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	target := &domain.User{ID: "u1", Account: "u1", Username: "before", Role: domain.RoleUser}
	other := &domain.User{ID: "u2", Account: "u2", Role: domain.RoleUser}
	admin := &domain.User{ID: "a1", Account: "a1", Role: domain.RoleAdmin}
	for _, u := range []*domain.User{target, other, admin} {
		if err := repo.CreateUser(ctx, u); err != nil {
			t.Fatalf("seed %s: %v", u.ID, err)
		}
	}

	if err := svc.Update(ctx, other, UpdateInput{UserID: "u1", Username: "hijack"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("non-admin editing another user: got %v", err)
	}
	if err := svc.Update(ctx, target, UpdateInput{Username: "self"}); err != nil {
		t.Fatalf("self update: %v", err)
	}
	if err := svc.Update(ctx, admin, UpdateInput{UserID: "u1", Username: "by-admin", Tags: []string{"go"}}); err != nil {
		t.Fatalf("admin update: %v", err)
	}

	updated, err := repo.GetUserByID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if updated.Username != "by-admin" || len(updated.Tags) != 1 {
		t.Fatalf("update not applied: %+v", updated)
	}
}

func TestSafeViewHidesSecrets(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "password1", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}
	user, err := repo.GetUserByAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByAccount: %v", err)
	}

	safe, err := svc.Get(ctx, user.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if safe.ID != user.ID {
		t.Fatalf("unexpected id %q", safe.ID)
	}
}
