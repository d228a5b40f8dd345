package match

import (
	"context"
	"testing"

	"github.com/cengZa/zhiyin-backend/internal/domain"
	"github.com/cengZa/zhiyin-backend/internal/repository"
	"github.com/cengZa/zhiyin-backend/pkg/logger"
)

// poolRepo serves a fixed candidate pool and resolves full rows by id.
type poolRepo struct {
	pool []domain.User
	full map[string]domain.User
}

var _ repository.UserRepository = (*poolRepo)(nil)

func (r *poolRepo) ListActiveTaggedUsers(_ context.Context) ([]domain.User, error) {
	return r.pool, nil
}

func (r *poolRepo) GetUsersByIDs(_ context.Context, ids []string) (map[string]domain.User, error) {
	found := make(map[string]domain.User, len(ids))
	for _, id := range ids {
		if user, ok := r.full[id]; ok {
			found[id] = user
		}
	}
	return found, nil
}

func (r *poolRepo) CreateUser(_ context.Context, _ *domain.User) error        { return nil }
func (r *poolRepo) GetUserByID(_ context.Context, _ string) (*domain.User, error) {
	return nil, repository.ErrNotFound
}
func (r *poolRepo) GetUserByAccount(_ context.Context, _ string) (*domain.User, error) {
	return nil, repository.ErrNotFound
}
func (r *poolRepo) UpdateUser(_ context.Context, _ *domain.User) error { return nil }
func (r *poolRepo) SearchUsersByUsername(_ context.Context, _ string) ([]domain.User, error) {
	return nil, nil
}
func (r *poolRepo) SearchUsersByTags(_ context.Context, _ []string) ([]domain.User, error) {
	return nil, nil
}

func TestMatchUsersReturnsRankedSafeViews(t *testing.T) {
	repo := &poolRepo{
		pool: []domain.User{
			{ID: "far", Tags: []string{"x", "y"}},
			{ID: "near", Tags: []string{"a", "b"}},
			{ID: "me", Tags: []string{"a", "b"}},
		},
		full: map[string]domain.User{
			"far":  {ID: "far", Username: "Far", Tags: []string{"x", "y"}},
			"near": {ID: "near", Username: "Near", Tags: []string{"a", "b"}},
		},
	}
	svc := New(repo, logger.Discard())

	matches, err := svc.MatchUsers(context.Background(), "me", []string{"a", "b"}, 10)
	if err != nil {
		t.Fatalf("MatchUsers: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "near" || matches[1].ID != "far" {
		t.Fatalf("unexpected order: %q, %q", matches[0].ID, matches[1].ID)
	}
	if matches[0].Username != "Near" {
		t.Fatalf("expected full rows for winners, got %+v", matches[0])
	}
}

func TestMatchUsersEmptyPool(t *testing.T) {
	svc := New(&poolRepo{}, logger.Discard())

	matches, err := svc.MatchUsers(context.Background(), "me", []string{"a"}, 0)
	if err != nil {
		t.Fatalf("MatchUsers: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
}
