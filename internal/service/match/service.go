package match

import (
	"context"

	"log/slog"

	"github.com/cengZa/zhiyin-backend/internal/domain"
	"github.com/cengZa/zhiyin-backend/internal/repository"
)

// Service resolves the candidate pool and returns ranked safe views.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger) Service {
	return Service{users: users, logger: logger}
}

const defaultMatchLimit = 20

// MatchUsers ranks active tagged users by affinity to the reference user and
// returns up to limit safe views in ranked order.
func (s Service) MatchUsers(ctx context.Context, referenceID string, referenceTags []string, limit int) ([]domain.SafeUser, error) {
	if limit <= 0 {
		limit = defaultMatchLimit
	}

	// The pool query projects id and tags only; full rows are fetched for the
	// winners afterwards.
	pool, err := s.users.ListActiveTaggedUsers(ctx)
	if err != nil {
		return nil, err
	}

	ranked := Rank(referenceID, referenceTags, pool, limit)
	if len(ranked) == 0 {
		return []domain.SafeUser{}, nil
	}

	ids := make([]string, 0, len(ranked))
	for _, u := range ranked {
		ids = append(ids, u.ID)
	}
	full, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	matches := make([]domain.SafeUser, 0, len(ranked))
	for _, u := range ranked {
		if user, ok := full[u.ID]; ok {
			matches = append(matches, user.Safe())
		}
	}
	s.logger.Info("match computed", "user_id", referenceID, "pool_size", len(pool), "returned", len(matches))
	return matches, nil
}
