package repository

import (
	"context"

	"github.com/cengZa/zhiyin-backend/internal/domain"
)

// Page bounds a listing request.
type Page struct {
	Num  int
	Size int
}

// TeamFilter selects teams in ListTeams. Zero-valued fields are skipped; each
// set field maps to exactly one predicate.
type TeamFilter struct {
	ID          string
	IDs         []string
	SearchText  string
	Name        string
	Description string
	MaxMembers  int
	OwnerID     string
	Visibility  domain.Visibility
	// IncludeExpired keeps teams whose expire_at has passed. Open listings
	// leave it false.
	IncludeExpired bool
}

// UserRepository persists user accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByAccount(ctx context.Context, account string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
	SearchUsersByUsername(ctx context.Context, fragment string) ([]domain.User, error)
	SearchUsersByTags(ctx context.Context, tags []string) ([]domain.User, error)
	// ListActiveTaggedUsers returns id and tags of every active user with a
	// non-empty tag list; the matching candidate pool.
	ListActiveTaggedUsers(ctx context.Context) ([]domain.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]domain.User, error)
}

// TeamRepository manages team records. Multi-row mutations run in a single
// transaction; partial application is never visible.
type TeamRepository interface {
	// CreateTeamWithOwner inserts the team row and the creator's membership
	// row atomically.
	CreateTeamWithOwner(ctx context.Context, team *domain.Team) error
	GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error)
	UpdateTeam(ctx context.Context, team *domain.Team) error
	CountTeamsByOwner(ctx context.Context, ownerID string) (int, error)
	ListTeams(ctx context.Context, filter TeamFilter, page Page) ([]domain.Team, int, error)
	// DeleteTeamCascade soft-deletes all membership rows for the team and the
	// team row itself atomically.
	DeleteTeamCascade(ctx context.Context, teamID string) error
	// TransferOwnership reassigns the team's owner and removes the departing
	// member's row atomically.
	TransferOwnership(ctx context.Context, teamID, newOwnerID, departingUserID string) error
}

// MembershipRepository manages the user-team join relation.
type MembershipRepository interface {
	InsertMembership(ctx context.Context, m *domain.Membership) error
	RemoveMembership(ctx context.Context, teamID, userID string) error
	HasMembership(ctx context.Context, teamID, userID string) (bool, error)
	CountTeamMembers(ctx context.Context, teamID string) (int, error)
	CountUserMemberships(ctx context.Context, userID string) (int, error)
	// ListEarliestMembers returns live members ordered by join time ascending.
	ListEarliestMembers(ctx context.Context, teamID string, limit int) ([]domain.Membership, error)
	CountMembersByTeam(ctx context.Context, teamIDs []string) (map[string]int, error)
	JoinedTeamIDs(ctx context.Context, userID string, teamIDs []string) (map[string]struct{}, error)
	// ListUserTeamIDs returns ids of every team the user is a live member of.
	ListUserTeamIDs(ctx context.Context, userID string) ([]string, error)
}
