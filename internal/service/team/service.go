// Package team implements the membership coordination state machine: team
// creation, updates, joining, quitting with leadership transfer, and deletion.
package team

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/cengZa/zhiyin-backend/internal/domain"
	"github.com/cengZa/zhiyin-backend/internal/lock"
	"github.com/cengZa/zhiyin-backend/internal/repository"
	"github.com/cengZa/zhiyin-backend/internal/ws"
)

const (
	// A user may lead at most this many live teams.
	maxOwnedTeams = 5
	// A user may hold at most this many live memberships.
	maxJoinedTeams = 5

	minTeamCapacity = 1
	maxTeamCapacity = 20

	maxPasswordLen = 32

	// The join lock is never waited on; a held lock fails the join fast.
	joinLockWait  = 0
	joinLockLease = 10 * time.Second
)

// Service coordinates team membership. Join is the only operation that takes
// the per-team lock; quit deliberately races it (observed design, kept).
type Service struct {
	teams   repository.TeamRepository
	members repository.MembershipRepository
	users   repository.UserRepository
	locker  lock.Locker
	hub     *ws.Hub
	logger  *slog.Logger
}

// New constructs a Service. hub may be nil when no event stream is wanted.
func New(teams repository.TeamRepository, members repository.MembershipRepository, users repository.UserRepository, locker lock.Locker, hub *ws.Hub, logger *slog.Logger) Service {
	return Service{teams: teams, members: members, users: users, locker: locker, hub: hub, logger: logger}
}

// CreateInput carries team creation attributes.
type CreateInput struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	MaxMembers  int               `json:"max_members"`
	ExpireAt    *time.Time        `json:"expire_at"`
	Visibility  domain.Visibility `json:"visibility"`
	Password    string            `json:"password"`
}

// UpdateInput carries mutable team attributes.
type UpdateInput struct {
	TeamID      string            `json:"team_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	MaxMembers  int               `json:"max_members"`
	ExpireAt    *time.Time        `json:"expire_at"`
	Visibility  domain.Visibility `json:"visibility"`
	Password    string            `json:"password"`
}

// Create registers a team with the creator as owner and first member. The two
// inserts are one transaction.
func (s Service) Create(ctx context.Context, creatorID string, input CreateInput) (*domain.Team, error) {
	if err := validateInput(input.Name, input.MaxMembers, input.ExpireAt, input.Visibility, input.Password); err != nil {
		return nil, err
	}

	owned, err := s.teams.CountTeamsByOwner(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if owned >= maxOwnedTeams {
		return nil, fmt.Errorf("%w: at most %d teams may be created", domain.ErrLimitExceeded, maxOwnedTeams)
	}

	now := time.Now().UTC()
	team := &domain.Team{
		ID:          uuid.NewString(),
		Name:        input.Name,
		Description: input.Description,
		MaxMembers:  input.MaxMembers,
		ExpireAt:    input.ExpireAt,
		Visibility:  input.Visibility,
		Password:    input.Password,
		OwnerID:     creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.teams.CreateTeamWithOwner(ctx, team); err != nil {
		return nil, err
	}
	s.logger.Info("team created", "team_id", team.ID, "owner_id", creatorID, "visibility", team.Visibility)
	return team, nil
}

// Update copies mutable fields over an existing team. Only the current owner
// may update; membership is untouched.
func (s Service) Update(ctx context.Context, requesterID string, input UpdateInput) error {
	team, err := s.getTeam(ctx, input.TeamID)
	if err != nil {
		return err
	}
	if team.OwnerID != requesterID {
		return domain.ErrForbidden
	}
	if err := validateInput(input.Name, input.MaxMembers, input.ExpireAt, input.Visibility, input.Password); err != nil {
		return err
	}

	team.Name = input.Name
	team.Description = input.Description
	team.MaxMembers = input.MaxMembers
	team.ExpireAt = input.ExpireAt
	team.Visibility = input.Visibility
	team.Password = input.Password
	if err := s.teams.UpdateTeam(ctx, team); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	s.logger.Info("team updated", "team_id", team.ID, "requester_id", requesterID)
	return nil
}

// Join adds the requester to the team. Capacity and duplicate checks and the
// membership insert run under the per-team lock; two concurrent joiners can
// otherwise both pass the capacity check and overshoot MaxMembers.
func (s Service) Join(ctx context.Context, teamID, password, requesterID string) error {
	team, err := s.getTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if team.Expired(time.Now()) {
		return domain.InvalidState("team expired")
	}
	if team.Visibility == domain.VisibilityPrivate {
		return domain.ErrForbidden
	}
	if team.Visibility == domain.VisibilitySecret && password != team.Password {
		return domain.InvalidState("wrong password")
	}

	lease, err := s.locker.TryAcquire(ctx, "join_team:"+teamID, joinLockWait, joinLockLease)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return domain.ErrLockTimeout
		}
		return err
	}
	// The release must run on every exit path; the lease TTL only bounds the
	// damage when it does not.
	defer func() {
		if releaseErr := lease.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			s.logger.Error("join lock release failed", "team_id", teamID, "error", releaseErr)
		}
	}()

	joined, err := s.members.CountUserMemberships(ctx, requesterID)
	if err != nil {
		return err
	}
	if joined >= maxJoinedTeams {
		return fmt.Errorf("%w: at most %d teams may be joined", domain.ErrLimitExceeded, maxJoinedTeams)
	}

	isMember, err := s.members.HasMembership(ctx, teamID, requesterID)
	if err != nil {
		return err
	}
	if isMember {
		return domain.ErrAlreadyMember
	}

	memberCount, err := s.members.CountTeamMembers(ctx, teamID)
	if err != nil {
		return err
	}
	if memberCount >= team.MaxMembers {
		return domain.ErrTeamFull
	}

	membership := &domain.Membership{
		TeamID:   teamID,
		UserID:   requesterID,
		JoinedAt: time.Now().UTC(),
	}
	if err := s.members.InsertMembership(ctx, membership); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.ErrAlreadyMember
		}
		return err
	}

	s.logger.Info("member joined", "team_id", teamID, "user_id", requesterID)
	s.publish(teamID, MemberJoined, requesterID, "")
	return nil
}

// Quit removes the requester from the team. The sole remaining member
// dissolves the team; a departing owner hands leadership to the
// second-earliest joiner. No per-team lock is taken here.
func (s Service) Quit(ctx context.Context, teamID, requesterID string) error {
	team, err := s.getTeam(ctx, teamID)
	if err != nil {
		return err
	}

	isMember, err := s.members.HasMembership(ctx, teamID, requesterID)
	if err != nil {
		return err
	}
	if !isMember {
		return domain.ErrNotAMember
	}

	memberCount, err := s.members.CountTeamMembers(ctx, teamID)
	if err != nil {
		return err
	}

	if memberCount == 1 {
		if err := s.teams.DeleteTeamCascade(ctx, teamID); err != nil {
			return err
		}
		s.logger.Info("team dissolved", "team_id", teamID, "last_member", requesterID)
		s.publish(teamID, TeamDissolved, requesterID, "")
		return nil
	}

	if team.OwnerID == requesterID {
		earliest, err := s.members.ListEarliestMembers(ctx, teamID, 2)
		if err != nil {
			return err
		}
		// memberCount > 1 was just observed; fewer than two rows here means
		// the store contradicts itself.
		if len(earliest) < 2 {
			err := domain.Systemf("inconsistent membership state for team %s", teamID)
			s.logger.Error("leadership transfer failed", "team_id", teamID, "members_found", len(earliest), "error", err)
			return err
		}
		nextOwnerID := earliest[1].UserID
		if err := s.teams.TransferOwnership(ctx, teamID, nextOwnerID, requesterID); err != nil {
			return err
		}
		s.logger.Info("leadership transferred", "team_id", teamID, "from", requesterID, "to", nextOwnerID)
		s.publish(teamID, OwnerChanged, requesterID, nextOwnerID)
		return nil
	}

	if err := s.members.RemoveMembership(ctx, teamID, requesterID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrNotAMember
		}
		return err
	}
	s.logger.Info("member quit", "team_id", teamID, "user_id", requesterID)
	s.publish(teamID, MemberQuit, requesterID, "")
	return nil
}

// Delete disbands the team. Only the current owner may delete; membership
// rows and the team row go in one transaction.
func (s Service) Delete(ctx context.Context, teamID, requesterID string) error {
	team, err := s.getTeam(ctx, teamID)
	if err != nil {
		return err
	}
	if team.OwnerID != requesterID {
		return domain.ErrForbidden
	}
	if err := s.teams.DeleteTeamCascade(ctx, teamID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	s.logger.Info("team deleted", "team_id", teamID, "owner_id", requesterID)
	s.publish(teamID, TeamDeleted, requesterID, "")
	return nil
}

// Get returns a single team with its live member count and creator view.
func (s Service) Get(ctx context.Context, teamID, currentUserID string) (*domain.TeamView, error) {
	team, err := s.getTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	views, err := s.buildViews(ctx, []domain.Team{*team}, currentUserID)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s Service) getTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	if teamID == "" {
		return nil, domain.ErrNotFound
	}
	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return team, nil
}

func validateInput(name string, maxMembers int, expireAt *time.Time, visibility domain.Visibility, password string) error {
	if name == "" {
		return domain.InvalidState("team name is required")
	}
	if maxMembers < minTeamCapacity || maxMembers > maxTeamCapacity {
		return domain.InvalidState(fmt.Sprintf("max members must be between %d and %d", minTeamCapacity, maxTeamCapacity))
	}
	if expireAt != nil && expireAt.Before(time.Now()) {
		return domain.InvalidState("expire time must be in the future")
	}
	switch visibility {
	case domain.VisibilityPublic, domain.VisibilityPrivate:
		if password != "" {
			return domain.InvalidState("only secret teams take a password")
		}
	case domain.VisibilitySecret:
		if password == "" {
			return domain.InvalidState("secret teams require a password")
		}
		if len(password) > maxPasswordLen {
			return domain.InvalidState(fmt.Sprintf("password must be at most %d characters", maxPasswordLen))
		}
	default:
		return domain.InvalidState("unknown visibility")
	}
	return nil
}
