package team

import (
	"context"

	"github.com/cengZa/zhiyin-backend/internal/domain"
	"github.com/cengZa/zhiyin-backend/internal/repository"
)

// ListFilter narrows an open team listing. Each set field maps to one
// predicate; unset fields are skipped.
type ListFilter struct {
	ID          string            `json:"id"`
	IDs         []string          `json:"ids"`
	SearchText  string            `json:"search_text"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	MaxMembers  int               `json:"max_members"`
	OwnerID     string            `json:"owner_id"`
	Visibility  domain.Visibility `json:"visibility"`
}

// ListResult is one page of team views.
type ListResult struct {
	Items []domain.TeamView `json:"items"`
	Total int               `json:"total"`
	Page  int               `json:"page"`
	Size  int               `json:"size"`
}

// List returns the open team listing. Private teams are never listed here:
// requesting them fails, and an unset visibility defaults to public. Expired
// teams are excluded.
func (s Service) List(ctx context.Context, filter ListFilter, page repository.Page, currentUserID string) (*ListResult, error) {
	if filter.Visibility == domain.VisibilityPrivate {
		return nil, domain.ErrForbidden
	}
	if filter.Visibility == "" {
		filter.Visibility = domain.VisibilityPublic
	}
	repoFilter := repository.TeamFilter{
		ID:          filter.ID,
		IDs:         filter.IDs,
		SearchText:  filter.SearchText,
		Name:        filter.Name,
		Description: filter.Description,
		MaxMembers:  filter.MaxMembers,
		OwnerID:     filter.OwnerID,
		Visibility:  filter.Visibility,
	}
	return s.list(ctx, repoFilter, page, currentUserID)
}

// ListCreated returns teams the user leads, any visibility, expired included.
func (s Service) ListCreated(ctx context.Context, userID string, page repository.Page) (*ListResult, error) {
	filter := repository.TeamFilter{OwnerID: userID, IncludeExpired: true}
	return s.list(ctx, filter, page, userID)
}

// ListJoined returns teams the user belongs to, any visibility, expired
// included.
func (s Service) ListJoined(ctx context.Context, userID string, page repository.Page) (*ListResult, error) {
	teamIDs, err := s.members.ListUserTeamIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(teamIDs) == 0 {
		return &ListResult{Items: []domain.TeamView{}, Page: page.Num, Size: page.Size}, nil
	}
	filter := repository.TeamFilter{IDs: teamIDs, IncludeExpired: true}
	return s.list(ctx, filter, page, userID)
}

func (s Service) list(ctx context.Context, filter repository.TeamFilter, page repository.Page, currentUserID string) (*ListResult, error) {
	teams, total, err := s.teams.ListTeams(ctx, filter, page)
	if err != nil {
		return nil, err
	}
	views, err := s.buildViews(ctx, teams, currentUserID)
	if err != nil {
		return nil, err
	}
	return &ListResult{Items: views, Total: total, Page: page.Num, Size: page.Size}, nil
}

// buildViews augments teams with creator safe views, live member counts and
// whether the current user has joined.
func (s Service) buildViews(ctx context.Context, teams []domain.Team, currentUserID string) ([]domain.TeamView, error) {
	views := make([]domain.TeamView, 0, len(teams))
	if len(teams) == 0 {
		return views, nil
	}

	teamIDs := make([]string, 0, len(teams))
	ownerIDs := make([]string, 0, len(teams))
	for _, t := range teams {
		teamIDs = append(teamIDs, t.ID)
		ownerIDs = append(ownerIDs, t.OwnerID)
	}

	owners, err := s.users.GetUsersByIDs(ctx, ownerIDs)
	if err != nil {
		return nil, err
	}
	counts, err := s.members.CountMembersByTeam(ctx, teamIDs)
	if err != nil {
		return nil, err
	}
	joined := map[string]struct{}{}
	if currentUserID != "" {
		joined, err = s.members.JoinedTeamIDs(ctx, currentUserID, teamIDs)
		if err != nil {
			return nil, err
		}
	}

	for _, t := range teams {
		view := domain.TeamView{
			Team:        t,
			MemberCount: counts[t.ID],
		}
		if owner, ok := owners[t.OwnerID]; ok {
			safe := owner.Safe()
			view.Creator = &safe
		}
		_, view.HasJoined = joined[t.ID]
		views = append(views, view)
	}
	return views, nil
}
