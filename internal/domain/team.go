package domain

import "time"

// Visibility controls who may discover and join a team.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilitySecret  Visibility = "secret"
)

// ParseVisibility maps a wire value to a Visibility, reporting whether it is known.
func ParseVisibility(value string) (Visibility, bool) {
	switch Visibility(value) {
	case VisibilityPublic, VisibilityPrivate, VisibilitySecret:
		return Visibility(value), true
	}
	return "", false
}

// Team is a capacity-bounded interest group led by its owner. OwnerID is a
// plain reassignable foreign key; leadership transfer rewrites it in place.
type Team struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	MaxMembers  int        `json:"max_members"`
	ExpireAt    *time.Time `json:"expire_at,omitempty"`
	Visibility  Visibility `json:"visibility"`
	Password    string     `json:"-"`
	OwnerID     string     `json:"owner_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Expired reports whether the team's deadline has passed.
func (t Team) Expired(now time.Time) bool {
	return t.ExpireAt != nil && t.ExpireAt.Before(now)
}

// Membership links a user to a team. At most one live row exists per
// (user, team) pair.
type Membership struct {
	TeamID   string    `json:"team_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// TeamView augments a team for listing responses.
type TeamView struct {
	Team
	Creator     *SafeUser `json:"creator,omitempty"`
	MemberCount int       `json:"member_count"`
	HasJoined   bool      `json:"has_joined"`
}
