package domain

import "time"

// User roles.
const (
	RoleUser  = 0
	RoleAdmin = 1
)

// User statuses.
const (
	UserStatusActive   = 0
	UserStatusDisabled = 1
)

// User represents a platform account.
type User struct {
	ID           string
	Username     string
	Account      string
	AvatarURL    string
	Gender       int
	PasswordHash []byte
	Phone        string
	Email        string
	Tags         []string
	Status       int
	Role         int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SafeUser is the projection of a User returned to callers. It never carries
// credential material.
type SafeUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Account   string    `json:"account"`
	AvatarURL string    `json:"avatar_url"`
	Gender    int       `json:"gender"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Tags      []string  `json:"tags"`
	Status    int       `json:"status"`
	Role      int       `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Safe strips sensitive fields from a user.
func (u User) Safe() SafeUser {
	return SafeUser{
		ID:        u.ID,
		Username:  u.Username,
		Account:   u.Account,
		AvatarURL: u.AvatarURL,
		Gender:    u.Gender,
		Phone:     u.Phone,
		Email:     u.Email,
		Tags:      u.Tags,
		Status:    u.Status,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
