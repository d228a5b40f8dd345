// Package user provides account registration, login, and the safe-view
// directory consumed by the team and match services.
package user

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/cengZa/zhiyin-backend/internal/domain"
	"github.com/cengZa/zhiyin-backend/internal/repository"
	"github.com/cengZa/zhiyin-backend/pkg/config"
	"github.com/cengZa/zhiyin-backend/pkg/crypto"
	jwtpkg "github.com/cengZa/zhiyin-backend/pkg/jwt"
)

const denyPrefix = "zhiyin:token:deny:"

var (
	errAccountTooShort  = errors.New("account must be at least 4 characters")
	errPasswordTooShort = errors.New("password must be at least 8 characters")
	errAccountTaken     = errors.New("account already registered")
	errBadCredentials   = errors.New("account or password incorrect")
	errTokenRevoked     = errors.New("token revoked")
)

// Service handles account workflows. redis may be nil; logout then degrades
// to stateless token expiry.
type Service struct {
	users  repository.UserRepository
	redis  *redis.Client
	logger *slog.Logger
	cfg    config.Config
}

// New constructs a Service.
func New(users repository.UserRepository, redisClient *redis.Client, logger *slog.Logger, cfg config.Config) Service {
	return Service{users: users, redis: redisClient, logger: logger, cfg: cfg}
}

// Register creates an account and returns its safe view.
func (s Service) Register(ctx context.Context, account, password, username string) (*domain.SafeUser, error) {
	if len(account) < 4 {
		return nil, errAccountTooShort
	}
	if len(password) < 8 {
		return nil, errPasswordTooShort
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, err
	}
	if username == "" {
		username = account
	}
	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Account:      account,
		PasswordHash: hash,
		Tags:         []string{},
		Status:       domain.UserStatusActive,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, errAccountTaken
		}
		return nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	safe := user.Safe()
	return &safe, nil
}

// Login authenticates an account and issues an access token.
func (s Service) Login(ctx context.Context, account, password string) (*domain.SafeUser, string, error) {
	user, err := s.users.GetUserByAccount(ctx, account)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", errBadCredentials
		}
		return nil, "", err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", errBadCredentials
	}
	token, err := jwtpkg.GenerateToken(user.ID, user.Role, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	safe := user.Safe()
	return &safe, token, nil
}

// Logout revokes the token for the remainder of its lifetime.
func (s Service) Logout(ctx context.Context, token string) error {
	if s.redis == nil {
		return nil
	}
	claims, err := jwtpkg.Parse(token, s.cfg.JWTSecret)
	if err != nil {
		// Already invalid; nothing to revoke.
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, denyPrefix+token, "1", ttl).Err(); err != nil {
		s.logger.Error("token revocation failed", "error", err)
		return err
	}
	s.logger.Info("user logged out", "user_id", claims.UserID)
	return nil
}

// Authorize validates a bearer token, rejects revoked tokens, and loads the
// account.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, error) {
	claims, err := jwtpkg.Parse(token, s.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	if s.redis != nil {
		revoked, err := s.redis.Exists(ctx, denyPrefix+token).Result()
		if err != nil {
			s.logger.Error("token denylist check failed", "error", err)
		} else if revoked > 0 {
			return nil, errTokenRevoked
		}
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// Get returns the safe view of a user.
func (s Service) Get(ctx context.Context, userID string) (*domain.SafeUser, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	safe := user.Safe()
	return &safe, nil
}

// Tags returns a user's tag list.
func (s Service) Tags(ctx context.Context, userID string) ([]string, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return user.Tags, nil
}

// UpdateInput carries mutable profile fields.
type UpdateInput struct {
	UserID    string   `json:"user_id"`
	Username  string   `json:"username"`
	AvatarURL string   `json:"avatar_url"`
	Gender    int      `json:"gender"`
	Phone     string   `json:"phone"`
	Email     string   `json:"email"`
	Tags      []string `json:"tags"`
}

// Update overwrites profile fields. Users may edit themselves; admins may
// edit anyone.
func (s Service) Update(ctx context.Context, requester *domain.User, input UpdateInput) error {
	targetID := input.UserID
	if targetID == "" {
		targetID = requester.ID
	}
	if targetID != requester.ID && requester.Role != domain.RoleAdmin {
		return domain.ErrForbidden
	}
	target, err := s.users.GetUserByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	if input.Username != "" {
		target.Username = input.Username
	}
	if input.AvatarURL != "" {
		target.AvatarURL = input.AvatarURL
	}
	if input.Gender != 0 {
		target.Gender = input.Gender
	}
	if input.Phone != "" {
		target.Phone = input.Phone
	}
	if input.Email != "" {
		target.Email = input.Email
	}
	if input.Tags != nil {
		target.Tags = input.Tags
	}
	if err := s.users.UpdateUser(ctx, target); err != nil {
		return err
	}
	s.logger.Info("user updated", "user_id", target.ID, "requester_id", requester.ID)
	return nil
}

// SearchByUsername returns safe views of users matching a username fragment.
func (s Service) SearchByUsername(ctx context.Context, fragment string) ([]domain.SafeUser, error) {
	users, err := s.users.SearchUsersByUsername(ctx, fragment)
	if err != nil {
		return nil, err
	}
	return safeViews(users), nil
}

// SearchByTags returns safe views of users carrying every requested tag.
func (s Service) SearchByTags(ctx context.Context, tags []string) ([]domain.SafeUser, error) {
	if len(tags) == 0 {
		return []domain.SafeUser{}, nil
	}
	users, err := s.users.SearchUsersByTags(ctx, tags)
	if err != nil {
		return nil, err
	}
	return safeViews(users), nil
}

func safeViews(users []domain.User) []domain.SafeUser {
	views := make([]domain.SafeUser, 0, len(users))
	for _, u := range users {
		views = append(views, u.Safe())
	}
	return views
}
