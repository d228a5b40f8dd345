package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cengZa/zhiyin-backend/internal/domain"
	"github.com/cengZa/zhiyin-backend/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository       = (*Repository)(nil)
	_ repository.TeamRepository       = (*Repository)(nil)
	_ repository.MembershipRepository = (*Repository)(nil)
)

const userColumns = `id, username, account, avatar_url, gender, password_hash, phone, email, tags, status, role, created_at, updated_at`

const teamColumns = `id, name, description, max_members, expire_at, visibility, password, owner_id, created_at, updated_at`

// CreateUser inserts a user account.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.pool.Exec(ctx, query,
		user.ID, user.Username, user.Account, user.AvatarURL, user.Gender,
		user.PasswordHash, user.Phone, user.Email, user.Tags,
		user.Status, user.Role, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetUserByID retrieves a live user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetUserByAccount retrieves a live user by login account.
func (r *Repository) GetUserByAccount(ctx context.Context, account string) (*domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE account = $1 AND deleted_at IS NULL`
	return r.scanUser(r.pool.QueryRow(ctx, query, account))
}

// UpdateUser overwrites mutable profile fields.
func (r *Repository) UpdateUser(ctx context.Context, user *domain.User) error {
	const query = `UPDATE users
		SET username = $2, avatar_url = $3, gender = $4, phone = $5, email = $6,
			tags = $7, status = $8, role = $9, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, query,
		user.ID, user.Username, user.AvatarURL, user.Gender, user.Phone,
		user.Email, user.Tags, user.Status, user.Role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SearchUsersByUsername matches live users on a username fragment.
func (r *Repository) SearchUsersByUsername(ctx context.Context, fragment string) ([]domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users
		WHERE username ILIKE '%' || $1 || '%' AND deleted_at IS NULL
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, fragment)
	if err != nil {
		return nil, err
	}
	return r.collectUsers(rows)
}

// SearchUsersByTags returns live users carrying every requested tag.
func (r *Repository) SearchUsersByTags(ctx context.Context, tags []string) ([]domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users
		WHERE tags @> $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, tags)
	if err != nil {
		return nil, err
	}
	return r.collectUsers(rows)
}

// ListActiveTaggedUsers returns the matching candidate pool: id and tags of
// every active user with at least one tag.
func (r *Repository) ListActiveTaggedUsers(ctx context.Context) ([]domain.User, error) {
	const query = `SELECT id, tags FROM users
		WHERE status = 0 AND cardinality(tags) > 0 AND deleted_at IS NULL`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Tags); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetUsersByIDs fetches live users keyed by identifier.
func (r *Repository) GetUsersByIDs(ctx context.Context, ids []string) (map[string]domain.User, error) {
	if len(ids) == 0 {
		return map[string]domain.User{}, nil
	}
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1) AND deleted_at IS NULL`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	users, err := r.collectUsers(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}

// CreateTeamWithOwner inserts the team row and the creator's membership row in
// one transaction.
func (r *Repository) CreateTeamWithOwner(ctx context.Context, team *domain.Team) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const teamInsert = `INSERT INTO teams (` + teamColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := tx.Exec(ctx, teamInsert,
		team.ID, team.Name, team.Description, team.MaxMembers, team.ExpireAt,
		team.Visibility, team.Password, team.OwnerID, team.CreatedAt, team.UpdatedAt); err != nil {
		return fmt.Errorf("insert team: %w", err)
	}

	const memberInsert = `INSERT INTO team_members (team_id, user_id, joined_at)
		VALUES ($1, $2, $3)`
	if _, err := tx.Exec(ctx, memberInsert, team.ID, team.OwnerID, team.CreatedAt); err != nil {
		return fmt.Errorf("insert owner membership: %w", err)
	}

	return tx.Commit(ctx)
}

// GetTeamByID returns a live team by identifier.
func (r *Repository) GetTeamByID(ctx context.Context, teamID string) (*domain.Team, error) {
	const query = `SELECT ` + teamColumns + ` FROM teams WHERE id = $1 AND deleted_at IS NULL`
	row := r.pool.QueryRow(ctx, query, teamID)
	var t domain.Team
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.MaxMembers, &t.ExpireAt,
		&t.Visibility, &t.Password, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// UpdateTeam copies mutable fields over the stored row. Ownership and
// membership are untouched.
func (r *Repository) UpdateTeam(ctx context.Context, team *domain.Team) error {
	const query = `UPDATE teams
		SET name = $2, description = $3, max_members = $4, expire_at = $5,
			visibility = $6, password = $7, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, query,
		team.ID, team.Name, team.Description, team.MaxMembers, team.ExpireAt,
		team.Visibility, team.Password)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// CountTeamsByOwner counts live teams led by the user.
func (r *Repository) CountTeamsByOwner(ctx context.Context, ownerID string) (int, error) {
	const query = `SELECT COUNT(1) FROM teams WHERE owner_id = $1 AND deleted_at IS NULL`
	var count int
	if err := r.pool.QueryRow(ctx, query, ownerID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListTeams returns live teams matching the filter plus the unpaged total.
func (r *Repository) ListTeams(ctx context.Context, filter repository.TeamFilter, page repository.Page) ([]domain.Team, int, error) {
	where, args := buildTeamPredicates(filter)

	countQuery := `SELECT COUNT(1) FROM teams ` + where
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if page.Size <= 0 {
		page.Size = 10
	}
	if page.Num <= 0 {
		page.Num = 1
	}
	listQuery := fmt.Sprintf(`SELECT `+teamColumns+` FROM teams %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, page.Size, (page.Num-1)*page.Size)

	rows, err := r.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	teams := make([]domain.Team, 0)
	for rows.Next() {
		var t domain.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.MaxMembers, &t.ExpireAt,
			&t.Visibility, &t.Password, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, err
		}
		teams = append(teams, t)
	}
	return teams, total, rows.Err()
}

// buildTeamPredicates maps each set filter field to one WHERE predicate.
func buildTeamPredicates(filter repository.TeamFilter) (string, []any) {
	clauses := []string{"deleted_at IS NULL"}
	args := make([]any, 0, 8)

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.ID != "" {
		add("id = $%d", filter.ID)
	}
	if len(filter.IDs) > 0 {
		add("id = ANY($%d)", filter.IDs)
	}
	if filter.SearchText != "" {
		add("(name ILIKE '%%' || $%d || '%%' OR description ILIKE '%%' || $%[1]d || '%%')", filter.SearchText)
	}
	if filter.Name != "" {
		add("name ILIKE '%%' || $%d || '%%'", filter.Name)
	}
	if filter.Description != "" {
		add("description ILIKE '%%' || $%d || '%%'", filter.Description)
	}
	if filter.MaxMembers > 0 {
		add("max_members = $%d", filter.MaxMembers)
	}
	if filter.OwnerID != "" {
		add("owner_id = $%d", filter.OwnerID)
	}
	if filter.Visibility != "" {
		add("visibility = $%d", filter.Visibility)
	}
	if !filter.IncludeExpired {
		clauses = append(clauses, "(expire_at IS NULL OR expire_at > NOW())")
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

// DeleteTeamCascade soft-deletes every membership row for the team and then
// the team row itself, in one transaction.
func (r *Repository) DeleteTeamCascade(ctx context.Context, teamID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const memberDelete = `UPDATE team_members SET deleted_at = NOW()
		WHERE team_id = $1 AND deleted_at IS NULL`
	if _, err := tx.Exec(ctx, memberDelete, teamID); err != nil {
		return fmt.Errorf("delete memberships: %w", err)
	}

	const teamDelete = `UPDATE teams SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	tag, err := tx.Exec(ctx, teamDelete, teamID)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return tx.Commit(ctx)
}

// TransferOwnership reassigns the team's owner and removes the departing
// member's row, in one transaction.
func (r *Repository) TransferOwnership(ctx context.Context, teamID, newOwnerID, departingUserID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const ownerUpdate = `UPDATE teams SET owner_id = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`
	tag, err := tx.Exec(ctx, ownerUpdate, teamID, newOwnerID)
	if err != nil {
		return fmt.Errorf("update owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	const memberDelete = `UPDATE team_members SET deleted_at = NOW()
		WHERE team_id = $1 AND user_id = $2 AND deleted_at IS NULL`
	tag, err = tx.Exec(ctx, memberDelete, teamID, departingUserID)
	if err != nil {
		return fmt.Errorf("remove departing member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return tx.Commit(ctx)
}

// InsertMembership records a user joining a team. A live duplicate pair maps
// to ErrDuplicate via the partial unique index.
func (r *Repository) InsertMembership(ctx context.Context, m *domain.Membership) error {
	const query = `INSERT INTO team_members (team_id, user_id, joined_at)
		VALUES ($1, $2, $3)`
	_, err := r.pool.Exec(ctx, query, m.TeamID, m.UserID, m.JoinedAt)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// RemoveMembership soft-deletes the member's row.
func (r *Repository) RemoveMembership(ctx context.Context, teamID, userID string) error {
	const query = `UPDATE team_members SET deleted_at = NOW()
		WHERE team_id = $1 AND user_id = $2 AND deleted_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, teamID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// HasMembership reports whether the user holds a live membership in the team.
func (r *Repository) HasMembership(ctx context.Context, teamID, userID string) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM team_members
		WHERE team_id = $1 AND user_id = $2 AND deleted_at IS NULL)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, teamID, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CountTeamMembers counts live members of a team.
func (r *Repository) CountTeamMembers(ctx context.Context, teamID string) (int, error) {
	const query = `SELECT COUNT(1) FROM team_members WHERE team_id = $1 AND deleted_at IS NULL`
	var count int
	if err := r.pool.QueryRow(ctx, query, teamID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountUserMemberships counts live memberships held by a user.
func (r *Repository) CountUserMemberships(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(1) FROM team_members WHERE user_id = $1 AND deleted_at IS NULL`
	var count int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListEarliestMembers returns live members ordered by join time ascending.
func (r *Repository) ListEarliestMembers(ctx context.Context, teamID string, limit int) ([]domain.Membership, error) {
	const query = `SELECT team_id, user_id, joined_at FROM team_members
		WHERE team_id = $1 AND deleted_at IS NULL
		ORDER BY joined_at ASC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, teamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]domain.Membership, 0, limit)
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CountMembersByTeam returns live member counts keyed by team id.
func (r *Repository) CountMembersByTeam(ctx context.Context, teamIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(teamIDs))
	if len(teamIDs) == 0 {
		return counts, nil
	}
	const query = `SELECT team_id, COUNT(1) FROM team_members
		WHERE team_id = ANY($1) AND deleted_at IS NULL
		GROUP BY team_id`
	rows, err := r.pool.Query(ctx, query, teamIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var teamID string
		var count int
		if err := rows.Scan(&teamID, &count); err != nil {
			return nil, err
		}
		counts[teamID] = count
	}
	return counts, rows.Err()
}

// JoinedTeamIDs returns the subset of teamIDs the user is a live member of.
func (r *Repository) JoinedTeamIDs(ctx context.Context, userID string, teamIDs []string) (map[string]struct{}, error) {
	joined := make(map[string]struct{}, len(teamIDs))
	if len(teamIDs) == 0 {
		return joined, nil
	}
	const query = `SELECT team_id FROM team_members
		WHERE user_id = $1 AND team_id = ANY($2) AND deleted_at IS NULL`
	rows, err := r.pool.Query(ctx, query, userID, teamIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var teamID string
		if err := rows.Scan(&teamID); err != nil {
			return nil, err
		}
		joined[teamID] = struct{}{}
	}
	return joined, rows.Err()
}

// ListUserTeamIDs returns ids of every team the user is a live member of.
func (r *Repository) ListUserTeamIDs(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT team_id FROM team_members
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY joined_at ASC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var teamID string
		if err := rows.Scan(&teamID); err != nil {
			return nil, err
		}
		ids = append(ids, teamID)
	}
	return ids, rows.Err()
}

func (r *Repository) scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.Account, &u.AvatarURL, &u.Gender,
		&u.PasswordHash, &u.Phone, &u.Email, &u.Tags, &u.Status, &u.Role,
		&u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repository) collectUsers(rows pgx.Rows) ([]domain.User, error) {
	defer rows.Close()
	users := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Account, &u.AvatarURL, &u.Gender,
			&u.PasswordHash, &u.Phone, &u.Email, &u.Tags, &u.Status, &u.Role,
			&u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
