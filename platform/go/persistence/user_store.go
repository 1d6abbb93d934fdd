package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const UsersTable = "users"

// UserRow represents a row in a users table, either the master store's shared
// collection or a tenant store's isolated one. Tenant rows never set
// IsMasterAdmin.
type UserRow struct {
	UserID        uuid.UUID
	Email         string
	FullName      string
	UserType      string
	PasswordHash  string
	IsMasterAdmin bool
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var (
	// ErrUserNotFound indicates a missing user record.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserConflict indicates a uniqueness violation (e.g., duplicated email).
	ErrUserConflict = errors.New("user conflict")
)

// UserStore exposes persistence helpers for a users table. The same store
// type serves the master pool and each per-tenant pool; the master flavour
// additionally persists the is_master_admin column.
type UserStore struct {
	pool   *pgxpool.Pool
	master bool
}

// NewUserStore returns a store bound to the master users collection.
func NewUserStore(pool *pgxpool.Pool) (*UserStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &UserStore{pool: pool, master: true}, nil
}

// NewTenantUserStore returns a store bound to one tenant's isolated users collection.
func NewTenantUserStore(pool *pgxpool.Pool) (*UserStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &UserStore{pool: pool, master: false}, nil
}

func (s *UserStore) columns() string {
	if s.master {
		return "user_id, email, full_name, user_type, password_hash, is_master_admin, is_active, created_at, updated_at"
	}
	return "user_id, email, full_name, user_type, password_hash, FALSE AS is_master_admin, is_active, created_at, updated_at"
}

// CreateUserParams captures the fields required to insert a new user record.
type CreateUserParams struct {
	UserID        uuid.UUID
	Email         string
	FullName      string
	UserType      string
	PasswordHash  string
	IsMasterAdmin bool
}

// CreateUser inserts a new user and returns the persisted record.
func (s *UserStore) CreateUser(ctx context.Context, params CreateUserParams) (UserRow, error) {
	if params.UserID == uuid.Nil {
		return UserRow{}, errors.New("user id is required")
	}
	if params.UserType == "" {
		params.UserType = "staff"
	}

	var row pgx.Row
	if s.master {
		row = s.pool.QueryRow(ctx, fmt.Sprintf(`
            INSERT INTO %s (user_id, email, full_name, user_type, password_hash, is_master_admin)
            VALUES ($1, $2, $3, $4, $5, $6)
            RETURNING %s
        `, UsersTable, s.columns()),
			params.UserID,
			normalizeEmail(params.Email),
			strings.TrimSpace(params.FullName),
			params.UserType,
			params.PasswordHash,
			params.IsMasterAdmin,
		)
	} else {
		row = s.pool.QueryRow(ctx, fmt.Sprintf(`
            INSERT INTO %s (user_id, email, full_name, user_type, password_hash)
            VALUES ($1, $2, $3, $4, $5)
            RETURNING %s
        `, UsersTable, s.columns()),
			params.UserID,
			normalizeEmail(params.Email),
			strings.TrimSpace(params.FullName),
			params.UserType,
			params.PasswordHash,
		)
	}

	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return UserRow{}, ErrUserConflict
		}
		return UserRow{}, err
	}

	return user, nil
}

// GetUser returns a user by id.
func (s *UserStore) GetUser(ctx context.Context, id uuid.UUID) (UserRow, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE user_id = $1
    `, s.columns(), UsersTable), id)

	return scanUserNotFound(row)
}

// GetUserByEmail returns a user by normalized email.
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (UserRow, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s WHERE email = $1
    `, s.columns(), UsersTable), normalizeEmail(email))

	return scanUserNotFound(row)
}

// ListUsersParams captures filters and pagination for ListUsers.
type ListUsersParams struct {
	Page     int
	PageSize int
	Email    *string
}

// ListUsersResult includes the rows and the total count for pagination metadata.
type ListUsersResult struct {
	Users      []UserRow
	TotalItems int
}

// ListUsers returns users matching the filters with pagination applied.
func (s *UserStore) ListUsers(ctx context.Context, params ListUsersParams) (ListUsersResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}

	whereParts := []string{"1=1"}
	var args []any

	if params.Email != nil && strings.TrimSpace(*params.Email) != "" {
		args = append(args, "%"+normalizeEmail(*params.Email)+"%")
		whereParts = append(whereParts, fmt.Sprintf("email LIKE $%d", len(args)))
	}

	whereSQL := strings.Join(whereParts, " AND ")

	var total int
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", UsersTable, whereSQL)
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return ListUsersResult{}, fmt.Errorf("count users: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	args = append(args, params.PageSize, offset)
	listSQL := fmt.Sprintf(`
        SELECT %s FROM %s WHERE %s
        ORDER BY created_at ASC
        LIMIT $%d OFFSET $%d
    `, s.columns(), UsersTable, whereSQL, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return ListUsersResult{}, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []UserRow
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return ListUsersResult{}, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return ListUsersResult{}, err
	}

	return ListUsersResult{Users: users, TotalItems: total}, nil
}

// UpdateUserParams captures mutable user fields; nil pointers leave columns unchanged.
type UpdateUserParams struct {
	FullName *string
	UserType *string
}

// UpdateUser mutates the given fields and returns the updated record.
func (s *UserStore) UpdateUser(ctx context.Context, id uuid.UUID, params UpdateUserParams) (UserRow, error) {
	setParts := []string{"updated_at = now()"}
	args := []any{id}

	if params.FullName != nil {
		args = append(args, strings.TrimSpace(*params.FullName))
		setParts = append(setParts, fmt.Sprintf("full_name = $%d", len(args)))
	}
	if params.UserType != nil {
		args = append(args, *params.UserType)
		setParts = append(setParts, fmt.Sprintf("user_type = $%d", len(args)))
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET %s WHERE user_id = $1
        RETURNING %s
    `, UsersTable, strings.Join(setParts, ", "), s.columns()), args...)

	return scanUserNotFound(row)
}

// SetUserActive flips the soft-activation flag.
func (s *UserStore) SetUserActive(ctx context.Context, id uuid.UUID, active bool) (UserRow, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET is_active = $2, updated_at = now()
        WHERE user_id = $1
        RETURNING %s
    `, UsersTable, s.columns()), id, active)

	return scanUserNotFound(row)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func scanUser(row pgx.Row) (UserRow, error) {
	var u UserRow
	if err := row.Scan(&u.UserID, &u.Email, &u.FullName, &u.UserType, &u.PasswordHash, &u.IsMasterAdmin, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return UserRow{}, err
	}
	return u, nil
}

func scanUserNotFound(row pgx.Row) (UserRow, error) {
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRow{}, ErrUserNotFound
		}
		return UserRow{}, err
	}
	return u, nil
}
