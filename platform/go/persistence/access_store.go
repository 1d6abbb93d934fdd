package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoleRow is a shared role definition; a role is not inherently tenant-scoped.
type RoleRow struct {
	RoleID uuid.UUID
	Name   string
}

// PermissionRow is an atomic capability identifier, e.g. "manage_doctors".
type PermissionRow struct {
	PermissionID uuid.UUID
	Name         string
}

// AssignmentRow links a user to a role, optionally scoped to one tenant.
type AssignmentRow struct {
	UserID   uuid.UUID
	RoleID   uuid.UUID
	TenantID *uuid.UUID
}

var (
	// ErrRoleNotFound indicates a missing role record.
	ErrRoleNotFound = errors.New("role not found")
	// ErrAssignmentConflict indicates a duplicate (user, role, tenant) grant.
	ErrAssignmentConflict = errors.New("role already assigned")
)

// AccessStore exposes persistence helpers for the role/permission definition
// space and user role assignments, all in the master store.
type AccessStore struct {
	pool *pgxpool.Pool
}

// NewAccessStore returns a store bound to the master pool.
func NewAccessStore(pool *pgxpool.Pool) (*AccessStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &AccessStore{pool: pool}, nil
}

// EnsureRole inserts a role by name if missing and returns its record.
func (s *AccessStore) EnsureRole(ctx context.Context, name string) (RoleRow, error) {
	row := s.pool.QueryRow(ctx, `
        INSERT INTO roles (role_id, name)
        VALUES ($1, $2)
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        RETURNING role_id, name
    `, uuid.New(), name)

	var r RoleRow
	if err := row.Scan(&r.RoleID, &r.Name); err != nil {
		return RoleRow{}, fmt.Errorf("ensure role: %w", err)
	}
	return r, nil
}

// EnsurePermission inserts a permission by name if missing and returns its record.
func (s *AccessStore) EnsurePermission(ctx context.Context, name string) (PermissionRow, error) {
	row := s.pool.QueryRow(ctx, `
        INSERT INTO permissions (permission_id, name)
        VALUES ($1, $2)
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        RETURNING permission_id, name
    `, uuid.New(), name)

	var p PermissionRow
	if err := row.Scan(&p.PermissionID, &p.Name); err != nil {
		return PermissionRow{}, fmt.Errorf("ensure permission: %w", err)
	}
	return p, nil
}

// GrantPermission links a permission to a role; idempotent.
func (s *AccessStore) GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO role_permissions (role_id, permission_id)
        VALUES ($1, $2)
        ON CONFLICT DO NOTHING
    `, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("grant permission: %w", err)
	}
	return nil
}

// GetRoleByName returns a role definition by its unique name.
func (s *AccessStore) GetRoleByName(ctx context.Context, name string) (RoleRow, error) {
	row := s.pool.QueryRow(ctx, `SELECT role_id, name FROM roles WHERE name = $1`, name)

	var r RoleRow
	if err := row.Scan(&r.RoleID, &r.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RoleRow{}, ErrRoleNotFound
		}
		return RoleRow{}, err
	}
	return r, nil
}

// AssignRole records a (user, role, tenant) grant. A user may hold the same
// role in two different tenants but not twice in one; duplicates conflict.
func (s *AccessStore) AssignRole(ctx context.Context, a AssignmentRow) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO user_role_assignments (user_id, role_id, tenant_id)
        VALUES ($1, $2, $3)
    `, a.UserID, a.RoleID, a.TenantID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAssignmentConflict
		}
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

// RevokeRole removes a (user, role, tenant) grant; absent grants are a no-op.
func (s *AccessStore) RevokeRole(ctx context.Context, a AssignmentRow) error {
	_, err := s.pool.Exec(ctx, `
        DELETE FROM user_role_assignments
        WHERE user_id = $1 AND role_id = $2 AND tenant_id IS NOT DISTINCT FROM $3
    `, a.UserID, a.RoleID, a.TenantID)
	if err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	return nil
}

// RolesForUser returns the role names granted to a user, optionally filtered
// to one tenant scope.
func (s *AccessStore) RolesForUser(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) ([]RoleRow, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT r.role_id, r.name
        FROM user_role_assignments a
        JOIN roles r ON r.role_id = a.role_id
        WHERE a.user_id = $1 AND ($2::uuid IS NULL OR a.tenant_id IS NOT DISTINCT FROM $2)
        ORDER BY r.name
    `, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("roles for user: %w", err)
	}
	defer rows.Close()

	var roles []RoleRow
	for rows.Next() {
		var r RoleRow
		if err := rows.Scan(&r.RoleID, &r.Name); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// PermissionsForUser expands every role the user holds (optionally scoped to
// one tenant) into the union of granted permission names. This is the live
// role→permission join used for non-admin master callers.
func (s *AccessStore) PermissionsForUser(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT DISTINCT p.name
        FROM user_role_assignments a
        JOIN role_permissions rp ON rp.role_id = a.role_id
        JOIN permissions p ON p.permission_id = rp.permission_id
        WHERE a.user_id = $1 AND ($2::uuid IS NULL OR a.tenant_id IS NOT DISTINCT FROM $2)
        ORDER BY p.name
    `, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("permissions for user: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
