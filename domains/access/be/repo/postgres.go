package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/medistack/platform-core/domains/access/be/service"
	"github.com/medistack/platform-core/platform/go/persistence"
)

// PostgresDirectory adapts the master access store to the service contract.
type PostgresDirectory struct {
	store *persistence.AccessStore
}

// NewPostgresDirectory constructs a PostgresDirectory.
func NewPostgresDirectory(store *persistence.AccessStore) *PostgresDirectory {
	if store == nil {
		panic("access store is required")
	}
	return &PostgresDirectory{store: store}
}

func (d *PostgresDirectory) EnsureRole(ctx context.Context, name string) (uuid.UUID, error) {
	role, err := d.store.EnsureRole(ctx, name)
	if err != nil {
		return uuid.Nil, err
	}
	return role.RoleID, nil
}

func (d *PostgresDirectory) EnsurePermission(ctx context.Context, name string) (uuid.UUID, error) {
	perm, err := d.store.EnsurePermission(ctx, name)
	if err != nil {
		return uuid.Nil, err
	}
	return perm.PermissionID, nil
}

func (d *PostgresDirectory) GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	return d.store.GrantPermission(ctx, roleID, permissionID)
}

func (d *PostgresDirectory) RoleByName(ctx context.Context, name string) (uuid.UUID, error) {
	role, err := d.store.GetRoleByName(ctx, name)
	if errors.Is(err, persistence.ErrRoleNotFound) {
		return uuid.Nil, service.ErrRoleNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return role.RoleID, nil
}

func (d *PostgresDirectory) AssignRole(ctx context.Context, userID, roleID uuid.UUID, tenantID *uuid.UUID) error {
	err := d.store.AssignRole(ctx, persistence.AssignmentRow{UserID: userID, RoleID: roleID, TenantID: tenantID})
	if errors.Is(err, persistence.ErrAssignmentConflict) {
		return service.ErrAlreadyGranted
	}
	return err
}

func (d *PostgresDirectory) RevokeRole(ctx context.Context, userID, roleID uuid.UUID, tenantID *uuid.UUID) error {
	return d.store.RevokeRole(ctx, persistence.AssignmentRow{UserID: userID, RoleID: roleID, TenantID: tenantID})
}

func (d *PostgresDirectory) RoleNamesForUser(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) ([]string, error) {
	roles, err := d.store.RolesForUser(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names, nil
}

func (d *PostgresDirectory) PermissionsForUser(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) ([]string, error) {
	return d.store.PermissionsForUser(ctx, userID, tenantID)
}

// Ensure interface compliance.
var _ service.Directory = (*PostgresDirectory)(nil)
