package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Errors returned by the service layer.
var (
	ErrRoleNotFound   = errors.New("role not found")
	ErrAlreadyGranted = errors.New("role already assigned")
)

// Role is a shared role definition paired with the permissions it grants.
type Role struct {
	ID          uuid.UUID
	Name        string
	Permissions []string
}

// Assignment links a user to a role within an optional tenant scope. A nil
// TenantID means the grant applies at master scope.
type Assignment struct {
	UserID   uuid.UUID
	RoleName string
	TenantID *uuid.UUID
}

// Directory abstracts the role and permission definition space.
type Directory interface {
	EnsureRole(ctx context.Context, name string) (uuid.UUID, error)
	EnsurePermission(ctx context.Context, name string) (uuid.UUID, error)
	GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error
	RoleByName(ctx context.Context, name string) (uuid.UUID, error)
	AssignRole(ctx context.Context, userID, roleID uuid.UUID, tenantID *uuid.UUID) error
	RevokeRole(ctx context.Context, userID, roleID uuid.UUID, tenantID *uuid.UUID) error
	RoleNamesForUser(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) ([]string, error)
	PermissionsForUser(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) ([]string, error)
}

// Service provides role definition and grant operations.
type Service struct {
	dir Directory
}

// New constructs a Service with required dependencies.
func New(dir Directory) *Service {
	if dir == nil {
		panic("access directory is required")
	}
	return &Service{dir: dir}
}

// DefineRole upserts a role and the permissions it grants. Used by seeding
// and by master administration.
func (s *Service) DefineRole(ctx context.Context, name string, permissions []string) (Role, error) {
	roleID, err := s.dir.EnsureRole(ctx, name)
	if err != nil {
		return Role{}, err
	}

	for _, perm := range permissions {
		permID, err := s.dir.EnsurePermission(ctx, perm)
		if err != nil {
			return Role{}, err
		}
		if err := s.dir.GrantPermission(ctx, roleID, permID); err != nil {
			return Role{}, err
		}
	}

	return Role{ID: roleID, Name: name, Permissions: permissions}, nil
}

// Assign grants a role to a user. The same role can be held in two different
// tenants; a duplicate grant within one scope conflicts.
func (s *Service) Assign(ctx context.Context, a Assignment) error {
	roleID, err := s.dir.RoleByName(ctx, a.RoleName)
	if err != nil {
		return err
	}
	return s.dir.AssignRole(ctx, a.UserID, roleID, a.TenantID)
}

// Revoke removes a role grant; revoking an absent grant is a no-op.
func (s *Service) Revoke(ctx context.Context, a Assignment) error {
	roleID, err := s.dir.RoleByName(ctx, a.RoleName)
	if err != nil {
		return err
	}
	return s.dir.RevokeRole(ctx, a.UserID, roleID, a.TenantID)
}

// RolesForUser returns the role names a user holds in the given scope.
func (s *Service) RolesForUser(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) ([]string, error) {
	return s.dir.RoleNamesForUser(ctx, userID, tenantID)
}

// PermissionsForUser returns the union of permissions granted through every
// role the user holds in the given scope. This is the live join consulted for
// master-scope authorization and for tenant login snapshots.
func (s *Service) PermissionsForUser(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) ([]string, error) {
	return s.dir.PermissionsForUser(ctx, userID, tenantID)
}
