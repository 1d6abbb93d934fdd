package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/medistack/platform-core/domains/access/be/service"
)

type assignmentKey struct {
	userID   uuid.UUID
	roleID   uuid.UUID
	tenantID uuid.UUID // uuid.Nil marks master scope
}

// MemoryDirectory is a simple in-memory implementation suitable for tests and
// early development.
type MemoryDirectory struct {
	mu          sync.RWMutex
	roles       map[string]uuid.UUID
	roleNames   map[uuid.UUID]string
	permissions map[string]uuid.UUID
	permNames   map[uuid.UUID]string
	grants      map[uuid.UUID][]uuid.UUID // roleID -> permissionIDs
	assignments map[assignmentKey]struct{}
}

// NewMemoryDirectory constructs a MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		roles:       make(map[string]uuid.UUID),
		roleNames:   make(map[uuid.UUID]string),
		permissions: make(map[string]uuid.UUID),
		permNames:   make(map[uuid.UUID]string),
		grants:      make(map[uuid.UUID][]uuid.UUID),
		assignments: make(map[assignmentKey]struct{}),
	}
}

func (d *MemoryDirectory) EnsureRole(ctx context.Context, name string) (uuid.UUID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.roles[name]; ok {
		return id, nil
	}
	id := uuid.New()
	d.roles[name] = id
	d.roleNames[id] = name
	return id, nil
}

func (d *MemoryDirectory) EnsurePermission(ctx context.Context, name string) (uuid.UUID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.permissions[name]; ok {
		return id, nil
	}
	id := uuid.New()
	d.permissions[name] = id
	d.permNames[id] = name
	return id, nil
}

func (d *MemoryDirectory) GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.grants[roleID] {
		if existing == permissionID {
			return nil
		}
	}
	d.grants[roleID] = append(d.grants[roleID], permissionID)
	return nil
}

func (d *MemoryDirectory) RoleByName(ctx context.Context, name string) (uuid.UUID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.roles[name]
	if !ok {
		return uuid.Nil, service.ErrRoleNotFound
	}
	return id, nil
}

func (d *MemoryDirectory) AssignRole(ctx context.Context, userID, roleID uuid.UUID, tenantID *uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := assignmentKey{userID: userID, roleID: roleID, tenantID: derefScope(tenantID)}
	if _, exists := d.assignments[key]; exists {
		return service.ErrAlreadyGranted
	}
	d.assignments[key] = struct{}{}
	return nil
}

func (d *MemoryDirectory) RevokeRole(ctx context.Context, userID, roleID uuid.UUID, tenantID *uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.assignments, assignmentKey{userID: userID, roleID: roleID, tenantID: derefScope(tenantID)})
	return nil
}

func (d *MemoryDirectory) RoleNamesForUser(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var names []string
	for key := range d.assignments {
		if key.userID != userID {
			continue
		}
		if tenantID != nil && key.tenantID != *tenantID {
			continue
		}
		names = append(names, d.roleNames[key.roleID])
	}
	sort.Strings(names)
	return names, nil
}

func (d *MemoryDirectory) PermissionsForUser(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]struct{})
	for key := range d.assignments {
		if key.userID != userID {
			continue
		}
		if tenantID != nil && key.tenantID != *tenantID {
			continue
		}
		for _, permID := range d.grants[key.roleID] {
			seen[d.permNames[permID]] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func derefScope(tenantID *uuid.UUID) uuid.UUID {
	if tenantID == nil {
		return uuid.Nil
	}
	return *tenantID
}

// Ensure interface compliance.
var _ service.Directory = (*MemoryDirectory)(nil)
