package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/medistack/platform-core/platform/go/persistence"
	"github.com/medistack/platform-core/platform/go/registry"
	"github.com/medistack/platform-core/platform/go/tenant"
)

// ConnSource hands out ready tenant connections; implemented by the registry.
type ConnSource interface {
	Tenant(ctx context.Context, t tenant.Tenant) (*registry.TenantConn, error)
}

// StoreUserResolver resolves callers against the master user store or a
// tenant's isolated store borrowed from the connection registry.
type StoreUserResolver struct {
	master *persistence.UserStore
	conns  ConnSource
}

// NewStoreUserResolver constructs the production UserResolver.
func NewStoreUserResolver(master *persistence.UserStore, conns ConnSource) *StoreUserResolver {
	if master == nil || conns == nil {
		panic("store user resolver requires master store and conn source")
	}
	return &StoreUserResolver{master: master, conns: conns}
}

func (r *StoreUserResolver) MasterUser(ctx context.Context, userID uuid.UUID) (persistence.UserRow, error) {
	return r.master.GetUser(ctx, userID)
}

func (r *StoreUserResolver) TenantUser(ctx context.Context, t tenant.Tenant, userID uuid.UUID) (persistence.UserRow, error) {
	conn, err := r.conns.Tenant(ctx, t)
	if err != nil {
		return persistence.UserRow{}, err
	}
	if conn.Stores.Users == nil {
		return persistence.UserRow{}, errors.New("tenant user store not ready")
	}
	return conn.Stores.Users.GetUser(ctx, userID)
}

var _ UserResolver = (*StoreUserResolver)(nil)
