package repo

import (
	"context"
	"errors"

	"github.com/medistack/platform-core/domains/users/be/service"
	"github.com/medistack/platform-core/platform/go/registry"
)

// ScopedProvider hands out the users store matching the request scope. A
// tenant connection in the context selects that tenant's isolated store;
// otherwise the master store serves the request.
type ScopedProvider struct {
	master service.Store
}

// NewScopedProvider constructs a ScopedProvider over the master store.
func NewScopedProvider(master service.Store) *ScopedProvider {
	if master == nil {
		panic("master users store is required")
	}
	return &ScopedProvider{master: master}
}

func (p *ScopedProvider) Store(ctx context.Context) (service.Store, error) {
	conn, ok := registry.ConnFromContext(ctx)
	if !ok {
		return p.master, nil
	}
	if conn.Stores.Users == nil {
		return nil, errors.New("tenant connection has no users store")
	}
	return NewPostgresStore(conn.Stores.Users), nil
}

// Ensure interface compliance.
var _ service.StoreProvider = (*ScopedProvider)(nil)
