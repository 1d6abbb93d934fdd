package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medistack/platform-core/platform/go/apperror"
	"github.com/medistack/platform-core/platform/go/registry"
	"github.com/medistack/platform-core/platform/go/tenant"
)

type fakeLookup struct {
	byID        map[uuid.UUID]tenant.Tenant
	bySubdomain map[string]tenant.Tenant
}

func (f *fakeLookup) TenantByID(ctx context.Context, id uuid.UUID) (tenant.Tenant, bool, error) {
	t, ok := f.byID[id]
	return t, ok, nil
}

func (f *fakeLookup) TenantBySubdomain(ctx context.Context, subdomain string) (tenant.Tenant, bool, error) {
	t, ok := f.bySubdomain[subdomain]
	return t, ok, nil
}

type fakeConnSource struct {
	err error
}

func (f *fakeConnSource) Tenant(ctx context.Context, t tenant.Tenant) (*registry.TenantConn, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &registry.TenantConn{TenantID: t.ID, Subdomain: t.Subdomain}, nil
}

type resolverFixture struct {
	lookup   *fakeLookup
	conns    *fakeConnSource
	handler  http.Handler
	scope    *tenant.Scope
	conn     *registry.TenantConn
	seenPath string
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()

	f := &resolverFixture{
		lookup: &fakeLookup{
			byID:        make(map[uuid.UUID]tenant.Tenant),
			bySubdomain: make(map[string]tenant.Tenant),
		},
		conns: &fakeConnSource{},
	}
	writer := apperror.NewWriter(zap.NewNop(), false)
	resolver := NewResolver(f.lookup, f.conns, writer)
	f.handler = resolver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.seenPath = r.URL.Path
		if scope, ok := tenant.FromContext(r.Context()); ok {
			f.scope = &scope
		}
		if conn, ok := registry.ConnFromContext(r.Context()); ok {
			f.conn = conn
		}
		w.WriteHeader(http.StatusOK)
	}))

	f.addTenant(tenant.Tenant{ID: uuid.New(), Subdomain: "clinic-one", IsActive: true})
	return f
}

func (f *resolverFixture) addTenant(t tenant.Tenant) {
	f.lookup.byID[t.ID] = t
	f.lookup.bySubdomain[t.Subdomain] = t
}

func TestResolverBySubdomainHost(t *testing.T) {
	f := newResolverFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Host = "clinic-one.medistack.io"
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.scope)
	require.Equal(t, "clinic-one", f.scope.Tenant.Subdomain)
	require.NotNil(t, f.conn)
	require.Equal(t, "clinic-one", rec.Header().Get(TenantHeader))
}

func TestResolverByExplicitQueryID(t *testing.T) {
	f := newResolverFixture(t)
	tn := f.lookup.bySubdomain["clinic-one"]

	req := httptest.NewRequest(http.MethodGet, "/users?tenantId="+tn.ID.String(), nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.scope)
	require.Equal(t, tn.ID, f.scope.Tenant.ID)
}

func TestResolverByExplicitBodyID(t *testing.T) {
	f := newResolverFixture(t)
	tn := f.lookup.bySubdomain["clinic-one"]

	body := `{"tenantId":"` + tn.ID.String() + `","name":"ignored"}`
	req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.scope)
	require.Equal(t, tn.ID, f.scope.Tenant.ID)
}

func TestResolverExplicitUnknownIDIs404(t *testing.T) {
	f := newResolverFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/users?tenantId="+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Nil(t, f.scope)
}

func TestResolverByPathPrefixStripsPrefix(t *testing.T) {
	f := newResolverFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/tenant/clinic-one/users", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.scope)
	require.Equal(t, "/users", f.seenPath)
}

func TestResolverPathPrefixUnknownIs404(t *testing.T) {
	f := newResolverFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/tenant/unknown-clinic/users", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolverNoMatchIsMasterScope(t *testing.T) {
	f := newResolverFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/tenants", nil)
	req.Host = "medistack.io"
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, f.scope)
	require.Nil(t, f.conn)
	require.Empty(t, rec.Header().Get(TenantHeader))
}

func TestResolverInactiveTenantIs403(t *testing.T) {
	f := newResolverFixture(t)
	f.addTenant(tenant.Tenant{ID: uuid.New(), Subdomain: "suspended-clinic", IsActive: false})

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Host = "suspended-clinic.medistack.io"
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Nil(t, f.scope, "no tenant-scoped processing may run for a suspended tenant")
}

func TestResolverConnFailureIs500(t *testing.T) {
	f := newResolverFixture(t)
	f.conns.err = registry.ErrClosed

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	req.Host = "clinic-one.medistack.io"
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Nil(t, f.scope)
}

func TestSplitTenantPath(t *testing.T) {
	sub, rest, ok := splitTenantPath("/tenant/clinic-one/users/42")
	require.True(t, ok)
	require.Equal(t, "clinic-one", sub)
	require.Equal(t, "/users/42", rest)

	sub, rest, ok = splitTenantPath("/tenant/clinic-one")
	require.True(t, ok)
	require.Equal(t, "clinic-one", sub)
	require.Equal(t, "/", rest)

	_, _, ok = splitTenantPath("/users")
	require.False(t, ok)

	_, _, ok = splitTenantPath("/tenant/")
	require.False(t, ok)
}
