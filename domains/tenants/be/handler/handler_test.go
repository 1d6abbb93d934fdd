package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medistack/platform-core/domains/tenants/be/handler"
	"github.com/medistack/platform-core/domains/tenants/be/repo"
	"github.com/medistack/platform-core/domains/tenants/be/service"
	"github.com/medistack/platform-core/platform/go/apperror"
	"github.com/medistack/platform-core/platform/go/auth"
	"github.com/medistack/platform-core/platform/go/middleware"
)

func newTestRouter(t *testing.T) (chi.Router, *service.Service) {
	t.Helper()

	svc := service.New(repo.NewMemoryRepository())
	writer := apperror.NewWriter(zap.NewNop(), false)
	h := handler.New(svc, zap.NewNop(), writer)

	r := chi.NewRouter()
	r.Route("/tenants", func(r chi.Router) { h.Routes(r) })
	return r, svc
}

// newGuardedRouter mounts the routes the way the server does, with the
// cross-tenant guard wrapping the {id}-bearing endpoints.
func newGuardedRouter(t *testing.T) (chi.Router, *service.Service) {
	t.Helper()

	svc := service.New(repo.NewMemoryRepository())
	writer := apperror.NewWriter(zap.NewNop(), false)
	h := handler.New(svc, zap.NewNop(), writer)

	r := chi.NewRouter()
	r.Route("/tenants", func(r chi.Router) {
		h.Routes(r, middleware.TenantGuard(writer))
	})
	return r, svc
}

func doAs(router chi.Router, method, target string, p auth.Principal) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func do(router chi.Router, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateTenant(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(router, http.MethodPost, "/tenants", `{"subdomain":"Clinic-One","name":"Clinic One","plan":"starter"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var payload struct {
		ID        string `json:"id"`
		Subdomain string `json:"subdomain"`
		Plan      string `json:"plan"`
		IsActive  bool   `json:"isActive"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.NotEmpty(t, payload.ID)
	require.Equal(t, "clinic-one", payload.Subdomain)
	require.Equal(t, "starter", payload.Plan)
	require.True(t, payload.IsActive)
}

func TestCreateTenantInvalidSubdomain(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(router, http.MethodPost, "/tenants", `{"subdomain":"-bad-","name":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTenantDuplicateSubdomain(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(router, http.MethodPost, "/tenants", `{"subdomain":"clinic-one","name":"first"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(router, http.MethodPost, "/tenants", `{"subdomain":"clinic-one","name":"second"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetTenantNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(router, http.MethodGet, "/tenants/6a2f0b4e-0000-0000-0000-000000000000", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "tenant_not_found", payload.Error.Code)
}

func TestSuspendAndRestoreTenant(t *testing.T) {
	router, svc := newTestRouter(t)

	created, err := svc.Create(context.Background(), service.CreateInput{
		Subdomain: "clinic-one",
		Name:      "Clinic One",
	})
	require.NoError(t, err)

	rec := do(router, http.MethodPost, "/tenants/"+created.ID.String()+"/suspend", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		IsActive bool `json:"isActive"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.False(t, payload.IsActive)

	rec = do(router, http.MethodPost, "/tenants/"+created.ID.String()+"/restore", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.True(t, payload.IsActive)
}

func TestGuardedRoutesDenyCrossTenantRead(t *testing.T) {
	router, svc := newGuardedRouter(t)

	created, err := svc.Create(context.Background(), service.CreateInput{
		Subdomain: "clinic-one",
		Name:      "Clinic One",
	})
	require.NoError(t, err)

	otherID := uuid.New()
	p := auth.Principal{UserID: uuid.New(), TenantID: &otherID}

	rec := doAs(router, http.MethodGet, "/tenants/"+created.ID.String(), p)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doAs(router, http.MethodPost, "/tenants/"+created.ID.String()+"/suspend", p)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuardedRoutesAllowOwnTenantAndMasterAdmin(t *testing.T) {
	router, svc := newGuardedRouter(t)

	created, err := svc.Create(context.Background(), service.CreateInput{
		Subdomain: "clinic-one",
		Name:      "Clinic One",
	})
	require.NoError(t, err)

	own := auth.Principal{UserID: uuid.New(), TenantID: &created.ID}
	rec := doAs(router, http.MethodGet, "/tenants/"+created.ID.String(), own)
	require.Equal(t, http.StatusOK, rec.Code)

	admin := auth.Principal{UserID: uuid.New(), IsMasterAdmin: true}
	rec = doAs(router, http.MethodGet, "/tenants/"+created.ID.String(), admin)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doAs(router, http.MethodGet, "/tenants", admin)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListTenantsPagination(t *testing.T) {
	router, svc := newTestRouter(t)

	ctx := context.Background()
	for _, sub := range []string{"clinic-a", "clinic-b", "clinic-c"} {
		_, err := svc.Create(ctx, service.CreateInput{Subdomain: sub, Name: sub})
		require.NoError(t, err)
	}

	rec := do(router, http.MethodGet, "/tenants?page=1&pageSize=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Items      []json.RawMessage `json:"items"`
		TotalItems int               `json:"totalItems"`
		TotalPages int               `json:"totalPages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Items, 2)
	require.Equal(t, 3, payload.TotalItems)
	require.Equal(t, 2, payload.TotalPages)
}
