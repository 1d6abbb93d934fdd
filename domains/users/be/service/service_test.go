package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/medistack/platform-core/domains/users/be/repo"
	"github.com/medistack/platform-core/domains/users/be/service"
	"github.com/medistack/platform-core/platform/go/auth"
	"github.com/medistack/platform-core/platform/go/tenant"
)

type staticProvider struct {
	store service.Store
}

func (p *staticProvider) Store(ctx context.Context) (service.Store, error) {
	return p.store, nil
}

type fakePerms struct {
	granted map[uuid.UUID][]string
	calls   int
}

func (f *fakePerms) PermissionsForUser(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) ([]string, error) {
	f.calls++
	return f.granted[userID], nil
}

type fakeUsage struct {
	mu     sync.Mutex
	deltas map[uuid.UUID]int64
}

func (f *fakeUsage) RecordUserDelta(ctx context.Context, tenantID uuid.UUID, delta int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deltas == nil {
		f.deltas = make(map[uuid.UUID]int64)
	}
	f.deltas[tenantID] += delta
}

type usersFixture struct {
	svc    *service.Service
	store  *repo.MemoryStore
	perms  *fakePerms
	usage  *fakeUsage
	tokens *auth.TokenManager
}

func newUsersFixture(t *testing.T) *usersFixture {
	t.Helper()

	f := &usersFixture{
		store:  repo.NewMemoryStore(),
		perms:  &fakePerms{granted: make(map[uuid.UUID][]string)},
		usage:  &fakeUsage{},
		tokens: auth.NewTokenManager("test-secret", time.Hour),
	}
	f.svc = service.New(&staticProvider{store: f.store}, f.tokens, f.perms, f.usage)
	return f
}

func tenantCtx(tn tenant.Tenant) context.Context {
	return tenant.WithScope(context.Background(), tenant.Scope{Tenant: tn})
}

func TestCreateHashesPassword(t *testing.T) {
	f := newUsersFixture(t)

	created, err := f.svc.Create(context.Background(), service.CreateInput{
		Email:    "Admin@MediStack.io",
		FullName: " Root Admin ",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	require.Equal(t, "admin@medistack.io", created.Email)
	require.Equal(t, "Root Admin", created.FullName)
	require.Equal(t, "staff", created.UserType)
	require.True(t, created.IsActive)

	rec, err := f.store.Get(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotEqual(t, "correct-horse", rec.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte("correct-horse")))
}

func TestCreateValidatesInput(t *testing.T) {
	f := newUsersFixture(t)

	_, err := f.svc.Create(context.Background(), service.CreateInput{Email: "not-an-email", Password: "long-enough"})
	require.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = f.svc.Create(context.Background(), service.CreateInput{Email: "a@b.io", Password: "short"})
	require.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestCreateTenantScopedRecordsSeat(t *testing.T) {
	f := newUsersFixture(t)
	tn := tenant.Tenant{ID: uuid.New(), Subdomain: "clinic-one", Plan: tenant.PlanFree, IsActive: true}

	created, err := f.svc.Create(tenantCtx(tn), service.CreateInput{
		Email:         "staff@clinic.io",
		Password:      "long-enough",
		IsMasterAdmin: true, // must be ignored in tenant scope
	})
	require.NoError(t, err)
	require.False(t, created.IsMasterAdmin)
	require.Equal(t, int64(1), f.usage.deltas[tn.ID])
}

func TestCreateMasterScopeDoesNotTouchLedger(t *testing.T) {
	f := newUsersFixture(t)

	created, err := f.svc.Create(context.Background(), service.CreateInput{
		Email:         "root@medistack.io",
		Password:      "long-enough",
		IsMasterAdmin: true,
	})
	require.NoError(t, err)
	require.True(t, created.IsMasterAdmin)
	require.Empty(t, f.usage.deltas)
}

func TestLoginMasterScope(t *testing.T) {
	f := newUsersFixture(t)

	created, err := f.svc.Create(context.Background(), service.CreateInput{
		Email:    "root@medistack.io",
		Password: "long-enough",
	})
	require.NoError(t, err)

	result, err := f.svc.Login(context.Background(), "root@medistack.io", "long-enough")
	require.NoError(t, err)
	require.Equal(t, created.ID, result.User.ID)

	claims, err := f.tokens.Verify(result.Token)
	require.NoError(t, err)
	require.Equal(t, created.ID, claims.UserID)
	require.Nil(t, claims.TenantID)
	require.Empty(t, claims.Permissions)
	require.Zero(t, f.perms.calls, "master logins carry no snapshot")
}

func TestLoginTenantScopeEmbedsSnapshot(t *testing.T) {
	f := newUsersFixture(t)
	tn := tenant.Tenant{ID: uuid.New(), Subdomain: "clinic-one", IsActive: true}

	created, err := f.svc.Create(tenantCtx(tn), service.CreateInput{
		Email:    "staff@clinic.io",
		Password: "long-enough",
	})
	require.NoError(t, err)

	f.perms.granted[created.ID] = []string{"manage_doctors", "view_patients"}

	result, err := f.svc.Login(tenantCtx(tn), "staff@clinic.io", "long-enough")
	require.NoError(t, err)

	claims, err := f.tokens.Verify(result.Token)
	require.NoError(t, err)
	require.NotNil(t, claims.TenantID)
	require.Equal(t, tn.ID, *claims.TenantID)
	require.Equal(t, []string{"manage_doctors", "view_patients"}, claims.Permissions)
	require.Equal(t, 1, f.perms.calls)

	// Later grants do not change an already issued credential.
	f.perms.granted[created.ID] = append(f.perms.granted[created.ID], "manage_billing")
	claims, err = f.tokens.Verify(result.Token)
	require.NoError(t, err)
	require.Equal(t, []string{"manage_doctors", "view_patients"}, claims.Permissions)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newUsersFixture(t)

	_, err := f.svc.Create(context.Background(), service.CreateInput{Email: "a@b.io", Password: "long-enough"})
	require.NoError(t, err)

	_, err = f.svc.Login(context.Background(), "a@b.io", "wrong-password")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = f.svc.Login(context.Background(), "unknown@b.io", "long-enough")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestLoginDisabledAccount(t *testing.T) {
	f := newUsersFixture(t)

	created, err := f.svc.Create(context.Background(), service.CreateInput{Email: "a@b.io", Password: "long-enough"})
	require.NoError(t, err)

	_, err = f.svc.Deactivate(context.Background(), created.ID)
	require.NoError(t, err)

	_, err = f.svc.Login(context.Background(), "a@b.io", "long-enough")
	require.ErrorIs(t, err, service.ErrAccountDisabled)
}

func TestDeactivateAndRestoreMoveSeats(t *testing.T) {
	f := newUsersFixture(t)
	tn := tenant.Tenant{ID: uuid.New(), Subdomain: "clinic-one", IsActive: true}

	created, err := f.svc.Create(tenantCtx(tn), service.CreateInput{Email: "a@b.io", Password: "long-enough"})
	require.NoError(t, err)
	require.Equal(t, int64(1), f.usage.deltas[tn.ID])

	deactivated, err := f.svc.Deactivate(tenantCtx(tn), created.ID)
	require.NoError(t, err)
	require.False(t, deactivated.IsActive)
	require.Equal(t, int64(0), f.usage.deltas[tn.ID])

	// Deactivating an already inactive user is a no-op for the ledger.
	_, err = f.svc.Deactivate(tenantCtx(tn), created.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), f.usage.deltas[tn.ID])

	restored, err := f.svc.Restore(tenantCtx(tn), created.ID)
	require.NoError(t, err)
	require.True(t, restored.IsActive)
	require.Equal(t, int64(1), f.usage.deltas[tn.ID])
}

func TestUpdateFields(t *testing.T) {
	f := newUsersFixture(t)

	created, err := f.svc.Create(context.Background(), service.CreateInput{Email: "a@b.io", Password: "long-enough"})
	require.NoError(t, err)

	name := "New Name"
	userType := "doctor"
	updated, err := f.svc.Update(context.Background(), created.ID, service.UpdateInput{
		FullName: &name,
		UserType: &userType,
	})
	require.NoError(t, err)
	require.Equal(t, "New Name", updated.FullName)
	require.Equal(t, "doctor", updated.UserType)
}
