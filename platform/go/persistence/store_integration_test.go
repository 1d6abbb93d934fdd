package persistence

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// These tests run against a live Postgres named by TEST_DATABASE_URL and are
// skipped otherwise.

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := NewPool(context.Background(), PoolConfig{ConnString: url})
	require.NoError(t, err)
	require.NoError(t, ApplyMasterSchema(context.Background(), pool))
	t.Cleanup(func() { ClosePool(pool) })
	return pool
}

func TestTenantStoreRoundTrip(t *testing.T) {
	pool := testPool(t)

	store, err := NewTenantStore(pool)
	require.NoError(t, err)

	sub := "it-" + uuid.NewString()[:8]
	created, err := store.CreateTenant(context.Background(), CreateTenantParams{
		TenantID:  uuid.New(),
		Subdomain: sub,
		Name:      "Integration Clinic",
		Plan:      "starter",
		Settings:  map[string]string{"locale": "en"},
	})
	require.NoError(t, err)
	require.True(t, created.IsActive)

	_, err = store.CreateTenant(context.Background(), CreateTenantParams{
		TenantID:  uuid.New(),
		Subdomain: sub,
		Name:      "Duplicate",
	})
	require.ErrorIs(t, err, ErrTenantConflict)

	bySub, err := store.GetTenantBySubdomain(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, created.TenantID, bySub.TenantID)
	require.Equal(t, "en", bySub.Settings["locale"])

	suspended, err := store.SetTenantActive(context.Background(), created.TenantID, false)
	require.NoError(t, err)
	require.False(t, suspended.IsActive)

	_, err = store.GetTenant(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrTenantNotFound)
}

func TestUserStoreRoundTrip(t *testing.T) {
	pool := testPool(t)

	store, err := NewUserStore(pool)
	require.NoError(t, err)

	email := "it-" + uuid.NewString()[:8] + "@example.com"
	created, err := store.CreateUser(context.Background(), CreateUserParams{
		UserID:       uuid.New(),
		Email:        "  " + email + "  ",
		FullName:     "Integration User",
		PasswordHash: "x",
	})
	require.NoError(t, err)
	require.Equal(t, email, created.Email)
	require.Equal(t, "staff", created.UserType)

	_, err = store.CreateUser(context.Background(), CreateUserParams{
		UserID:       uuid.New(),
		Email:        email,
		PasswordHash: "x",
	})
	require.ErrorIs(t, err, ErrUserConflict)

	byEmail, err := store.GetUserByEmail(context.Background(), email)
	require.NoError(t, err)
	require.Equal(t, created.UserID, byEmail.UserID)
}

func TestAccessStoreRoundTrip(t *testing.T) {
	pool := testPool(t)

	users, err := NewUserStore(pool)
	require.NoError(t, err)
	store, err := NewAccessStore(pool)
	require.NoError(t, err)

	user, err := users.CreateUser(context.Background(), CreateUserParams{
		UserID:       uuid.New(),
		Email:        "it-" + uuid.NewString()[:8] + "@example.com",
		PasswordHash: "x",
	})
	require.NoError(t, err)

	roleName := "it-role-" + uuid.NewString()[:8]
	role, err := store.EnsureRole(context.Background(), roleName)
	require.NoError(t, err)

	perm, err := store.EnsurePermission(context.Background(), "it-perm-"+uuid.NewString()[:8])
	require.NoError(t, err)
	require.NoError(t, store.GrantPermission(context.Background(), role.RoleID, perm.PermissionID))

	assignment := AssignmentRow{UserID: user.UserID, RoleID: role.RoleID}
	require.NoError(t, store.AssignRole(context.Background(), assignment))
	require.ErrorIs(t, store.AssignRole(context.Background(), assignment), ErrAssignmentConflict)

	perms, err := store.PermissionsForUser(context.Background(), user.UserID, nil)
	require.NoError(t, err)
	require.Contains(t, perms, perm.Name)

	require.NoError(t, store.RevokeRole(context.Background(), assignment))
	perms, err = store.PermissionsForUser(context.Background(), user.UserID, nil)
	require.NoError(t, err)
	require.Empty(t, perms)
}
