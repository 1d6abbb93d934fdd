package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	mgr := NewTokenManager("test-secret", time.Hour)

	userID := uuid.New()
	token, err := mgr.Issue(IssueParams{UserID: userID, Email: "admin@medistack.io"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := mgr.Verify(token)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, "admin@medistack.io", claims.Email)
	require.Nil(t, claims.TenantID)
	require.Empty(t, claims.Permissions)
}

func TestIssueTenantScopedSnapshot(t *testing.T) {
	mgr := NewTokenManager("test-secret", time.Hour)

	userID := uuid.New()
	tenantID := uuid.New()
	token, err := mgr.Issue(IssueParams{
		UserID:      userID,
		TenantID:    &tenantID,
		Email:       "staff@clinic.io",
		Permissions: []string{"manage_doctors", "view_patients"},
	})
	require.NoError(t, err)

	claims, err := mgr.Verify(token)
	require.NoError(t, err)
	require.NotNil(t, claims.TenantID)
	require.Equal(t, tenantID, *claims.TenantID)
	require.Equal(t, []string{"manage_doctors", "view_patients"}, claims.Permissions)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenManager("secret-a", time.Hour).Issue(IssueParams{UserID: uuid.New()})
	require.NoError(t, err)

	_, err = NewTokenManager("secret-b", time.Hour).Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	mgr := NewTokenManager("test-secret", time.Nanosecond)

	token, err := mgr.Issue(IssueParams{UserID: uuid.New()})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = mgr.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	mgr := NewTokenManager("test-secret", time.Hour)

	_, err := mgr.Verify("not-a-token")
	require.Error(t, err)
}
