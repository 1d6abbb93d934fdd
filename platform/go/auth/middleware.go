package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/medistack/platform-core/platform/go/apperror"
	"github.com/medistack/platform-core/platform/go/persistence"
	"github.com/medistack/platform-core/platform/go/tenant"
)

// TenantLookup loads tenant registry records for claim validation.
type TenantLookup interface {
	GetTenant(ctx context.Context, id uuid.UUID) (tenant.Tenant, error)
}

// UserResolver loads the caller from the correct store: the shared master
// collection for master-scope claims, or the tenant's isolated collection
// (through the connection registry) for tenant-scope claims.
type UserResolver interface {
	MasterUser(ctx context.Context, userID uuid.UUID) (persistence.UserRow, error)
	TenantUser(ctx context.Context, t tenant.Tenant, userID uuid.UUID) (persistence.UserRow, error)
}

// Authenticator verifies bearer credentials and attaches the Principal.
type Authenticator struct {
	tokens  *TokenManager
	tenants TenantLookup
	users   UserResolver
	writer  *apperror.Writer
}

// NewAuthenticator constructs the authentication middleware.
func NewAuthenticator(tokens *TokenManager, tenants TenantLookup, users UserResolver, writer *apperror.Writer) *Authenticator {
	if tokens == nil || tenants == nil || users == nil || writer == nil {
		panic("authenticator requires tokens, tenants, users and writer")
	}
	return &Authenticator{tokens: tokens, tenants: tenants, users: users, writer: writer}
}

// ExtractBearerToken pulls the credential from the Authorization header.
func ExtractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	const prefix = "Bearer "
	// Case-insensitive prefix match.
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(authHeader[len(prefix):]), true
}

// Middleware authenticates every request passing through it. Missing or
// malformed credentials are rejected with 401; an inactive tenant named by
// the claims is rejected with 403; every other lookup failure degrades to a
// generic 401 so callers cannot probe which check failed.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, found := ExtractBearerToken(r)
		if !found {
			a.writer.Write(w, apperror.ErrAuthRequired)
			return
		}

		claims, err := a.tokens.Verify(tokenString)
		if err != nil {
			a.writer.Write(w, apperror.Wrap(apperror.KindAuth, "invalid or expired token", err))
			return
		}

		principal, err := a.resolvePrincipal(r.Context(), claims)
		if err != nil {
			a.writer.Write(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

func (a *Authenticator) resolvePrincipal(ctx context.Context, claims *Claims) (Principal, error) {
	var user persistence.UserRow

	if claims.TenantID != nil {
		t, err := a.tenants.GetTenant(ctx, *claims.TenantID)
		if err != nil {
			return Principal{}, apperror.Wrap(apperror.KindAuth, "invalid or expired token", err)
		}
		if !t.IsActive {
			return Principal{}, apperror.New(apperror.KindTenantInactive, "tenant is inactive")
		}

		user, err = a.users.TenantUser(ctx, t, claims.UserID)
		if err != nil {
			return Principal{}, apperror.Wrap(apperror.KindAuth, "invalid or expired token", err)
		}
	} else {
		var err error
		user, err = a.users.MasterUser(ctx, claims.UserID)
		if err != nil {
			return Principal{}, apperror.Wrap(apperror.KindAuth, "invalid or expired token", err)
		}
	}

	if !user.IsActive {
		return Principal{}, apperror.New(apperror.KindAuth, "account is disabled")
	}

	principal := Principal{
		UserID:      user.UserID,
		Email:       user.Email,
		UserType:    user.UserType,
		TenantID:    claims.TenantID,
		Permissions: claims.Permissions,
	}
	if claims.TenantID == nil {
		principal.IsMasterAdmin = user.IsMasterAdmin
	}
	return principal, nil
}
