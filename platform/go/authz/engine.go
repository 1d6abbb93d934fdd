package authz

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/medistack/platform-core/platform/go/apperror"
	"github.com/medistack/platform-core/platform/go/auth"
)

// PermissionResolver expands a user's role assignments into the union of
// granted permission names. Implemented by the master access store.
type PermissionResolver interface {
	PermissionsForUser(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) ([]string, error)
}

// Engine decides allow/deny for a declared required-permission set with
// any-of semantics: the caller must hold at least one.
type Engine struct {
	resolver PermissionResolver
}

// New constructs an Engine backed by the given resolver.
func New(resolver PermissionResolver) *Engine {
	if resolver == nil {
		panic("authz engine requires permission resolver")
	}
	return &Engine{resolver: resolver}
}

// Authorize returns nil when the principal may proceed.
//   - an empty required set always allows;
//   - master-admin callers bypass every check;
//   - tenant-scope callers are judged on their token's permission snapshot,
//     never touching the database;
//   - non-admin master-scope callers trigger one live role→permission
//     resolution.
func (e *Engine) Authorize(ctx context.Context, p auth.Principal, required []string) error {
	if len(required) == 0 {
		return nil
	}
	if p.IsMasterAdmin {
		return nil
	}

	if p.IsTenantScoped() {
		if intersects(p.Permissions, required) {
			return nil
		}
		return apperror.New(apperror.KindPermission, "permission denied")
	}

	granted, err := e.resolver.PermissionsForUser(ctx, p.UserID, nil)
	if err != nil {
		return apperror.Wrap(apperror.KindInternal, "permission resolution failed", err)
	}
	if intersects(granted, required) {
		return nil
	}
	return apperror.New(apperror.KindPermission, "permission denied")
}

// RequireAny builds route middleware enforcing the required set.
func (e *Engine) RequireAny(writer *apperror.Writer, required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				writer.Write(w, apperror.ErrAuthRequired)
				return
			}
			if err := e.Authorize(r.Context(), principal, required); err != nil {
				writer.Write(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func intersects(granted, required []string) bool {
	if len(granted) == 0 {
		return false
	}
	held := make(map[string]struct{}, len(granted))
	for _, name := range granted {
		held[name] = struct{}{}
	}
	for _, name := range required {
		if _, ok := held[name]; ok {
			return true
		}
	}
	return false
}
