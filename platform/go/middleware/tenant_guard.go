package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medistack/platform-core/platform/go/apperror"
	"github.com/medistack/platform-core/platform/go/auth"
)

// TenantGuard restricts tenant-scoped operations bearing an `id` path
// parameter to the caller's own tenant. Master administrators bypass the
// check.
func TenantGuard(writer *apperror.Writer) func(http.Handler) http.Handler {
	if writer == nil {
		panic("tenant guard requires writer")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idParam := chi.URLParam(r, "id")
			if idParam == "" {
				next.ServeHTTP(w, r)
				return
			}

			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				writer.Write(w, apperror.ErrAuthRequired)
				return
			}
			if principal.IsMasterAdmin {
				next.ServeHTTP(w, r)
				return
			}

			id, err := uuid.Parse(idParam)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			if principal.TenantID == nil || *principal.TenantID != id {
				writer.Write(w, apperror.New(apperror.KindPermission, "cross-tenant access denied"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
