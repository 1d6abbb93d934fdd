package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/medistack/platform-core/platform/go/apperror"
	"github.com/medistack/platform-core/platform/go/registry"
	"github.com/medistack/platform-core/platform/go/tenant"
)

// TenantHeader echoes the resolved subdomain on every tenant-scoped response.
const TenantHeader = "X-Tenant"

// maxBodyPeek bounds how much of a JSON body is read while looking for an
// explicit tenantId field.
const maxBodyPeek = 1 << 20

// Lookup finds tenant registry records; the found flag separates a clean miss
// from a store failure.
type Lookup interface {
	TenantByID(ctx context.Context, id uuid.UUID) (tenant.Tenant, bool, error)
	TenantBySubdomain(ctx context.Context, subdomain string) (tenant.Tenant, bool, error)
}

// ConnSource hands out ready tenant connections; implemented by the registry.
type ConnSource interface {
	Tenant(ctx context.Context, t tenant.Tenant) (*registry.TenantConn, error)
}

// Resolver derives the tenant identity for each request and attaches the
// tenant scope plus the tenant's isolated store handle to the context.
type Resolver struct {
	tenants Lookup
	conns   ConnSource
	writer  *apperror.Writer
}

// NewResolver constructs the tenant resolution middleware.
func NewResolver(tenants Lookup, conns ConnSource, writer *apperror.Writer) *Resolver {
	if tenants == nil || conns == nil || writer == nil {
		panic("tenant resolver requires lookup, conn source and writer")
	}
	return &Resolver{tenants: tenants, conns: conns, writer: writer}
}

// Middleware resolves the tenant using, in order: explicit tenantId in query
// or body, hostname subdomain, and the /tenant/{subdomain}/ path prefix
// (stripped before downstream routing). Requests matching none proceed with
// no tenant context. An explicit identifier naming a missing tenant is a 404;
// a resolved but inactive tenant is a 403 before any further processing.
func (rv *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Explicit tenantId in query or body.
		if raw := rv.explicitTenantID(r); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				rv.writer.Write(w, apperror.New(apperror.KindTenantNotFound, "tenant not found"))
				return
			}
			t, found, err := rv.tenants.TenantByID(r.Context(), id)
			if err != nil {
				rv.writer.Write(w, apperror.Wrap(apperror.KindInternal, "tenant lookup failed", err))
				return
			}
			if !found {
				rv.writer.Write(w, apperror.New(apperror.KindTenantNotFound, "tenant not found"))
				return
			}
			rv.attach(w, r, next, t)
			return
		}

		// 2. Hostname subdomain; a miss falls through to the next strategy.
		if sub := tenant.SubdomainFromHost(r.Host); sub != "" {
			t, found, err := rv.tenants.TenantBySubdomain(r.Context(), sub)
			if err != nil {
				rv.writer.Write(w, apperror.Wrap(apperror.KindInternal, "tenant lookup failed", err))
				return
			}
			if found {
				rv.attach(w, r, next, t)
				return
			}
		}

		// 3. Path prefix /tenant/{subdomain}/... — explicit, so a miss is a 404.
		if sub, rest, ok := splitTenantPath(r.URL.Path); ok {
			t, found, err := rv.tenants.TenantBySubdomain(r.Context(), sub)
			if err != nil {
				rv.writer.Write(w, apperror.Wrap(apperror.KindInternal, "tenant lookup failed", err))
				return
			}
			if !found {
				rv.writer.Write(w, apperror.New(apperror.KindTenantNotFound, "tenant not found"))
				return
			}
			// Strip the prefix so downstream routing is unaffected.
			r.URL.Path = rest
			r.URL.RawPath = ""
			rv.attach(w, r, next, t)
			return
		}

		// 4. No match: master-scope request.
		next.ServeHTTP(w, r)
	})
}

func (rv *Resolver) attach(w http.ResponseWriter, r *http.Request, next http.Handler, t tenant.Tenant) {
	if !t.IsActive {
		rv.writer.Write(w, apperror.New(apperror.KindTenantInactive, "tenant is inactive"))
		return
	}

	conn, err := rv.conns.Tenant(r.Context(), t)
	if err != nil {
		rv.writer.Write(w, apperror.Wrap(apperror.KindConnection, "tenant store unavailable", err))
		return
	}

	w.Header().Set(TenantHeader, t.Subdomain)

	ctx := tenant.WithScope(r.Context(), tenant.Scope{Tenant: t})
	ctx = registry.WithConn(ctx, conn)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// explicitTenantID returns a tenantId supplied in the query string or, for
// JSON bodies, the tenantId body field. The body is restored so downstream
// handlers can re-read it.
func (rv *Resolver) explicitTenantID(r *http.Request) string {
	if id := r.URL.Query().Get("tenantId"); id != "" {
		return id
	}

	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return ""
	}

	peeked, err := io.ReadAll(io.LimitReader(r.Body, maxBodyPeek))
	remainder := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(peeked), remainder), remainder}
	if err != nil {
		return ""
	}

	var body struct {
		TenantID string `json:"tenantId"`
	}
	if err := json.Unmarshal(peeked, &body); err != nil {
		return ""
	}
	return body.TenantID
}

// splitTenantPath matches /tenant/{subdomain}/... and returns the subdomain
// plus the remaining path.
func splitTenantPath(path string) (subdomain, rest string, ok bool) {
	const prefix = "/tenant/"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}

	trimmed := strings.TrimPrefix(path, prefix)
	if trimmed == "" {
		return "", "", false
	}

	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		subdomain, rest = trimmed[:idx], trimmed[idx:]
	} else {
		subdomain, rest = trimmed, "/"
	}

	if subdomain == "" {
		return "", "", false
	}
	return subdomain, rest, true
}
