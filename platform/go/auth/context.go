package auth

import (
	"context"

	"github.com/google/uuid"
)

// Principal is the authenticated caller attached to the request context.
// Tenant-scope callers carry the permission snapshot embedded in their
// credential; master-scope callers resolve permissions live when needed.
type Principal struct {
	UserID        uuid.UUID
	Email         string
	UserType      string
	TenantID      *uuid.UUID
	IsMasterAdmin bool
	Permissions   []string
}

// IsTenantScoped reports whether the caller operates inside one tenant's
// isolated data universe.
func (p Principal) IsTenantScoped() bool {
	return p.TenantID != nil
}

type ctxKey struct{}

// WithPrincipal returns a derived context carrying the authenticated caller.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFromContext extracts the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
