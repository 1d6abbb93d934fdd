package tenant

import (
	"context"
)

// Scope carries the resolved tenant identity through a single request.
// It is attached to the request context by the resolver middleware and never
// shared across requests.
type Scope struct {
	Tenant Tenant
}

type ctxKey struct{}

// WithScope returns a derived context carrying the tenant Scope.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, ctxKey{}, scope)
}

// FromContext extracts the tenant Scope and a boolean indicating presence.
func FromContext(ctx context.Context) (Scope, bool) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return Scope{}, false
	}

	scope, ok := v.(Scope)
	return scope, ok
}
