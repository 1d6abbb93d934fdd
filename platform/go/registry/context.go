package registry

import "context"

type ctxKey struct{}

// WithConn returns a derived context carrying a request-scoped tenant
// connection. The registry stays the owner of the handle; the context only
// borrows it for one request.
func WithConn(ctx context.Context, conn *TenantConn) context.Context {
	return context.WithValue(ctx, ctxKey{}, conn)
}

// ConnFromContext extracts the request-scoped tenant connection, if present.
func ConnFromContext(ctx context.Context) (*TenantConn, bool) {
	conn, ok := ctx.Value(ctxKey{}).(*TenantConn)
	return conn, ok
}
