package quota

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medistack/platform-core/platform/go/apperror"
	"github.com/medistack/platform-core/platform/go/tenant"
)

// Enforcer gates mutating operations against tenant plan limits and records
// per-call usage after responses are written.
type Enforcer struct {
	ledger Ledger
	logger *zap.Logger
	writer *apperror.Writer
}

// NewEnforcer constructs the plan gate.
func NewEnforcer(ledger Ledger, logger *zap.Logger, writer *apperror.Writer) *Enforcer {
	if ledger == nil || logger == nil || writer == nil {
		panic("quota enforcer requires ledger, logger and writer")
	}
	return &Enforcer{ledger: ledger, logger: logger, writer: writer}
}

// CheckUserCreation denies when the tenant's user count is at or over its
// plan ceiling.
func (e *Enforcer) CheckUserCreation(ctx context.Context, t tenant.Tenant) error {
	limits := LimitsFor(t.Plan)
	if limits.Users == Unlimited {
		return nil
	}

	current, err := e.ledger.Usage(ctx, t.ID, ResourceUsers)
	if err != nil {
		return apperror.Wrap(apperror.KindInternal, "usage lookup failed", err)
	}
	if current >= limits.Users {
		return apperror.New(apperror.KindQuota,
			fmt.Sprintf("plan limit reached: %s plan allows %d users", t.Plan, limits.Users))
	}
	return nil
}

// RecordUserDelta moves the tenant's user counter after a create or
// deactivate commits.
func (e *Enforcer) RecordUserDelta(ctx context.Context, tenantID uuid.UUID, delta int64) {
	if err := e.ledger.Adjust(ctx, tenantID, ResourceUsers, delta); err != nil {
		e.logger.Warn("usage counter adjustment failed",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
	}
}

// EnforceUserLimit is route middleware for user-creating endpoints. Requests
// without a tenant scope (master-scope operations) pass through.
func (e *Enforcer) EnforceUserLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope, ok := tenant.FromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if err := e.CheckUserCreation(r.Context(), scope.Tenant); err != nil {
			e.writer.Write(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TrackUsage records every tenant-scoped call (path, latency) against the
// usage ledger after the response has been sent. Recording is asynchronous,
// never delays or fails the response, and its errors are logged only.
func (e *Enforcer) TrackUsage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		scope, ok := tenant.FromContext(r.Context())
		if !ok {
			return
		}

		rec := CallRecord{
			Path:    r.URL.Path,
			Status:  ww.Status(),
			Latency: time.Since(start),
		}

		// Detach from the request context so cancellation after the response
		// cannot drop the record.
		ctx := context.WithoutCancel(r.Context())
		go func() {
			recordCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := e.ledger.RecordCall(recordCtx, scope.Tenant.ID, rec); err != nil {
				e.logger.Warn("usage tracking failed",
					zap.String("tenant", scope.Tenant.Subdomain),
					zap.String("path", rec.Path),
					zap.Error(err),
				)
			}
		}()
	})
}
