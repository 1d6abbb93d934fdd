package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/medistack/platform-core/platform/go/persistence"
	"github.com/medistack/platform-core/platform/go/tenant"
)

// Config captures the connectivity knobs for the registry.
type Config struct {
	// MasterURL is the master store DSN; tenant store addresses are derived
	// from it and the tenant subdomain, never configured individually.
	MasterURL string
	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration
	// RetryBudget bounds the total time spent retrying one target before the
	// attempt is reported as failed. For the master store an exhausted budget
	// is fatal to the process.
	RetryBudget time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.RetryBudget <= 0 {
		c.RetryBudget = 30 * time.Second
	}
	return c
}

// TenantConn is the ready handle for one tenant's isolated store: the pool
// plus the typed accessor set populated when the connection became ready.
type TenantConn struct {
	TenantID  uuid.UUID
	Subdomain string
	Pool      *pgxpool.Pool
	Stores    Stores
}

// Stores is the per-tenant entity accessor registry. Accessors are typed and
// bound once, when the tenant handle becomes ready.
type Stores struct {
	Users *persistence.UserStore
}

// DialFunc establishes a pool for a store URL. Injectable for tests.
type DialFunc func(ctx context.Context, url string) (*pgxpool.Pool, error)

// Registry is the single source of truth for store connectivity. It owns the
// master pool and a cache of per-tenant pools created lazily and race-free.
// It carries no module-level state; independent instances can coexist.
type Registry struct {
	cfg    Config
	logger *zap.Logger
	dial   DialFunc

	master *pgxpool.Pool

	mu    sync.RWMutex
	conns map[uuid.UUID]*TenantConn
	group singleflight.Group

	closed bool
}

// ErrClosed is returned for connection demands after shutdown began.
var ErrClosed = errors.New("connection registry closed")

// New constructs a Registry. The master connection is not established until
// InitMaster is called.
func New(cfg Config, logger *zap.Logger) *Registry {
	if logger == nil {
		panic("registry requires logger")
	}
	return &Registry{
		cfg:    cfg.withDefaults(),
		logger: logger,
		dial:   defaultDial,
		conns:  make(map[uuid.UUID]*TenantConn),
	}
}

// NewWithDial constructs a Registry with a custom dialer; used by tests.
func NewWithDial(cfg Config, logger *zap.Logger, dial DialFunc) *Registry {
	r := New(cfg, logger)
	if dial != nil {
		r.dial = dial
	}
	return r
}

func defaultDial(ctx context.Context, url string) (*pgxpool.Pool, error) {
	return persistence.NewPool(ctx, persistence.PoolConfig{ConnString: url})
}

// InitMaster establishes the master store connection. Idempotent. Retries
// with exponential backoff inside the configured budget; an exhausted budget
// means the process cannot serve traffic and the caller must terminate.
func (r *Registry) InitMaster(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.master != nil {
		return nil
	}

	pool, err := r.connectWithRetry(ctx, r.cfg.MasterURL, "master")
	if err != nil {
		return fmt.Errorf("master store unreachable after retry budget: %w", err)
	}

	r.master = pool
	r.logger.Info("master store connection established")
	return nil
}

// Master returns the master pool; InitMaster must have succeeded first.
func (r *Registry) Master() *pgxpool.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.master
}

// Tenant returns the ready connection for the given tenant, creating it on
// first demand. Creation is single-flight: concurrent callers for the same
// tenant id share one connect attempt and observe the same outcome. Ready
// handles are cached for the process lifetime; failed attempts are not
// cached, so a later request retries.
func (r *Registry) Tenant(ctx context.Context, t tenant.Tenant) (*TenantConn, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrClosed
	}
	if conn, ok := r.conns[t.ID]; ok {
		r.mu.RUnlock()
		return conn, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.group.Do(t.ID.String(), func() (any, error) {
		// A concurrent winner may have populated the cache before this call
		// entered the group.
		r.mu.RLock()
		if conn, ok := r.conns[t.ID]; ok {
			r.mu.RUnlock()
			return conn, nil
		}
		r.mu.RUnlock()

		// The winner's request context must not decide the outcome for the
		// waiters sharing this flight. The attempt is bounded by the
		// registry's own connect timeout and retry budget instead.
		return r.connectTenant(context.WithoutCancel(ctx), t)
	})
	if err != nil {
		return nil, err
	}
	return v.(*TenantConn), nil
}

func (r *Registry) connectTenant(ctx context.Context, t tenant.Tenant) (*TenantConn, error) {
	url, err := tenant.DeriveStoreURL(r.cfg.MasterURL, t.Subdomain)
	if err != nil {
		return nil, fmt.Errorf("derive tenant store url: %w", err)
	}

	pool, err := r.connectWithRetry(ctx, url, t.Subdomain)
	if err != nil {
		return nil, fmt.Errorf("tenant store %s unreachable: %w", t.Subdomain, err)
	}

	if err := r.provisionTenant(ctx, pool); err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	conn := &TenantConn{TenantID: t.ID, Subdomain: t.Subdomain, Pool: pool}
	users, err := persistence.NewTenantUserStore(pool)
	if err == nil {
		conn.Stores = Stores{Users: users}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		if pool != nil {
			pool.Close()
		}
		return nil, ErrClosed
	}
	r.conns[t.ID] = conn
	r.mu.Unlock()

	r.logger.Info("tenant store connection established",
		zap.String("tenant", t.Subdomain),
		zap.String("tenant_id", t.ID.String()),
	)
	return conn, nil
}

func (r *Registry) provisionTenant(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return nil
	}
	if err := persistence.ApplyTenantSchema(ctx, pool); err != nil {
		return fmt.Errorf("provision tenant schema: %w", err)
	}
	return nil
}

// connectWithRetry dials a store with per-attempt timeout and exponential
// backoff bounded by the retry budget.
func (r *Registry) connectWithRetry(ctx context.Context, url, target string) (*pgxpool.Pool, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = r.cfg.RetryBudget

	var pool *pgxpool.Pool
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
		defer cancel()

		p, err := r.dial(attemptCtx, url)
		if err != nil {
			r.logger.Warn("store connection attempt failed",
				zap.String("target", target),
				zap.Error(err),
			)
			return err
		}
		pool = p
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return pool, nil
}

// ConnCount reports the number of cached tenant connections.
func (r *Registry) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll releases every cached tenant handle and then the master handle.
// Teardown is best-effort and non-aborting: a problem with one tenant's
// handle is logged and does not prevent closing the others.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	master := r.master
	r.conns = make(map[uuid.UUID]*TenantConn)
	r.master = nil
	r.closed = true
	r.mu.Unlock()

	for id, conn := range conns {
		r.closeQuietly(conn.Pool, conn.Subdomain)
		r.logger.Debug("tenant store connection closed", zap.String("tenant_id", id.String()))
	}
	if master != nil {
		r.closeQuietly(master, "master")
		r.logger.Info("master store connection closed")
	}
}

func (r *Registry) closeQuietly(pool *pgxpool.Pool, target string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("store teardown failed", zap.String("target", target), zap.Any("panic", rec))
		}
	}()
	if pool != nil {
		pool.Close()
	}
}
