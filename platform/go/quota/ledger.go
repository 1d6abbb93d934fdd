package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ResourceUsers is the usage counter gating user creation.
const ResourceUsers = "users"

// CallRecord is one request's cost entry for the tenant usage ledger.
type CallRecord struct {
	Path    string
	Status  int
	Latency time.Duration
}

// Ledger tracks per-tenant usage counters and per-call records.
type Ledger interface {
	Usage(ctx context.Context, tenantID uuid.UUID, resource string) (int64, error)
	Adjust(ctx context.Context, tenantID uuid.UUID, resource string, delta int64) error
	RecordCall(ctx context.Context, tenantID uuid.UUID, rec CallRecord) error
}

// RedisLedger keeps the usage ledger in Redis so counters survive restarts
// and are shared across instances.
type RedisLedger struct {
	client *redis.Client
}

// NewRedisLedger connects to Redis and verifies connectivity.
func NewRedisLedger(addr, password string, db int) (*RedisLedger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisLedger{client: client}, nil
}

func usageKey(tenantID uuid.UUID, resource string) string {
	return "usage:" + tenantID.String() + ":" + resource
}

func callsKey(tenantID uuid.UUID) string {
	return "calls:" + tenantID.String()
}

// Usage returns the current counter for one tenant resource.
func (l *RedisLedger) Usage(ctx context.Context, tenantID uuid.UUID, resource string) (int64, error) {
	val, err := l.client.Get(ctx, usageKey(tenantID, resource)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read usage counter: %w", err)
	}
	return val, nil
}

// Adjust moves a tenant resource counter by delta.
func (l *RedisLedger) Adjust(ctx context.Context, tenantID uuid.UUID, resource string, delta int64) error {
	if err := l.client.IncrBy(ctx, usageKey(tenantID, resource), delta).Err(); err != nil {
		return fmt.Errorf("adjust usage counter: %w", err)
	}
	return nil
}

// RecordCall appends one request's cost to the tenant's call ledger.
func (l *RedisLedger) RecordCall(ctx context.Context, tenantID uuid.UUID, rec CallRecord) error {
	key := callsKey(tenantID)
	pipe := l.client.Pipeline()
	pipe.HIncrBy(ctx, key, rec.Path+":count", 1)
	pipe.HIncrBy(ctx, key, rec.Path+":latency_ms", rec.Latency.Milliseconds())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record call: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (l *RedisLedger) Close() error {
	return l.client.Close()
}

var _ Ledger = (*RedisLedger)(nil)
