package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// masterSchemaDDL holds the master-store tables: the tenant registry plus the
// shared user and role/permission definition space.
const masterSchemaDDL = `
CREATE TABLE IF NOT EXISTS tenants (
    tenant_id   UUID PRIMARY KEY,
    subdomain   TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL DEFAULT '',
    plan        TEXT NOT NULL DEFAULT 'free',
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    settings    JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS users (
    user_id         UUID PRIMARY KEY,
    email           TEXT NOT NULL UNIQUE,
    full_name       TEXT NOT NULL DEFAULT '',
    user_type       TEXT NOT NULL DEFAULT 'staff',
    password_hash   TEXT NOT NULL,
    is_master_admin BOOLEAN NOT NULL DEFAULT FALSE,
    is_active       BOOLEAN NOT NULL DEFAULT TRUE,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS roles (
    role_id UUID PRIMARY KEY,
    name    TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS permissions (
    permission_id UUID PRIMARY KEY,
    name          TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS role_permissions (
    role_id       UUID NOT NULL REFERENCES roles(role_id) ON DELETE CASCADE,
    permission_id UUID NOT NULL REFERENCES permissions(permission_id) ON DELETE CASCADE,
    PRIMARY KEY (role_id, permission_id)
);

CREATE TABLE IF NOT EXISTS user_role_assignments (
    user_id    UUID NOT NULL,
    role_id    UUID NOT NULL REFERENCES roles(role_id) ON DELETE CASCADE,
    tenant_id  UUID,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE NULLS NOT DISTINCT (user_id, role_id, tenant_id)
);
`

// tenantSchemaDDL holds the tables provisioned inside each tenant's isolated
// store. Structurally similar to the master users table but a distinct
// collection per tenant.
const tenantSchemaDDL = `
CREATE TABLE IF NOT EXISTS users (
    user_id       UUID PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    full_name     TEXT NOT NULL DEFAULT '',
    user_type     TEXT NOT NULL DEFAULT 'staff',
    password_hash TEXT NOT NULL,
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// ApplyMasterSchema creates the master-store tables when missing.
func ApplyMasterSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("pool is required")
	}
	if _, err := pool.Exec(ctx, masterSchemaDDL); err != nil {
		return fmt.Errorf("apply master schema: %w", err)
	}
	return nil
}

// ApplyTenantSchema creates the per-tenant tables when missing. Called by the
// connection registry once a tenant's pool becomes ready.
func ApplyTenantSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("pool is required")
	}
	if _, err := pool.Exec(ctx, tenantSchemaDDL); err != nil {
		return fmt.Errorf("apply tenant schema: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
