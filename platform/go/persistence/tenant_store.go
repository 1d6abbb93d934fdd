package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const TenantsTable = "tenants"

// TenantRow represents a row in the tenants registry table.
type TenantRow struct {
	TenantID  uuid.UUID
	Subdomain string
	Name      string
	Plan      string
	IsActive  bool
	Settings  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrTenantNotFound indicates a missing tenant record.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrTenantConflict indicates a subdomain uniqueness violation.
	ErrTenantConflict = errors.New("tenant subdomain conflict")
)

// TenantStore exposes persistence helpers for the tenant registry.
type TenantStore struct {
	pool *pgxpool.Pool
}

// NewTenantStore returns a store bound to the master pool.
func NewTenantStore(pool *pgxpool.Pool) (*TenantStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &TenantStore{pool: pool}, nil
}

// CreateTenantParams captures the fields required to insert a new tenant.
type CreateTenantParams struct {
	TenantID  uuid.UUID
	Subdomain string
	Name      string
	Plan      string
	Settings  map[string]string
}

// CreateTenant inserts a new tenant and returns the persisted record.
func (s *TenantStore) CreateTenant(ctx context.Context, params CreateTenantParams) (TenantRow, error) {
	if params.TenantID == uuid.Nil {
		return TenantRow{}, errors.New("tenant id is required")
	}

	settings, err := marshalSettings(params.Settings)
	if err != nil {
		return TenantRow{}, err
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (tenant_id, subdomain, name, plan, settings)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING tenant_id, subdomain, name, plan, is_active, settings, created_at, updated_at
    `, TenantsTable),
		params.TenantID,
		strings.TrimSpace(params.Subdomain),
		strings.TrimSpace(params.Name),
		params.Plan,
		settings,
	)

	tenantRow, err := scanTenant(row)
	if err != nil {
		if isUniqueViolation(err) {
			return TenantRow{}, ErrTenantConflict
		}
		return TenantRow{}, err
	}

	return tenantRow, nil
}

// GetTenant returns a tenant by id.
func (s *TenantStore) GetTenant(ctx context.Context, id uuid.UUID) (TenantRow, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT tenant_id, subdomain, name, plan, is_active, settings, created_at, updated_at
        FROM %s WHERE tenant_id = $1
    `, TenantsTable), id)

	return scanTenantNotFound(row)
}

// GetTenantBySubdomain returns a tenant by its subdomain.
func (s *TenantStore) GetTenantBySubdomain(ctx context.Context, subdomain string) (TenantRow, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        SELECT tenant_id, subdomain, name, plan, is_active, settings, created_at, updated_at
        FROM %s WHERE subdomain = $1
    `, TenantsTable), strings.ToLower(strings.TrimSpace(subdomain)))

	return scanTenantNotFound(row)
}

// ListTenantsParams captures filters and pagination for ListTenants.
type ListTenantsParams struct {
	Page     int
	PageSize int
	IsActive *bool
}

// ListTenantsResult includes the rows and the total count for pagination metadata.
type ListTenantsResult struct {
	Tenants    []TenantRow
	TotalItems int
}

// ListTenants returns tenants matching the filters with pagination applied.
func (s *TenantStore) ListTenants(ctx context.Context, params ListTenantsParams) (ListTenantsResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}

	whereParts := []string{"1=1"}
	var args []any

	if params.IsActive != nil {
		args = append(args, *params.IsActive)
		whereParts = append(whereParts, fmt.Sprintf("is_active = $%d", len(args)))
	}

	whereSQL := strings.Join(whereParts, " AND ")

	var total int
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", TenantsTable, whereSQL)
	if err := s.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return ListTenantsResult{}, fmt.Errorf("count tenants: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	args = append(args, params.PageSize, offset)
	listSQL := fmt.Sprintf(`
        SELECT tenant_id, subdomain, name, plan, is_active, settings, created_at, updated_at
        FROM %s WHERE %s
        ORDER BY created_at ASC
        LIMIT $%d OFFSET $%d
    `, TenantsTable, whereSQL, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, listSQL, args...)
	if err != nil {
		return ListTenantsResult{}, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []TenantRow
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return ListTenantsResult{}, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return ListTenantsResult{}, err
	}

	return ListTenantsResult{Tenants: tenants, TotalItems: total}, nil
}

// SetTenantActive flips the soft-activation flag. Tenants are never hard-deleted here.
func (s *TenantStore) SetTenantActive(ctx context.Context, id uuid.UUID, active bool) (TenantRow, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET is_active = $2, updated_at = now()
        WHERE tenant_id = $1
        RETURNING tenant_id, subdomain, name, plan, is_active, settings, created_at, updated_at
    `, TenantsTable), id, active)

	return scanTenantNotFound(row)
}

// UpdateTenantSettings replaces the opaque settings map.
func (s *TenantStore) UpdateTenantSettings(ctx context.Context, id uuid.UUID, settings map[string]string) (TenantRow, error) {
	encoded, err := marshalSettings(settings)
	if err != nil {
		return TenantRow{}, err
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET settings = $2, updated_at = now()
        WHERE tenant_id = $1
        RETURNING tenant_id, subdomain, name, plan, is_active, settings, created_at, updated_at
    `, TenantsTable), id, encoded)

	return scanTenantNotFound(row)
}

func marshalSettings(settings map[string]string) ([]byte, error) {
	if settings == nil {
		settings = map[string]string{}
	}
	encoded, err := json.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	return encoded, nil
}

func scanTenant(row pgx.Row) (TenantRow, error) {
	var t TenantRow
	var settings []byte
	if err := row.Scan(&t.TenantID, &t.Subdomain, &t.Name, &t.Plan, &t.IsActive, &settings, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return TenantRow{}, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &t.Settings); err != nil {
			return TenantRow{}, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	if t.Settings == nil {
		t.Settings = map[string]string{}
	}
	return t, nil
}

func scanTenantNotFound(row pgx.Row) (TenantRow, error) {
	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRow{}, ErrTenantNotFound
		}
		return TenantRow{}, err
	}
	return t, nil
}
