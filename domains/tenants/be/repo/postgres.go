package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/medistack/platform-core/domains/tenants/be/service"
	"github.com/medistack/platform-core/platform/go/persistence"
	"github.com/medistack/platform-core/platform/go/tenant"
)

// PostgresRepository adapts the master tenant store to the service contract.
type PostgresRepository struct {
	store *persistence.TenantStore
}

// NewPostgresRepository constructs a PostgresRepository.
func NewPostgresRepository(store *persistence.TenantStore) *PostgresRepository {
	if store == nil {
		panic("tenant store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Create(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	row, err := r.store.CreateTenant(ctx, persistence.CreateTenantParams{
		TenantID:  t.ID,
		Subdomain: t.Subdomain,
		Name:      t.Name,
		Plan:      string(t.Plan),
		Settings:  t.Settings,
	})
	if err != nil {
		return tenant.Tenant{}, mapStoreError(err)
	}
	return fromRow(row), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	row, err := r.store.GetTenant(ctx, id)
	if err != nil {
		return tenant.Tenant{}, mapStoreError(err)
	}
	return fromRow(row), nil
}

func (r *PostgresRepository) FindBySubdomain(ctx context.Context, subdomain string) (tenant.Tenant, error) {
	row, err := r.store.GetTenantBySubdomain(ctx, subdomain)
	if err != nil {
		return tenant.Tenant{}, mapStoreError(err)
	}
	return fromRow(row), nil
}

func (r *PostgresRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	result, err := r.store.ListTenants(ctx, persistence.ListTenantsParams{
		Page:     opts.Page,
		PageSize: opts.PageSize,
		IsActive: opts.IsActive,
	})
	if err != nil {
		return service.ListResult{}, mapStoreError(err)
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	tenants := make([]tenant.Tenant, 0, len(result.Tenants))
	for _, row := range result.Tenants {
		tenants = append(tenants, fromRow(row))
	}

	totalPages := (result.TotalItems + pageSize - 1) / pageSize
	return service.ListResult{
		Tenants:    tenants,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: result.TotalItems,
		TotalPages: totalPages,
	}, nil
}

func (r *PostgresRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) (tenant.Tenant, error) {
	row, err := r.store.SetTenantActive(ctx, id, active)
	if err != nil {
		return tenant.Tenant{}, mapStoreError(err)
	}
	return fromRow(row), nil
}

func (r *PostgresRepository) UpdateSettings(ctx context.Context, id uuid.UUID, settings map[string]string) (tenant.Tenant, error) {
	row, err := r.store.UpdateTenantSettings(ctx, id, settings)
	if err != nil {
		return tenant.Tenant{}, mapStoreError(err)
	}
	return fromRow(row), nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrTenantNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrTenantConflict):
		return service.ErrConflictSubdomain
	default:
		return err
	}
}

func fromRow(row persistence.TenantRow) tenant.Tenant {
	return tenant.Tenant{
		ID:        row.TenantID,
		Subdomain: row.Subdomain,
		Name:      row.Name,
		Plan:      tenant.PlanFromString(row.Plan),
		IsActive:  row.IsActive,
		Settings:  row.Settings,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
