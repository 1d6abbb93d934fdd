package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medistack/platform-core/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	ErrNotFound          = errors.New("tenant not found")
	ErrConflictSubdomain = errors.New("tenant subdomain already exists")
	ErrInvalidSubdomain  = errors.New("invalid tenant subdomain")
)

// CreateInput represents the request to create a tenant.
type CreateInput struct {
	Subdomain string
	Name      string
	Plan      tenant.Plan
	Settings  map[string]string
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Page     int
	PageSize int
	IsActive *bool
}

// ListResult wraps paginated tenants.
type ListResult struct {
	Tenants    []tenant.Tenant
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Repository abstracts persistence.
type Repository interface {
	Create(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error)
	FindBySubdomain(ctx context.Context, subdomain string) (tenant.Tenant, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (tenant.Tenant, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, settings map[string]string) (tenant.Tenant, error)
}

// Service provides tenant registry operations.
type Service struct {
	repo Repository
}

// New constructs a Service with required dependencies.
func New(repo Repository) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	return &Service{repo: repo}
}

// Create registers a new tenant. The subdomain is normalized and its format
// enforced before anything is persisted.
func (s *Service) Create(ctx context.Context, input CreateInput) (tenant.Tenant, error) {
	subdomain, err := tenant.NormalizeSubdomain(input.Subdomain)
	if err != nil {
		return tenant.Tenant{}, ErrInvalidSubdomain
	}
	if tenant.IsReservedSubdomain(subdomain) {
		return tenant.Tenant{}, ErrInvalidSubdomain
	}

	now := time.Now().UTC()
	t := tenant.Tenant{
		ID:        uuid.New(),
		Subdomain: subdomain,
		Name:      input.Name,
		Plan:      tenant.PlanFromString(string(input.Plan)),
		IsActive:  true,
		Settings:  input.Settings,
		CreatedAt: now,
		UpdatedAt: now,
	}

	return s.repo.Create(ctx, t)
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	return s.repo.Get(ctx, id)
}

// GetBySubdomain returns a tenant by its subdomain.
func (s *Service) GetBySubdomain(ctx context.Context, subdomain string) (tenant.Tenant, error) {
	normalized, err := tenant.NormalizeSubdomain(subdomain)
	if err != nil {
		return tenant.Tenant{}, ErrNotFound
	}
	return s.repo.FindBySubdomain(ctx, normalized)
}

// List tenants with optional activity filter.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	return s.repo.List(ctx, opts)
}

// Suspend soft-deactivates a tenant; its requests fail closed until restored.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	return s.repo.SetActive(ctx, id, false)
}

// Restore re-activates a suspended tenant.
func (s *Service) Restore(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	return s.repo.SetActive(ctx, id, true)
}

// UpdateSettings replaces the tenant's opaque settings map.
func (s *Service) UpdateSettings(ctx context.Context, id uuid.UUID, settings map[string]string) (tenant.Tenant, error) {
	return s.repo.UpdateSettings(ctx, id, settings)
}

// TenantByID implements the resolver middleware lookup; the found flag
// separates a clean miss from a store failure.
func (s *Service) TenantByID(ctx context.Context, id uuid.UUID) (tenant.Tenant, bool, error) {
	t, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return tenant.Tenant{}, false, nil
	}
	if err != nil {
		return tenant.Tenant{}, false, err
	}
	return t, true, nil
}

// TenantBySubdomain implements the resolver middleware lookup.
func (s *Service) TenantBySubdomain(ctx context.Context, subdomain string) (tenant.Tenant, bool, error) {
	t, err := s.GetBySubdomain(ctx, subdomain)
	if errors.Is(err, ErrNotFound) {
		return tenant.Tenant{}, false, nil
	}
	if err != nil {
		return tenant.Tenant{}, false, err
	}
	return t, true, nil
}

// GetTenant implements the authentication middleware lookup.
func (s *Service) GetTenant(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	return s.repo.Get(ctx, id)
}
