package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medistack/platform-core/domains/tenants/be/service"
	"github.com/medistack/platform-core/platform/go/tenant"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and early development.
type MemoryRepository struct {
	mu          sync.RWMutex
	byID        map[uuid.UUID]tenant.Tenant
	bySubdomain map[string]uuid.UUID
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:        make(map[uuid.UUID]tenant.Tenant),
		bySubdomain: make(map[string]uuid.UUID),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySubdomain[t.Subdomain]; exists {
		return tenant.Tenant{}, service.ErrConflictSubdomain
	}

	r.byID[t.ID] = t
	r.bySubdomain[t.Subdomain] = t.ID
	return t, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (tenant.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return tenant.Tenant{}, service.ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepository) FindBySubdomain(ctx context.Context, subdomain string) (tenant.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySubdomain[subdomain]
	if !ok {
		return tenant.Tenant{}, service.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]tenant.Tenant, 0, len(r.byID))
	for _, t := range r.byID {
		if opts.IsActive != nil && t.IsActive != *opts.IsActive {
			continue
		}
		items = append(items, t)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}

	paged := items[start:end]
	totalPages := (len(items) + pageSize - 1) / pageSize

	return service.ListResult{
		Tenants:    paged,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: len(items),
		TotalPages: totalPages,
	}, nil
}

func (r *MemoryRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) (tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return tenant.Tenant{}, service.ErrNotFound
	}

	t.IsActive = active
	t.UpdatedAt = time.Now().UTC()
	r.byID[id] = t
	return t, nil
}

func (r *MemoryRepository) UpdateSettings(ctx context.Context, id uuid.UUID, settings map[string]string) (tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return tenant.Tenant{}, service.ErrNotFound
	}

	t.Settings = settings
	t.UpdatedAt = time.Now().UTC()
	r.byID[id] = t
	return t, nil
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
