package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medistack/platform-core/domains/users/be/service"
)

// MemoryStore is a simple in-memory implementation suitable for tests and
// early development.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]service.Record
	byEmail map[string]uuid.UUID
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[uuid.UUID]service.Record),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) Create(ctx context.Context, rec service.Record) (service.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[rec.Email]; exists {
		return service.Record{}, service.ErrEmailTaken
	}

	s.byID[rec.ID] = rec
	s.byEmail[rec.Email] = rec.ID
	return rec, nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (service.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return service.Record{}, service.ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (service.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return service.Record{}, service.ErrNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryStore) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]service.User, 0, len(s.byID))
	for _, rec := range s.byID {
		if opts.Email != nil && !strings.Contains(rec.Email, strings.ToLower(*opts.Email)) {
			continue
		}
		items = append(items, rec.User)
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
		Users:      paged,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: len(items),
		TotalPages: totalPages,
	}, nil
}

func (s *MemoryStore) Update(ctx context.Context, id uuid.UUID, input service.UpdateInput) (service.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return service.Record{}, service.ErrNotFound
	}

	if input.FullName != nil {
		rec.FullName = strings.TrimSpace(*input.FullName)
	}
	if input.UserType != nil {
		rec.UserType = *input.UserType
	}
	rec.UpdatedAt = time.Now().UTC()
	s.byID[id] = rec
	return rec, nil
}

func (s *MemoryStore) SetActive(ctx context.Context, id uuid.UUID, active bool) (service.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return service.Record{}, service.ErrNotFound
	}

	rec.IsActive = active
	rec.UpdatedAt = time.Now().UTC()
	s.byID[id] = rec
	return rec, nil
}

// Ensure interface compliance.
var _ service.Store = (*MemoryStore)(nil)
