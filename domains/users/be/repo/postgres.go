package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/medistack/platform-core/domains/users/be/service"
	"github.com/medistack/platform-core/platform/go/persistence"
)

// PostgresStore adapts a persistence.UserStore to the service contract. The
// same adapter serves the master store and each per-tenant store.
type PostgresStore struct {
	store *persistence.UserStore
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(store *persistence.UserStore) *PostgresStore {
	if store == nil {
		panic("user store is required")
	}
	return &PostgresStore{store: store}
}

func (s *PostgresStore) Create(ctx context.Context, rec service.Record) (service.Record, error) {
	row, err := s.store.CreateUser(ctx, persistence.CreateUserParams{
		UserID:        rec.ID,
		Email:         rec.Email,
		FullName:      rec.FullName,
		UserType:      rec.UserType,
		PasswordHash:  rec.PasswordHash,
		IsMasterAdmin: rec.IsMasterAdmin,
	})
	if err != nil {
		return service.Record{}, mapStoreError(err)
	}
	return fromRow(row), nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (service.Record, error) {
	row, err := s.store.GetUser(ctx, id)
	if err != nil {
		return service.Record{}, mapStoreError(err)
	}
	return fromRow(row), nil
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (service.Record, error) {
	row, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return service.Record{}, mapStoreError(err)
	}
	return fromRow(row), nil
}

func (s *PostgresStore) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	result, err := s.store.ListUsers(ctx, persistence.ListUsersParams{
		Page:     opts.Page,
		PageSize: opts.PageSize,
		Email:    opts.Email,
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

	users := make([]service.User, 0, len(result.Users))
	for _, row := range result.Users {
		users = append(users, fromRow(row).User)
	}

	totalPages := (result.TotalItems + pageSize - 1) / pageSize
	return service.ListResult{
		Users:      users,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: result.TotalItems,
		TotalPages: totalPages,
	}, nil
}

func (s *PostgresStore) Update(ctx context.Context, id uuid.UUID, input service.UpdateInput) (service.Record, error) {
	row, err := s.store.UpdateUser(ctx, id, persistence.UpdateUserParams{
		FullName: input.FullName,
		UserType: input.UserType,
	})
	if err != nil {
		return service.Record{}, mapStoreError(err)
	}
	return fromRow(row), nil
}

func (s *PostgresStore) SetActive(ctx context.Context, id uuid.UUID, active bool) (service.Record, error) {
	row, err := s.store.SetUserActive(ctx, id, active)
	if err != nil {
		return service.Record{}, mapStoreError(err)
	}
	return fromRow(row), nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrUserNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrUserConflict):
		return service.ErrEmailTaken
	default:
		return err
	}
}

func fromRow(row persistence.UserRow) service.Record {
	return service.Record{
		User: service.User{
			ID:            row.UserID,
			Email:         row.Email,
			FullName:      row.FullName,
			UserType:      row.UserType,
			IsMasterAdmin: row.IsMasterAdmin,
			IsActive:      row.IsActive,
			CreatedAt:     row.CreatedAt,
			UpdatedAt:     row.UpdatedAt,
		},
		PasswordHash: row.PasswordHash,
	}
}

// Ensure interface compliance.
var _ service.Store = (*PostgresStore)(nil)
