package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/medistack/platform-core/platform/go/auth"
	"github.com/medistack/platform-core/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrInvalidInput       = errors.New("invalid input")
)

// User is the service-level user model. Password material never leaves the
// store boundary except as a hash inside Record.
type User struct {
	ID            uuid.UUID
	Email         string
	FullName      string
	UserType      string
	IsMasterAdmin bool
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Record pairs a user with its stored password hash.
type Record struct {
	User
	PasswordHash string
}

// CreateInput represents the request to create a user.
type CreateInput struct {
	Email         string
	FullName      string
	UserType      string
	Password      string
	IsMasterAdmin bool
}

// UpdateInput carries mutable user fields; nil pointers leave fields unchanged.
type UpdateInput struct {
	FullName *string
	UserType *string
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Page     int
	PageSize int
	Email    *string
}

// ListResult wraps paginated users.
type ListResult struct {
	Users      []User
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Store abstracts one users collection, either the master store's shared one
// or a tenant store's isolated one.
type Store interface {
	Create(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	GetByEmail(ctx context.Context, email string) (Record, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (Record, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (Record, error)
}

// StoreProvider selects the store for the current request. Tenant-scoped
// requests get the tenant's isolated store; everything else gets the master
// store.
type StoreProvider interface {
	Store(ctx context.Context) (Store, error)
}

// PermissionSource resolves the permission names held by a user within the
// given tenant scope (nil tenantID means master scope).
type PermissionSource interface {
	PermissionsForUser(ctx context.Context, userID uuid.UUID, tenantID *uuid.UUID) ([]string, error)
}

// UsageRecorder moves per-tenant resource counters as users come and go.
type UsageRecorder interface {
	RecordUserDelta(ctx context.Context, tenantID uuid.UUID, delta int64)
}

// Service provides user lifecycle and login operations.
type Service struct {
	stores StoreProvider
	tokens *auth.TokenManager
	perms  PermissionSource
	usage  UsageRecorder
}

// New constructs a Service with required dependencies.
func New(stores StoreProvider, tokens *auth.TokenManager, perms PermissionSource, usage UsageRecorder) *Service {
	if stores == nil || tokens == nil || perms == nil || usage == nil {
		panic("users service requires stores, tokens, permissions and usage recorder")
	}
	return &Service{stores: stores, tokens: tokens, perms: perms, usage: usage}
}

// LoginResult carries the signed credential issued for a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

// Login verifies the password against the scope's store and issues a
// credential. Tenant-scope logins embed the caller's permission snapshot
// resolved at this moment; the snapshot is not refreshed until the credential
// expires. Master-scope credentials carry no snapshot.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	store, err := s.stores.Store(ctx)
	if err != nil {
		return LoginResult{}, err
	}

	rec, err := store.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !rec.IsActive {
		return LoginResult{}, ErrAccountDisabled
	}

	params := auth.IssueParams{
		UserID: rec.ID,
		Email:  rec.Email,
	}

	if scope, ok := tenant.FromContext(ctx); ok {
		tenantID := scope.Tenant.ID
		snapshot, err := s.perms.PermissionsForUser(ctx, rec.ID, &tenantID)
		if err != nil {
			return LoginResult{}, err
		}
		params.TenantID = &tenantID
		params.Permissions = snapshot
	}

	token, err := s.tokens.Issue(params)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		Token:     token,
		ExpiresAt: time.Now().Add(s.tokens.TTL()),
		User:      rec.User,
	}, nil
}

// Create registers a new user in the current scope's store. The master-admin
// flag is honored only for master-scope creation; tenant users can never
// carry it.
func (s *Service) Create(ctx context.Context, input CreateInput) (User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, ErrInvalidInput
	}
	if len(input.Password) < 8 {
		return User{}, ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	store, err := s.stores.Store(ctx)
	if err != nil {
		return User{}, err
	}

	scope, tenantScoped := tenant.FromContext(ctx)

	userType := input.UserType
	if userType == "" {
		userType = "staff"
	}

	now := time.Now().UTC()
	rec := Record{
		User: User{
			ID:            uuid.New(),
			Email:         email,
			FullName:      strings.TrimSpace(input.FullName),
			UserType:      userType,
			IsMasterAdmin: input.IsMasterAdmin && !tenantScoped,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		PasswordHash: string(hash),
	}

	created, err := store.Create(ctx, rec)
	if err != nil {
		return User{}, err
	}

	if tenantScoped {
		s.usage.RecordUserDelta(ctx, scope.Tenant.ID, 1)
	}

	return created.User, nil
}

// Get returns a user by id from the current scope's store.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	store, err := s.stores.Store(ctx)
	if err != nil {
		return User{}, err
	}
	rec, err := store.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	return rec.User, nil
}

// List users in the current scope's store.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	store, err := s.stores.Store(ctx)
	if err != nil {
		return ListResult{}, err
	}
	return store.List(ctx, opts)
}

// Update mutates the given user fields.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (User, error) {
	store, err := s.stores.Store(ctx)
	if err != nil {
		return User{}, err
	}
	rec, err := store.Update(ctx, id, input)
	if err != nil {
		return User{}, err
	}
	return rec.User, nil
}

// Deactivate soft-disables a user; tenant-scoped deactivation frees a seat on
// the tenant's plan.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (User, error) {
	return s.setActive(ctx, id, false)
}

// Restore re-enables a previously deactivated user and takes a seat back.
func (s *Service) Restore(ctx context.Context, id uuid.UUID) (User, error) {
	return s.setActive(ctx, id, true)
}

func (s *Service) setActive(ctx context.Context, id uuid.UUID, active bool) (User, error) {
	store, err := s.stores.Store(ctx)
	if err != nil {
		return User{}, err
	}

	current, err := store.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if current.IsActive == active {
		return current.User, nil
	}

	rec, err := store.SetActive(ctx, id, active)
	if err != nil {
		return User{}, err
	}

	if scope, ok := tenant.FromContext(ctx); ok {
		delta := int64(-1)
		if active {
			delta = 1
		}
		s.usage.RecordUserDelta(ctx, scope.Tenant.ID, delta)
	}

	return rec.User, nil
}
