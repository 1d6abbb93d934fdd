package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medistack/platform-core/domains/users/be/service"
	"github.com/medistack/platform-core/platform/go/apperror"
)

// Handler wires the users service to the HTTP surface.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
	writer *apperror.Writer
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger, writer *apperror.Writer) *Handler {
	if svc == nil || logger == nil || writer == nil {
		panic("users handler requires service, logger and writer")
	}
	return &Handler{svc: svc, logger: logger, writer: writer}
}

// LoginRoutes mounts the unauthenticated login endpoint.
func (h *Handler) LoginRoutes(r chi.Router) {
	r.Post("/login", h.login)
}

// Routes mounts the authenticated user management endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Post("/{id}/deactivate", h.deactivate)
	r.Post("/{id}/restore", h.restore)
}

// CreateRoutes mounts user creation separately so the plan gate middleware can
// wrap only this endpoint.
func (h *Handler) CreateRoutes(r chi.Router) {
	r.Post("/", h.create)
}

type userResponse struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	UserType      string    `json:"userType"`
	IsMasterAdmin bool      `json:"isMasterAdmin"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func toResponse(u service.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Email:         u.Email,
		FullName:      u.FullName,
		UserType:      u.UserType,
		IsMasterAdmin: u.IsMasterAdmin,
		IsActive:      u.IsActive,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writer.Write(w, apperror.Wrap(apperror.KindValidation, "invalid request body", err))
		return
	}

	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writer.Write(w, h.mapError(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":     result.Token,
		"expiresAt": result.ExpiresAt,
		"user":      toResponse(result.User),
	})
}

type createRequest struct {
	Email         string `json:"email"`
	FullName      string `json:"fullName"`
	UserType      string `json:"userType"`
	Password      string `json:"password"`
	IsMasterAdmin bool   `json:"isMasterAdmin"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writer.Write(w, apperror.Wrap(apperror.KindValidation, "invalid request body", err))
		return
	}

	created, err := h.svc.Create(r.Context(), service.CreateInput{
		Email:         req.Email,
		FullName:      req.FullName,
		UserType:      req.UserType,
		Password:      req.Password,
		IsMasterAdmin: req.IsMasterAdmin,
	})
	if err != nil {
		h.writer.Write(w, h.mapError(err))
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	opts := service.ListOptions{}
	if page := r.URL.Query().Get("page"); page != "" {
		opts.Page = atoiOr(page, 1)
	}
	if size := r.URL.Query().Get("pageSize"); size != "" {
		opts.PageSize = atoiOr(size, 20)
	}
	if email := r.URL.Query().Get("email"); email != "" {
		opts.Email = &email
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.writer.Write(w, h.mapError(err))
		return
	}

	items := make([]userResponse, 0, len(result.Users))
	for _, u := range result.Users {
		items = append(items, toResponse(u))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"page":       result.Page,
		"pageSize":   result.PageSize,
		"totalItems": result.TotalItems,
		"totalPages": result.TotalPages,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writer.Write(w, err)
		return
	}

	u, svcErr := h.svc.Get(r.Context(), id)
	if svcErr != nil {
		h.writer.Write(w, h.mapError(svcErr))
		return
	}

	writeJSON(w, http.StatusOK, toResponse(u))
}

type updateRequest struct {
	FullName *string `json:"fullName"`
	UserType *string `json:"userType"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writer.Write(w, err)
		return
	}

	var req updateRequest
	if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
		h.writer.Write(w, apperror.Wrap(apperror.KindValidation, "invalid request body", decodeErr))
		return
	}

	u, svcErr := h.svc.Update(r.Context(), id, service.UpdateInput{
		FullName: req.FullName,
		UserType: req.UserType,
	})
	if svcErr != nil {
		h.writer.Write(w, h.mapError(svcErr))
		return
	}

	writeJSON(w, http.StatusOK, toResponse(u))
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := parseID(r)
	if err != nil {
		h.writer.Write(w, err)
		return
	}

	var (
		u      service.User
		svcErr error
	)
	if active {
		u, svcErr = h.svc.Restore(r.Context(), id)
	} else {
		u, svcErr = h.svc.Deactivate(r.Context(), id)
	}
	if svcErr != nil {
		h.writer.Write(w, h.mapError(svcErr))
		return
	}

	writeJSON(w, http.StatusOK, toResponse(u))
}

func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return apperror.New(apperror.KindNotFound, "user not found")
	case errors.Is(err, service.ErrEmailTaken):
		return apperror.New(apperror.KindConflict, "email already registered")
	case errors.Is(err, service.ErrInvalidCredentials):
		return apperror.New(apperror.KindAuth, "invalid credentials")
	case errors.Is(err, service.ErrAccountDisabled):
		return apperror.New(apperror.KindAuth, "account is disabled")
	case errors.Is(err, service.ErrInvalidInput):
		return apperror.New(apperror.KindValidation, "invalid user input")
	default:
		return err
	}
}

func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperror.New(apperror.KindValidation, "invalid user id")
	}
	return id, nil
}

func atoiOr(s string, fallback int) int {
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	if n == 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
