package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medistack/platform-core/domains/tenants/be/service"
	"github.com/medistack/platform-core/platform/go/apperror"
	"github.com/medistack/platform-core/platform/go/tenant"
)

// Handler wires the tenants service to the HTTP surface.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
	writer *apperror.Writer
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger, writer *apperror.Writer) *Handler {
	if svc == nil || logger == nil || writer == nil {
		panic("tenants handler requires service, logger and writer")
	}
	return &Handler{svc: svc, logger: logger, writer: writer}
}

// Routes mounts the tenant registry endpoints. Middleware passed here wraps
// only the routes carrying an `id` parameter and runs after the parameter is
// bound, so guards reading chi.URLParam see the real value.
func (h *Handler) Routes(r chi.Router, idMiddleware ...func(http.Handler) http.Handler) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Route("/{id}", func(r chi.Router) {
		r.Use(idMiddleware...)
		r.Get("/", h.get)
		r.Post("/suspend", h.suspend)
		r.Post("/restore", h.restore)
		r.Put("/settings", h.updateSettings)
	})
}

type tenantResponse struct {
	ID        uuid.UUID         `json:"id"`
	Subdomain string            `json:"subdomain"`
	Name      string            `json:"name"`
	Plan      string            `json:"plan"`
	IsActive  bool              `json:"isActive"`
	Settings  map[string]string `json:"settings"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func toResponse(t tenant.Tenant) tenantResponse {
	return tenantResponse{
		ID:        t.ID,
		Subdomain: t.Subdomain,
		Name:      t.Name,
		Plan:      string(t.Plan),
		IsActive:  t.IsActive,
		Settings:  t.Settings,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

type createRequest struct {
	Subdomain string            `json:"subdomain"`
	Name      string            `json:"name"`
	Plan      string            `json:"plan"`
	Settings  map[string]string `json:"settings"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writer.Write(w, apperror.Wrap(apperror.KindValidation, "invalid request body", err))
		return
	}

	created, err := h.svc.Create(r.Context(), service.CreateInput{
		Subdomain: req.Subdomain,
		Name:      req.Name,
		Plan:      tenant.Plan(req.Plan),
		Settings:  req.Settings,
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
	if active := r.URL.Query().Get("isActive"); active != "" {
		val := active == "true"
		opts.IsActive = &val
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.writer.Write(w, h.mapError(err))
		return
	}

	items := make([]tenantResponse, 0, len(result.Tenants))
	for _, t := range result.Tenants {
		items = append(items, toResponse(t))
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

	t, svcErr := h.svc.Get(r.Context(), id)
	if svcErr != nil {
		h.writer.Write(w, h.mapError(svcErr))
		return
	}

	writeJSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
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
		t      tenant.Tenant
		svcErr error
	)
	if active {
		t, svcErr = h.svc.Restore(r.Context(), id)
	} else {
		t, svcErr = h.svc.Suspend(r.Context(), id)
	}
	if svcErr != nil {
		h.writer.Write(w, h.mapError(svcErr))
		return
	}

	writeJSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writer.Write(w, err)
		return
	}

	var settings map[string]string
	if decodeErr := json.NewDecoder(r.Body).Decode(&settings); decodeErr != nil {
		h.writer.Write(w, apperror.Wrap(apperror.KindValidation, "invalid request body", decodeErr))
		return
	}

	t, svcErr := h.svc.UpdateSettings(r.Context(), id, settings)
	if svcErr != nil {
		h.writer.Write(w, h.mapError(svcErr))
		return
	}

	writeJSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return apperror.New(apperror.KindTenantNotFound, "tenant not found")
	case errors.Is(err, service.ErrConflictSubdomain):
		return apperror.New(apperror.KindConflict, "subdomain already exists")
	case errors.Is(err, service.ErrInvalidSubdomain):
		return apperror.New(apperror.KindValidation, "invalid subdomain")
	default:
		return err
	}
}

func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, apperror.New(apperror.KindValidation, "invalid tenant id")
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
