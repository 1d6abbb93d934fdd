package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medistack/platform-core/domains/access/be/service"
	"github.com/medistack/platform-core/platform/go/apperror"
	"github.com/medistack/platform-core/platform/go/tenant"
)

// Handler wires the access service to the HTTP surface.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
	writer *apperror.Writer
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger, writer *apperror.Writer) *Handler {
	if svc == nil || logger == nil || writer == nil {
		panic("access handler requires service, logger and writer")
	}
	return &Handler{svc: svc, logger: logger, writer: writer}
}

// Routes mounts the role definition and grant endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/roles", h.defineRole)
	r.Post("/assignments", h.assign)
	r.Delete("/assignments", h.revoke)
	r.Get("/users/{id}/roles", h.rolesForUser)
	r.Get("/users/{id}/permissions", h.permissionsForUser)
}

type defineRoleRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) defineRole(w http.ResponseWriter, r *http.Request) {
	var req defineRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writer.Write(w, apperror.Wrap(apperror.KindValidation, "invalid request body", err))
		return
	}
	if req.Name == "" {
		h.writer.Write(w, apperror.New(apperror.KindValidation, "role name is required"))
		return
	}

	role, err := h.svc.DefineRole(r.Context(), req.Name, req.Permissions)
	if err != nil {
		h.writer.Write(w, h.mapError(err))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          role.ID,
		"name":        role.Name,
		"permissions": role.Permissions,
	})
}

type assignmentRequest struct {
	UserID   uuid.UUID `json:"userId"`
	RoleName string    `json:"roleName"`
}

// assignmentScope resolves the grant scope: a tenant-scoped request grants
// within that tenant, a master-scoped request grants at master scope.
func assignmentScope(r *http.Request) *uuid.UUID {
	if scope, ok := tenant.FromContext(r.Context()); ok {
		id := scope.Tenant.ID
		return &id
	}
	return nil
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var req assignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writer.Write(w, apperror.Wrap(apperror.KindValidation, "invalid request body", err))
		return
	}

	err := h.svc.Assign(r.Context(), service.Assignment{
		UserID:   req.UserID,
		RoleName: req.RoleName,
		TenantID: assignmentScope(r),
	})
	if err != nil {
		h.writer.Write(w, h.mapError(err))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "assigned"})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	var req assignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writer.Write(w, apperror.Wrap(apperror.KindValidation, "invalid request body", err))
		return
	}

	err := h.svc.Revoke(r.Context(), service.Assignment{
		UserID:   req.UserID,
		RoleName: req.RoleName,
		TenantID: assignmentScope(r),
	})
	if err != nil {
		h.writer.Write(w, h.mapError(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handler) rolesForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(r)
	if err != nil {
		h.writer.Write(w, err)
		return
	}

	roles, svcErr := h.svc.RolesForUser(r.Context(), userID, assignmentScope(r))
	if svcErr != nil {
		h.writer.Write(w, h.mapError(svcErr))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) permissionsForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(r)
	if err != nil {
		h.writer.Write(w, err)
		return
	}

	permissions, svcErr := h.svc.PermissionsForUser(r.Context(), userID, assignmentScope(r))
	if svcErr != nil {
		h.writer.Write(w, h.mapError(svcErr))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"permissions": permissions})
}

func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, service.ErrRoleNotFound):
		return apperror.New(apperror.KindNotFound, "role not found")
	case errors.Is(err, service.ErrAlreadyGranted):
		return apperror.New(apperror.KindConflict, "role already assigned")
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

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
