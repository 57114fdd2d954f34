package permissions

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/opsboard/opsboard/internal/platform/httpx"
	"github.com/opsboard/opsboard/internal/shared"
)

// Handler exposes the capability query and administrative endpoints.
type Handler struct {
	logger    *slog.Logger
	manager   *Manager
	mw        Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, manager *Manager, mw Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, manager: manager, mw: mw, validator: validator.New()}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/catalog", h.catalog)
	r.Get("/me", h.me)
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAdmin())
		r.Get("/users", h.listUsers)
		r.Post("/refresh", h.refresh)
		r.Put("/users/{userID}", h.setAll)
		r.Put("/users/{userID}/{permission}", h.setPermission)
		r.Post("/users/{userID}/template", h.applyTemplate)
	})
}

type catalogEntry struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

type catalogResponse struct {
	Permissions []catalogEntry      `json:"permissions"`
	Templates   map[string][]string `json:"templates"`
}

type meResponse struct {
	Profile     *Profile `json:"profile"`
	Permissions Set      `json:"permissions"`
	CanManage   bool     `json:"can_manage"`
}

type usersResponse struct {
	Users       []UserPermissions `json:"users"`
	RefreshedAt time.Time         `json:"refreshed_at"`
}

type setPermissionRequest struct {
	Granted *bool `json:"granted" validate:"required"`
}

type setAllRequest struct {
	Permissions *Set `json:"permissions" validate:"required"`
}

type applyTemplateRequest struct {
	Role string `json:"role" validate:"required,oneof=admin technician attendant"`
}

type userPermissionsResponse struct {
	UserID      uuid.UUID `json:"user_id"`
	Permissions Set       `json:"permissions"`
}

func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) {
	resp := catalogResponse{Templates: make(map[string][]string, len(Roles()))}
	for _, t := range All() {
		resp.Permissions = append(resp.Permissions, catalogEntry{Name: t.String(), Label: t.Label()})
	}
	for _, role := range Roles() {
		resp.Templates[role.String()] = typeNames(TemplateFor(role))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	resp := meResponse{
		Permissions: h.manager.PermissionsFor(userID).Set(),
		CanManage:   h.manager.CanManage(userID),
	}
	if profile, ok := h.manager.Directory().Profile(userID); ok {
		resp.Profile = &profile
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.PrincipalFromContext(r.Context())
	if r.URL.Query().Get("refresh") == "true" {
		if err := h.manager.Refresh(r.Context()); err != nil {
			h.respondError(w, err)
			return
		}
	}
	users, err := h.manager.ListUsersWithPermissions(r.Context(), actorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, usersResponse{Users: users, RefreshedAt: h.manager.Directory().RefreshedAt()})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Refresh(r.Context()); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setPermission(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.PrincipalFromContext(r.Context())
	targetID, err := userIDParam(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	permission, err := ParseType(chi.URLParam(r, "permission"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req setPermissionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	set, err := h.manager.SetPermission(r.Context(), actorID, targetID, permission, *req.Granted)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, userPermissionsResponse{UserID: targetID, Permissions: set})
}

func (h *Handler) setAll(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.PrincipalFromContext(r.Context())
	targetID, err := userIDParam(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req setAllRequest
	if err := h.decode(w, r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	set, err := h.manager.SetAllPermissions(r.Context(), actorID, targetID, *req.Permissions)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, userPermissionsResponse{UserID: targetID, Permissions: set})
}

func (h *Handler) applyTemplate(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.PrincipalFromContext(r.Context())
	targetID, err := userIDParam(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req applyTemplateRequest
	if err := h.decode(w, r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		h.respondError(w, err)
		return
	}
	set, err := h.manager.ApplyTemplate(r.Context(), actorID, targetID, role)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, userPermissionsResponse{UserID: targetID, Permissions: set})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) error {
	if err := httpx.DecodeJSON(w, r, target); err != nil {
		return err
	}
	if err := h.validator.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

func userIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid user id", httpx.ErrValidation)
	}
	return id, nil
}

// respondError maps permission errors onto the transport sentinels.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var mapped error
	switch {
	case errors.Is(err, ErrForbidden):
		mapped = httpx.ErrForbidden
	case errors.Is(err, ErrUnknownUser):
		mapped = httpx.ErrNotFound
	case errors.Is(err, ErrUnknownPermission), errors.Is(err, ErrUnknownRole), errors.Is(err, httpx.ErrValidation):
		mapped = httpx.ErrValidation
	case errors.Is(err, ErrStoreUnavailable):
		mapped = httpx.ErrUnavailable
	case errors.Is(err, ErrWriteFailed):
		mapped = httpx.ErrUpstream
	default:
		h.logger.Error("permissions handler", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondError(w, fmt.Errorf("%w: %s", mapped, publicMessage(err)))
}

// publicMessage hides store internals behind the category message.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return ErrStoreUnavailable.Error()
	case errors.Is(err, ErrWriteFailed) && errors.Is(err, ErrUnknownUser):
		return ErrUnknownUser.Error()
	case errors.Is(err, ErrWriteFailed):
		return ErrWriteFailed.Error()
	default:
		return err.Error()
	}
}
