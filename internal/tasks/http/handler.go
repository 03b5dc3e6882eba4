package taskshttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/taskmanager/internal/auth"
	"github.com/noah-isme/taskmanager/internal/platform/httpx"
	"github.com/noah-isme/taskmanager/internal/shared"
	"github.com/noah-isme/taskmanager/internal/tasks"
)

// Service is the owner-scoped task API used by the handlers.
type Service interface {
	Create(ctx context.Context, ownerID string, input tasks.CreateInput) (*tasks.Task, error)
	Get(ctx context.Context, ownerID, id string) (*tasks.Task, error)
	List(ctx context.Context, ownerID string, q tasks.ListQuery) ([]tasks.Task, error)
	Update(ctx context.Context, ownerID, id string, patch map[string]json.RawMessage) (*tasks.Task, error)
	Delete(ctx context.Context, ownerID, id string) (*tasks.Task, error)
}

// Handler serves the /tasks routes.
type Handler struct {
	logger  *slog.Logger
	service Service
	gate    func(http.Handler) http.Handler
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service Service, gate func(http.Handler) http.Handler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, gate: gate}
}

// MountRoutes registers the task endpoints, all behind the auth gate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.gate)
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var input tasks.CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	task, err := h.service.Create(r.Context(), owner, input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, task)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	list, err := h.service.List(r.Context(), owner, tasks.ParseListQuery(r.URL.Query()))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	task, err := h.service.Get(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	var patch map[string]json.RawMessage
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	task, err := h.service.Update(r.Context(), owner, chi.URLParam(r, "id"), patch)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}
	task, err := h.service.Delete(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, task)
}

func (h *Handler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, h.logger, shared.ErrUnauthenticated)
		return "", false
	}
	return principal.User.ID, true
}
