package usershttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/noah-isme/taskmanager/internal/auth"
	"github.com/noah-isme/taskmanager/internal/platform/httpx"
	"github.com/noah-isme/taskmanager/internal/shared"
	"github.com/noah-isme/taskmanager/internal/users"
)

// Accounts is the credential store used by the handlers.
type Accounts interface {
	Register(ctx context.Context, input users.RegisterInput) (*users.User, error)
	FindByCredentials(ctx context.Context, email, password string) (*users.User, error)
	UpdateProfile(ctx context.Context, user *users.User, patch map[string]json.RawMessage) (*users.User, error)
	DeleteAccount(ctx context.Context, user *users.User) error
}

// Tokens issues and revokes session tokens.
type Tokens interface {
	Issue(ctx context.Context, userID string) (string, error)
	RevokeOne(ctx context.Context, userID, token string) error
	RevokeAll(ctx context.Context, userID string) error
}

// Handler serves the /users routes.
type Handler struct {
	logger     *slog.Logger
	accounts   Accounts
	tokens     Tokens
	gate       func(http.Handler) http.Handler
	loginLimit int
}

// NewHandler constructs a Handler. gate guards every route that needs a
// principal; loginLimit caps login attempts per client IP per minute.
func NewHandler(logger *slog.Logger, accounts Accounts, tokens Tokens, gate func(http.Handler) http.Handler, loginLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, accounts: accounts, tokens: tokens, gate: gate, loginLimit: loginLimit}
}

// MountRoutes registers the account endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleRegister)

	r.Group(func(gr chi.Router) {
		if h.loginLimit > 0 {
			gr.Use(httprate.Limit(h.loginLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "too many login attempts")
				}),
			))
		}
		gr.Post("/login", h.handleLogin)
	})

	r.Group(func(gr chi.Router) {
		gr.Use(h.gate)
		gr.Get("/me", h.handleMe)
		gr.Patch("/me", h.handleUpdateMe)
		gr.Delete("/me", h.handleDeleteMe)
		gr.Post("/logout", h.handleLogout)
		gr.Post("/logout-all", h.handleLogoutAll)
	})
}

type sessionResponse struct {
	User  users.PublicProfile `json:"user"`
	Token string              `json:"token"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var input users.RegisterInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	user, err := h.accounts.Register(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	token, err := h.tokens.Issue(r.Context(), user.ID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sessionResponse{User: user.Public(), Token: token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var input loginRequest
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	user, err := h.accounts.FindByCredentials(r.Context(), input.Email, input.Password)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	token, err := h.tokens.Issue(r.Context(), user.ID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{User: user.Public(), Token: token})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, principal.User.Public())
}

func (h *Handler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var patch map[string]json.RawMessage
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	user, err := h.accounts.UpdateProfile(r.Context(), principal.User, patch)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user.Public())
}

func (h *Handler) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := h.accounts.DeleteAccount(r.Context(), principal.User); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, principal.User.Public())
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := h.tokens.RevokeOne(r.Context(), principal.User.ID, principal.Token); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := h.tokens.RevokeAll(r.Context(), principal.User.ID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, h.logger, shared.ErrUnauthenticated)
	}
	return principal, ok
}
