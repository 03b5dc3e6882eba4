package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/noah-isme/taskmanager/internal/platform/httpx"
	"github.com/noah-isme/taskmanager/internal/shared"
	"github.com/noah-isme/taskmanager/internal/users"
)

// Failure reasons reported to the FailureObserver.
const (
	ReasonMissingHeader   = "missing_header"
	ReasonMalformedHeader = "malformed_header"
	ReasonInvalidToken    = "invalid_token"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	User  *users.User
	Token string
}

// Verifier resolves a bearer token to its user.
type Verifier interface {
	Verify(ctx context.Context, token string) (*users.User, error)
}

// FailureObserver is notified of each rejected authentication.
type FailureObserver interface {
	ObserveAuthFailure(reason string)
}

// Gate authenticates requests carrying a bearer token.
type Gate struct {
	verifier Verifier
	logger   *slog.Logger
	observer FailureObserver
}

// NewGate constructs a Gate. observer may be nil.
func NewGate(verifier Verifier, logger *slog.Logger, observer FailureObserver) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{verifier: verifier, logger: logger, observer: observer}
}

// Authenticate extracts and verifies the bearer token of r. Every token
// problem yields shared.ErrUnauthenticated; store failures are returned as is.
func (g *Gate) Authenticate(r *http.Request) (Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Principal{}, g.reject(r, ReasonMissingHeader, nil)
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return Principal{}, g.reject(r, ReasonMalformedHeader, nil)
	}

	user, err := g.verifier.Verify(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return Principal{}, g.reject(r, ReasonInvalidToken, err)
		}
		return Principal{}, fmt.Errorf("auth: verify: %w", err)
	}
	return Principal{User: user, Token: token}, nil
}

// Middleware stores the principal in the request context or answers 401.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := g.Authenticate(r)
		if err != nil {
			httpx.RespondError(w, g.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

func (g *Gate) reject(r *http.Request, reason string, cause error) error {
	if g.observer != nil {
		g.observer.ObserveAuthFailure(reason)
	}
	attrs := []any{slog.String("reason", reason), slog.String("path", r.URL.Path)}
	if cause != nil {
		attrs = append(attrs, slog.Any("error", cause))
	}
	g.logger.Debug("authentication rejected", attrs...)
	return shared.ErrUnauthenticated
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal placed by Middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok && p.User != nil
}
