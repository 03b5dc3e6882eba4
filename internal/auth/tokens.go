package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/taskmanager/internal/shared"
	"github.com/noah-isme/taskmanager/internal/users"
)

// DefaultTokenTTL bounds how long an issued token verifies.
const DefaultTokenTTL = 7 * 24 * time.Hour

// ErrInvalidToken is wrapped by every Verify failure.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenStore persists each user's set of active tokens.
type TokenStore interface {
	AppendToken(ctx context.Context, userID, token string) error
	RemoveToken(ctx context.Context, userID, token string) error
	ClearTokens(ctx context.Context, userID string) error
	FindByToken(ctx context.Context, userID, token string) (*users.User, error)
}

// IssuerConfig configures token signing.
type IssuerConfig struct {
	Secret []byte
	TTL    time.Duration
	// Now overrides the clock; tests use it to step past expiry.
	Now func() time.Time
}

// Issuer signs bearer tokens and tracks them in the user's active set.
type Issuer struct {
	store  TokenStore
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer constructs an Issuer.
func NewIssuer(store TokenStore, cfg IssuerConfig) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Issuer{store: store, secret: cfg.Secret, ttl: ttl, now: now}, nil
}

// Issue signs a token for userID and adds it to the active set.
func (i *Issuer) Issue(ctx context.Context, userID string) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		ID:        uuid.NewString(),
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	if err := i.store.AppendToken(ctx, userID, signed); err != nil {
		return "", fmt.Errorf("auth: store token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of token and returns its user while
// the token is still in that user's active set.
func (i *Issuer) Verify(ctx context.Context, token string) (*users.User, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	user, err := i.store.FindByToken(ctx, claims.Subject, token)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: revoked or unknown user", ErrInvalidToken)
		}
		return nil, fmt.Errorf("auth: load token owner: %w", err)
	}
	return user, nil
}

// RevokeOne removes token from the user's active set.
func (i *Issuer) RevokeOne(ctx context.Context, userID, token string) error {
	if err := i.store.RemoveToken(ctx, userID, token); err != nil {
		return fmt.Errorf("auth: revoke token: %w", err)
	}
	return nil
}

// RevokeAll empties the user's active set.
func (i *Issuer) RevokeAll(ctx context.Context, userID string) error {
	if err := i.store.ClearTokens(ctx, userID); err != nil {
		return fmt.Errorf("auth: revoke all tokens: %w", err)
	}
	return nil
}
