package users

import (
	"slices"
	"time"
)

// User represents a registered account and its active sessions.
type User struct {
	ID           string
	Name         string
	Age          int
	Email        string
	PasswordHash string
	// Tokens holds active session tokens in issuance order.
	Tokens    []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicProfile is the only representation of a user sent to clients.
type PublicProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Public projects the user without its password hash and tokens.
func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:        u.ID,
		Name:      u.Name,
		Age:       u.Age,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// HasToken reports whether token is in the active set.
func (u *User) HasToken(token string) bool {
	return slices.Contains(u.Tokens, token)
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Name     string `json:"name"`
	Age      *int   `json:"age"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
