// Package session issues, resolves and ends authenticated sessions, and
// notifies subscribers when a session ends.
package session

import (
	"context"
	"errors"
	"time"

	"vigila/globals"
)

// Role classifies what a session may see.
type Role string

const (
	RoleConsumer Role = "consumer"
	RoleVigil    Role = "vigil"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleConsumer, RoleVigil, RoleAdmin:
		return true
	}
	return false
}

var (
	ErrNoSession    = errors.New("no active session")
	ErrInvalidToken = errors.New("invalid token")
)

// Session is the authenticated caller.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, globals.SessionKey, s)
}

// FromContext returns the session stored in ctx, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(globals.SessionKey).(*Session)
	return s
}

// WithToken stores a raw bearer token in ctx for lazy resolution.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, globals.TokenKey, token)
}

// TokenFromContext returns the raw bearer token stored in ctx.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(globals.TokenKey).(string)
	return t
}
