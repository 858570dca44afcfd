// Package session owns signed-in user state on the proxy: the token pair issued
// by the identity provider, where it is stored, and the cookie that points to it.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by a Store when no session has the requested id.
var ErrNotFound = errors.New("session: not found")

// Tokens is the token pair granted by the identity provider.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	// Expiry is when AccessToken stops being accepted. Zero means unknown.
	Expiry time.Time
}

// Valid reports whether the access token is usable at now, leaving skew for the upstream call.
func (t Tokens) Valid(now time.Time, skew time.Duration) bool {
	if t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return now.Add(skew).Before(t.Expiry)
}

// Session is one signed-in browser or CLI.
type Session struct {
	ID     string
	Tokens Tokens
	// ExpiresAt bounds the session itself; after it the user has to sign in again.
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the session lifetime is over.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// New builds a session with a fresh random id.
func New(tokens Tokens, now time.Time, ttl time.Duration) Session {
	return Session{
		ID:        NewID(),
		Tokens:    tokens,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewID returns a random session id.
func NewID() string { return uuid.NewString() }

// Store persists sessions.
type Store interface {
	Get(ctx context.Context, id string) (Session, error)
	// Save inserts or replaces the session with the same id.
	Save(ctx context.Context, s Session) error
	// Delete removes the session; deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes sessions whose ExpiresAt is not after now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Ping(ctx context.Context) error
}

type idKey struct{}

// WithID stores the current request's session id in ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey{}, id)
}

// IDFromContext returns the session id put there by WithID.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(idKey{}).(string)
	return id, ok && id != ""
}
