// Package token hands out bearer tokens for upstream calls.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"contact-manager/internal/session"
	"contact-manager/internal/shared"
)

// Token is an opaque bearer credential.
type Token string

// Acquirer obtains a bearer token for the caller identified by ctx.
type Acquirer interface {
	Acquire(ctx context.Context) (Token, error)
}

// AcquirerFunc adapts a function to Acquirer.
type AcquirerFunc func(ctx context.Context) (Token, error)

func (f AcquirerFunc) Acquire(ctx context.Context) (Token, error) { return f(ctx) }

// Refresher runs the refresh_token grant against the identity provider.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (session.Tokens, error)
}

// SessionAcquirer resolves the session named in ctx and returns its access token,
// refreshing it through the identity provider when it is about to expire.
type SessionAcquirer struct {
	store     session.Store
	refresher Refresher
	log       *slog.Logger
	skew      time.Duration
	now       func() time.Time
	onRefresh func(outcome string)
	group     singleflight.Group
}

// Option configures a SessionAcquirer.
type Option func(*SessionAcquirer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *SessionAcquirer) {
		if l != nil {
			a.log = l
		}
	}
}

// WithSkew sets how long before expiry a token is treated as expired.
func WithSkew(d time.Duration) Option {
	return func(a *SessionAcquirer) { a.skew = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *SessionAcquirer) { a.now = now }
}

// WithRefreshHook is called after every refresh attempt with "ok" or "error".
func WithRefreshHook(f func(outcome string)) Option {
	return func(a *SessionAcquirer) { a.onRefresh = f }
}

// NewSessionAcquirer builds an acquirer over store. refresher may be nil, in which
// case expired tokens fail with an auth error.
func NewSessionAcquirer(store session.Store, refresher Refresher, opts ...Option) *SessionAcquirer {
	a := &SessionAcquirer{
		store:     store,
		refresher: refresher,
		log:       slog.Default(),
		skew:      30 * time.Second,
		now:       time.Now,
		onRefresh: func(string) {},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Acquire returns a non-empty token or an auth error. It never caches between calls.
func (a *SessionAcquirer) Acquire(ctx context.Context) (Token, error) {
	id, ok := session.IDFromContext(ctx)
	if !ok {
		return "", shared.Auth("not signed in", nil)
	}
	s, err := a.store.Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return "", shared.Auth("session not found", err)
	}
	if err != nil {
		return "", shared.Auth("session lookup failed", err)
	}
	now := a.now()
	if s.Expired(now) {
		return "", shared.Auth("session expired", nil)
	}
	if s.Tokens.Valid(now, a.skew) {
		return Token(s.Tokens.AccessToken), nil
	}

	// Parallel requests of one session share a single refresh so the rotated
	// refresh token is not spent twice.
	v, err, _ := a.group.Do(id, func() (interface{}, error) {
		return a.refresh(ctx, s)
	})
	if err != nil {
		return "", err
	}
	return v.(Token), nil
}

func (a *SessionAcquirer) refresh(ctx context.Context, s session.Session) (Token, error) {
	if a.refresher == nil || s.Tokens.RefreshToken == "" {
		return "", shared.Auth("access token expired", nil)
	}
	tokens, err := a.refresher.Refresh(ctx, s.Tokens.RefreshToken)
	if err != nil {
		a.onRefresh("error")
		a.log.Warn("token refresh failed", "session_id", s.ID, "error", err)
		if shared.IsAuth(err) {
			return "", err
		}
		return "", shared.Auth("token refresh failed", err)
	}
	a.onRefresh("ok")
	if tokens.AccessToken == "" {
		return "", shared.Auth("identity provider returned an empty token", nil)
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = s.Tokens.RefreshToken
	}
	s.Tokens = tokens
	s.UpdatedAt = a.now()
	if err := a.store.Save(ctx, s); err != nil {
		return "", shared.Auth("persist refreshed token", fmt.Errorf("save session %s: %w", s.ID, err))
	}
	a.log.Debug("access token refreshed", "session_id", s.ID)
	return Token(tokens.AccessToken), nil
}
