package token

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-manager/internal/session"
	"contact-manager/internal/shared"
)

type fakeRefresher struct {
	calls  int32
	tokens session.Tokens
	err    error
	delay  time.Duration
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (session.Tokens, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.tokens, f.err
}

var now = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newAcquirer(store session.Store, r Refresher, outcomes *[]string) *SessionAcquirer {
	opts := []Option{
		WithClock(func() time.Time { return now }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	if outcomes != nil {
		opts = append(opts, WithRefreshHook(func(o string) { *outcomes = append(*outcomes, o) }))
	}
	return NewSessionAcquirer(store, r, opts...)
}

func saveSession(t *testing.T, store session.Store, tokens session.Tokens) session.Session {
	t.Helper()
	s := session.New(tokens, now, time.Hour)
	require.NoError(t, store.Save(context.Background(), s))
	return s
}

func TestAcquire_NoSessionInContext(t *testing.T) {
	a := newAcquirer(session.NewMemoryStore(), nil, nil)
	tok, err := a.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, shared.IsAuth(err))
	assert.Empty(t, tok)
}

func TestAcquire_UnknownSession(t *testing.T) {
	a := newAcquirer(session.NewMemoryStore(), nil, nil)
	_, err := a.Acquire(session.WithID(context.Background(), "nope"))
	assert.True(t, shared.IsAuth(err))
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestAcquire_ValidToken(t *testing.T) {
	store := session.NewMemoryStore()
	r := &fakeRefresher{}
	s := saveSession(t, store, session.Tokens{AccessToken: "access", Expiry: now.Add(time.Hour)})

	tok, err := newAcquirer(store, r, nil).Acquire(session.WithID(context.Background(), s.ID))
	require.NoError(t, err)
	assert.Equal(t, Token("access"), tok)
	assert.Zero(t, atomic.LoadInt32(&r.calls))
}

func TestAcquire_EmptyTokenWithoutRefresh(t *testing.T) {
	store := session.NewMemoryStore()
	s := saveSession(t, store, session.Tokens{})

	_, err := newAcquirer(store, nil, nil).Acquire(session.WithID(context.Background(), s.ID))
	assert.True(t, shared.IsAuth(err))
}

func TestAcquire_ExpiredSession(t *testing.T) {
	store := session.NewMemoryStore()
	s := session.New(session.Tokens{AccessToken: "a"}, now.Add(-2*time.Hour), time.Hour)
	require.NoError(t, store.Save(context.Background(), s))

	_, err := newAcquirer(store, nil, nil).Acquire(session.WithID(context.Background(), s.ID))
	assert.True(t, shared.IsAuth(err))
}

func TestAcquire_RefreshesAndPersists(t *testing.T) {
	store := session.NewMemoryStore()
	r := &fakeRefresher{tokens: session.Tokens{AccessToken: "fresh", Expiry: now.Add(time.Hour)}}
	s := saveSession(t, store, session.Tokens{AccessToken: "stale", RefreshToken: "r1", Expiry: now.Add(10 * time.Second)})
	var outcomes []string

	tok, err := newAcquirer(store, r, &outcomes).Acquire(session.WithID(context.Background(), s.ID))
	require.NoError(t, err)
	assert.Equal(t, Token("fresh"), tok)
	assert.Equal(t, []string{"ok"}, outcomes)

	got, err := store.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Tokens.AccessToken)
	assert.Equal(t, "r1", got.Tokens.RefreshToken, "refresh token kept when not rotated")
}

func TestAcquire_RefreshRejected(t *testing.T) {
	store := session.NewMemoryStore()
	r := &fakeRefresher{err: errors.New("invalid_grant")}
	s := saveSession(t, store, session.Tokens{RefreshToken: "r1"})
	var outcomes []string

	_, err := newAcquirer(store, r, &outcomes).Acquire(session.WithID(context.Background(), s.ID))
	require.Error(t, err)
	assert.True(t, shared.IsAuth(err))
	assert.Equal(t, []string{"error"}, outcomes)
}

func TestAcquire_RefreshReturnsEmptyToken(t *testing.T) {
	store := session.NewMemoryStore()
	r := &fakeRefresher{tokens: session.Tokens{}}
	s := saveSession(t, store, session.Tokens{RefreshToken: "r1"})

	_, err := newAcquirer(store, r, nil).Acquire(session.WithID(context.Background(), s.ID))
	assert.True(t, shared.IsAuth(err))
}

func TestAcquire_ConcurrentRefreshSharesOneCall(t *testing.T) {
	store := session.NewMemoryStore()
	r := &fakeRefresher{tokens: session.Tokens{AccessToken: "fresh"}, delay: 50 * time.Millisecond}
	s := saveSession(t, store, session.Tokens{RefreshToken: "r1"})
	a := newAcquirer(store, r, nil)
	ctx := session.WithID(context.Background(), s.ID)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := a.Acquire(ctx)
			assert.NoError(t, err)
			assert.Equal(t, Token("fresh"), tok)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&r.calls))
}

func TestAcquirerFunc(t *testing.T) {
	var a Acquirer = AcquirerFunc(func(context.Context) (Token, error) { return "t", nil })
	tok, err := a.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Token("t"), tok)
}
