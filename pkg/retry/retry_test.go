package retry

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/url"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instant(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.Rand = rand.New(rand.NewSource(1))
	cfg.After = instant
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, JitterDecorrelated, cfg.JitterStrategy)
}

func TestNormalize(t *testing.T) {
	cases := map[string]Config{
		"zero attempts":   {InitialDelay: time.Millisecond},
		"zero delay":      {MaxAttempts: 1},
		"min above max":   {MaxAttempts: 1, InitialDelay: time.Second, MinDelay: time.Minute, MaxDelay: time.Second},
		"multiplier < 1":  {MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 0.5},
		"negative budget": {MaxAttempts: 1, InitialDelay: time.Millisecond, MaxElapsedTime: -1},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, cfg.Normalize())
		})
	}

	ok := Config{MaxAttempts: 2, InitialDelay: time.Millisecond}
	require.NoError(t, ok.Normalize())
	assert.Equal(t, time.Millisecond, ok.MinDelay)
	assert.Equal(t, 2.0, ok.Multiplier)
	assert.NotNil(t, ok.Rand)
}

func TestDefaultRetryable(t *testing.T) {
	reset := &url.Error{Op: "Post", URL: "http://idp/token", Err: &net.OpError{Op: "read", Net: "tcp", Err: &os.SyscallError{Syscall: "read", Err: syscall.ECONNRESET}}}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"eof", io.ErrUnexpectedEOF, true},
		{"closed", net.ErrClosed, true},
		{"conn reset", reset, true},
		{"plain", errors.New("invalid_grant"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultRetryable(tt.err))
		})
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	var retried []int
	cfg := testConfig()
	cfg.OnRetry = func(attempt int, err error, d time.Duration) { retried = append(retried, attempt) }

	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return io.EOF
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_NonRetryableStops(t *testing.T) {
	calls := 0
	bad := errors.New("invalid_grant")
	err := Do(context.Background(), testConfig(), func(ctx context.Context) error {
		calls++
		return bad
	})
	assert.ErrorIs(t, err, bad)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentUnwrapped(t *testing.T) {
	calls := 0
	err := DoWithRetryable(context.Background(), testConfig(), func(ctx context.Context) error {
		calls++
		return Permanent(io.EOF)
	}, func(error) bool { return true })
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 1, calls)
	assert.Nil(t, Permanent(nil))
}

func TestDo_AttemptsExhausted(t *testing.T) {
	err := Do(context.Background(), testConfig(), func(ctx context.Context) error { return io.EOF })

	var rex *RetriesExceededError
	require.ErrorAs(t, err, &rex)
	assert.Equal(t, 3, rex.Attempts)
	assert.Equal(t, "max attempts exceeded", rex.Reason)
	assert.ErrorIs(t, err, io.EOF)
}

func TestDo_MaxElapsedTime(t *testing.T) {
	now := time.Unix(0, 0)
	cfg := testConfig()
	cfg.MaxAttempts = 10
	cfg.MaxElapsedTime = 5 * time.Millisecond
	cfg.Now = func() time.Time { return now }
	cfg.After = func(d time.Duration) <-chan time.Time {
		now = now.Add(d)
		return instant(d)
	}

	err := Do(context.Background(), cfg, func(ctx context.Context) error { return io.EOF })
	var rex *RetriesExceededError
	require.ErrorAs(t, err, &rex)
	assert.Equal(t, "max elapsed time exceeded", rex.Reason)
	assert.Less(t, rex.Attempts, 10)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig()
	cfg.After = func(time.Duration) <-chan time.Time {
		cancel()
		return make(chan time.Time)
	}

	err := Do(ctx, cfg, func(ctx context.Context) error { return io.EOF })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffAndJitter(t *testing.T) {
	cfg := Config{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Rand: rand.New(rand.NewSource(7))}
	require.NoError(t, cfg.Normalize())

	assert.Equal(t, 100*time.Millisecond, cfg.backoff(1))
	assert.Equal(t, 200*time.Millisecond, cfg.backoff(2))
	assert.Equal(t, 400*time.Millisecond, cfg.backoff(3))
	assert.Equal(t, time.Second, cfg.backoff(10))

	assert.Equal(t, 200*time.Millisecond, cfg.applyJitter(200*time.Millisecond))

	cfg.JitterStrategy = JitterDecorrelated
	for i := 0; i < 50; i++ {
		d := cfg.applyJitter(200 * time.Millisecond)
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.Less(t, d, 300*time.Millisecond)
	}

	cfg.JitterStrategy = JitterEqual
	for i := 0; i < 50; i++ {
		d := cfg.applyJitter(200 * time.Millisecond)
		assert.GreaterOrEqual(t, d, cfg.MinDelay)
		assert.Less(t, d, 200*time.Millisecond)
	}
}
