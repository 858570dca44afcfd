// Package retry runs an operation with exponential backoff and jitter.
//
//	cfg := retry.DefaultConfig()
//	cfg.OnRetry = func(attempt int, err error, d time.Duration) {
//	    log.Warn("token exchange retry", "attempt", attempt, "wait", d, "error", err)
//	}
//	err := retry.DoWithRetryable(ctx, cfg, exchange, isTransient)
//
// Wrap an error with Permanent to stop immediately, e.g. when the identity
// provider rejected the grant and another attempt cannot succeed.
//
// HTTP status awareness and Retry-After live in internal/platform/httpclient.
package retry
