package fyreflow

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// retryExecutor wraps a ProviderExecutor and automatically retries
// transient HTTP errors (429, 503) with exponential backoff, mirroring
// the teacher's retryProvider but retargeted at the Exec capability.
type retryExecutor struct {
	inner       ProviderExecutor
	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration // overall timeout across all attempts; 0 = no limit
	logger      *slog.Logger
}

// RetryOption configures a retryExecutor.
type RetryOption func(*retryExecutor)

// RetryMaxAttempts sets the maximum number of attempts (default: 3).
func RetryMaxAttempts(n int) RetryOption {
	return func(r *retryExecutor) { r.maxAttempts = n }
}

// RetryBaseDelay sets the initial backoff delay before the second
// attempt (default: 1s). Each subsequent delay doubles.
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(r *retryExecutor) { r.baseDelay = d }
}

// RetryTimeout sets the overall timeout for the entire retry sequence.
// The zero value (default) disables the timeout.
func RetryTimeout(d time.Duration) RetryOption {
	return func(r *retryExecutor) { r.timeout = d }
}

// RetryLogger sets the logger used to report retry attempts.
func RetryLogger(l *slog.Logger) RetryOption {
	return func(r *retryExecutor) { r.logger = l }
}

// WithRetry wraps e with automatic retry on transient HTTP errors (429,
// 503). Retries use exponential backoff with jitter; when the error
// carries a Retry-After duration, the retry delay is at least that long.
func WithRetry(e ProviderExecutor, opts ...RetryOption) ProviderExecutor {
	r := &retryExecutor{
		inner:       e,
		maxAttempts: 3,
		baseDelay:   time.Second,
		logger:      nopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *retryExecutor) Exec(ctx context.Context, provider ProviderConfig, step Step, req ChatRequest) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return retryCall(ctx, r.maxAttempts, r.baseDelay, provider.ID, r.logger, func() (string, error) {
		return r.inner.Exec(ctx, provider, step, req)
	})
}

// withTimeout returns a child context with a deadline if r.timeout is
// set and tighter than ctx's existing deadline, if any.
func (r *retryExecutor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	deadline := time.Now().Add(r.timeout)
	if existing, ok := ctx.Deadline(); ok && existing.Before(deadline) {
		return ctx, func() {}
	}
	return context.WithDeadline(ctx, deadline)
}

// statusOf extracts the HTTP status code from an ErrHTTP, or 0.
func statusOf(err error) int {
	var e *ErrHTTP
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// retryAfterOf extracts the Retry-After duration from an ErrHTTP, or 0.
func retryAfterOf(err error) time.Duration {
	var e *ErrHTTP
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// retryDelay computes the delay before retry attempt i: the exponential
// backoff as a floor, raised to the server's Retry-After value when
// that is larger.
func retryDelay(base time.Duration, i int, err error) time.Duration {
	backoff := retryBackoff(base, i)
	if ra := retryAfterOf(err); ra > backoff {
		return ra
	}
	return backoff
}

// retryCall calls fn up to maxAttempts times, sleeping between
// transient failures.
func retryCall[T any](ctx context.Context, maxAttempts int, base time.Duration, name string, logger *slog.Logger, fn func() (T, error)) (T, error) {
	var zero T
	var last error
	for i := 0; i < maxAttempts; i++ {
		result, err := fn()
		if err == nil || !IsTransient(err) {
			return result, err
		}
		last = err
		logger.Warn("retrying transient provider error", "provider", name, "status", statusOf(err), "attempt", i+1, "maxAttempts", maxAttempts)
		if i < maxAttempts-1 {
			delay := retryDelay(base, i, err)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return zero, last
}

// retryBackoff returns the delay for retry i (0-indexed): exponential
// base*2^i plus up to 50% random jitter.
func retryBackoff(base time.Duration, i int) time.Duration {
	exp := base * (1 << i)
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp + jitter
}

var _ ProviderExecutor = (*retryExecutor)(nil)
