package fyreflow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CancellationError is returned when a run or step execution unwinds
// because of an external cancel/pause or a tripped deadline. It wraps
// context.Canceled or context.DeadlineExceeded so errors.Is still works
// against the stdlib sentinels.
type CancellationError struct {
	Reason string
	Cause  error // context.Canceled or context.DeadlineExceeded
}

func (e *CancellationError) Error() string {
	if e.Reason == "" {
		return "cancelled"
	}
	return e.Reason
}

func (e *CancellationError) Unwrap() error { return e.Cause }

// newCancellationError builds a CancellationError from a context error,
// classifying it as a plain cancel vs. a timeout based on ctx.Err().
func newCancellationError(ctx context.Context, reason string) *CancellationError {
	cause := ctx.Err()
	if cause == nil {
		cause = context.Canceled
	}
	return &CancellationError{Reason: reason, Cause: cause}
}

// TimeoutError indicates a step's stage deadline tripped before the
// provider/tool round completed. Always wraps context.DeadlineExceeded.
type TimeoutError struct {
	StepName string
	Ms       int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %dms", e.StepName, e.Ms)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// ProviderError wraps a failure from the ProviderExecutor or
// McpToolInvoker capability boundary.
type ProviderError struct {
	Provider string
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q: %s", e.Provider, e.Message)
}

// ErrHTTP represents a transport-level HTTP failure from a provider or
// tool call. Status 429/503 are treated as transient and retried by
// WithRetry (retryexec.go). RetryAfter, when non-zero, is honored as a
// floor on the retry delay.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// IsTransient reports whether err is a retryable HTTP error (429 or 503).
func IsTransient(err error) bool {
	var e *ErrHTTP
	return errors.As(err, &e) && (e.Status == 429 || e.Status == 503)
}

// ErrRunTerminal names an operation attempted against a run that has
// already reached a terminal status. No function in this module returns
// it: the RunControlPlane operations leave a terminal run unchanged and
// return a nil error.
var ErrRunTerminal = errors.New("run is in a terminal state")

// ErrRunNotFound is returned by Store.GetRun/UpdateRun when no run
// exists for the given id.
var ErrRunNotFound = errors.New("run not found")

// ErrIllegalTransition names a control-plane operation attempted from a
// state that does not permit it (spec §4.7 table). No function in this
// module returns it: RunControlPlane leaves the run unchanged instead.
var ErrIllegalTransition = errors.New("illegal run state transition")

// ErrApprovalNotPending names an approval that has already been
// resolved. No function in this module returns it:
// RunControlPlane.ResolveApproval ignores an approval that is not pending.
var ErrApprovalNotPending = errors.New("approval is not pending")
