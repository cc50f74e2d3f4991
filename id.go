package fyreflow

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
// Used for run ids and, where a gate doesn't specify a deterministic id,
// for ad-hoc correlation ids.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NowUnix returns the current time as Unix seconds.
func NowUnix() int64 {
	return time.Now().Unix()
}

// NowRFC3339 returns the current time formatted as RFC 3339 in UTC,
// the timestamp format used throughout the run journal.
func NowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
