package ratelimit

import (
	"context"
	"time"
)

// Window is the fixed window every limit is counted over.
const Window = time.Minute

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter provides rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error)
}

// windowStart returns the unix second the window containing now began at.
func windowStart(now time.Time) int64 {
	return now.Truncate(Window).Unix()
}

// windowReset returns when the window starting at start ends.
func windowReset(start int64) time.Time {
	return time.Unix(start, 0).Add(Window).UTC()
}
