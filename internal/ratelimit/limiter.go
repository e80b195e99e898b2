// Package ratelimit enforces the per-API-key rolling request budget.
//
// Both backends count every admission attempt, rejected ones included, over a sliding
// window, and make the count-then-record step atomic per key.
package ratelimit

import (
	"context"
	"time"
)

// DefaultWindow is the rolling window the per-minute limits apply to.
const DefaultWindow = 60 * time.Second

// Decision is the outcome of one admission attempt.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter decides whether a request on keyID fits within limit requests per window.
type Limiter interface {
	Admit(ctx context.Context, keyID string, limit int) (*Decision, error)
}

// decide turns the number of hits already in the window into a Decision.
// oldest is the earliest hit still in the window, or zero when there is none.
func decide(count, limit int, oldest, now time.Time, window time.Duration) *Decision {
	d := &Decision{Limit: limit, Allowed: count < limit}
	if d.Allowed {
		d.Remaining = limit - count - 1
	}
	if oldest.IsZero() {
		d.ResetAt = now.Add(window)
	} else {
		d.ResetAt = oldest.Add(window)
	}
	return d
}
