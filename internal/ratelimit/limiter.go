// Package ratelimit counts requests per key in fixed windows.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrBackendUnavailable wraps failures of the counter store.
var ErrBackendUnavailable = errors.New("rate limit backend unavailable")

// Decision is the outcome of one counted request.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts a request against key and decides whether it may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

func decide(count, max int, resetIn time.Duration) Decision {
	if count > max {
		return Decision{Allowed: false, RetryAfter: resetIn}
	}
	return Decision{Allowed: true, Remaining: max - count}
}
