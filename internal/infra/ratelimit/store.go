// Package ratelimit provides the submission counters behind the contact
// form's dual email+IP limiter.
package ratelimit

import (
	"context"
	"time"
)

// Store counts submissions per identity key over a rolling window. The
// check-and-increment must be atomic under concurrent callers sharing a
// backend; multiple instances may serve requests for the same identity at
// once.
type Store interface {
	// CheckAndIncrement records one submission for key and reports whether
	// it is within limit for the window.
	CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
