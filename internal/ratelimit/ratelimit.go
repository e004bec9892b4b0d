// Package ratelimit provides a pluggable rate limiting interface with an
// in-process token bucket and a Redis fixed-window implementation for
// multi-replica deployments.
package ratelimit

import "context"

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the request should proceed. Keys are opaque and
	// built by callers (e.g. "org:<uuid>:run"). An error means the limiter
	// itself failed; callers fail open.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases background goroutines or connections.
	Close() error
}

// NoopLimiter permits every request.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
