package repository

import (
	"context"
	"time"
)

// Store defines the counter operations behind the limiter strategies. Implementations must be
// concurrency-safe, and each check must be atomic per key: two concurrent checks on the same key
// never both observe the state from before the other's mutation.
type Store interface {
	// SlidingWindow counts accepted events for key in the trailing window ending at now and, if
	// fewer than limit, records one at now. Returns allowed and the quota left after this event;
	// when denied, how long until the oldest counted event leaves the window instead.
	// A rejected event is not recorded.
	SlidingWindow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (bool, int, time.Duration, error)

	// Cooldown accepts one event per key per cooldown, measured from the last accepted event.
	// Returns allowed and, when denied, how long until the next event would be accepted.
	// The last-accepted time only moves on acceptance.
	Cooldown(ctx context.Context, key string, cooldown time.Duration, now time.Time) (bool, time.Duration, error)

	// Reset drops any counters held for the given keys.
	Reset(ctx context.Context, keys ...string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Backend names the implementation ("memory" or "redis").
	Backend() string

	Close() error
}
