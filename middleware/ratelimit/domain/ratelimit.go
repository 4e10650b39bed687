package domain

import "time"

// Key identifies a client: an API key header, a forwarded IP or the peer address.
type Key string

// Limiter decides whether one more request may pass now. Refill and
// consume must happen as one atomic step.
type Limiter interface {
	Allow() bool
}

// LimiterStore returns the limiter for a key, creating it on first sight.
type LimiterStore interface {
	Get(Key) Limiter
}

type Decision struct {
	Allowed bool
	// RetryAfter is the Retry-After hint sent with a rejection. Zero means none.
	RetryAfter time.Duration
}
