package domain

import "context"

// SlotPool bounds how many requests are in flight at once.
//
// Acquire blocks until a slot frees up or ctx is done. On success the
// returned release must be called exactly once.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
