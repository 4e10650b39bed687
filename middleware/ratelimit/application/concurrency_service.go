package application

import (
	"context"
	"errors"
	"time"

	"user-service/middleware/ratelimit/domain"
)

// ErrNoSlot is returned when the pool stayed full for the whole wait.
var ErrNoSlot = errors.New("admission: no free slot")

// ConcurrencyService acquires an in-flight slot, optionally bounded by a timeout.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire waits for a slot until ctx is done, or at most AcquireTimeout
// when it is positive. It returns ctx's error when the caller went away
// and ErrNoSlot when the wait itself ran out.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), error) {
	if s.Pool == nil {
		return func() {}, nil
	}

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	if release, ok := s.Pool.Acquire(acqCtx); ok {
		return release, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNoSlot
}
