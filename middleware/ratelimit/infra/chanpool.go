package infra

import (
	"context"

	"user-service/middleware/ratelimit/domain"
)

type ChanPool struct {
	sem chan struct{}
}

// NewChanPool returns a semaphore with max slots.
func NewChanPool(max int) *ChanPool {
	return &ChanPool{sem: make(chan struct{}, max)}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}

// InUse reports the number of held slots.
func (p *ChanPool) InUse() int { return len(p.sem) }

var _ domain.SlotPool = (*ChanPool)(nil)
