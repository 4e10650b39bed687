package application

import (
	"context"
	"time"

	"user-service/middleware/ratelimit/domain"
)

// Service turns a client key into an admission decision.
type Service struct {
	Store      domain.LimiterStore
	Stats      domain.StatsStore
	RetryAfter time.Duration
	// OnStatsError receives failures from Stats. Nil drops them.
	OnStatsError func(error)
}

func (s Service) Decide(key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	lim := s.Store.Get(key)
	if lim == nil {
		return domain.Decision{Allowed: true}
	}
	if lim.Allow() {
		return domain.Decision{Allowed: true}
	}
	return domain.Decision{Allowed: false, RetryAfter: s.RetryAfter}
}

// Admit decides for ev.Key and records the outcome. ev.Allowed is filled
// in from the decision.
func (s Service) Admit(ctx context.Context, ev domain.StatsEvent) domain.Decision {
	dec := s.Decide(ev.Key)
	if s.Stats == nil {
		return dec
	}

	ev.Allowed = dec.Allowed
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := s.Stats.Record(ctx, ev); err != nil && s.OnStatsError != nil {
		s.OnStatsError(err)
	}
	return dec
}
