package infra

import (
	"context"
	"errors"

	"user-service/middleware/ratelimit/domain"
)

// MultiStats records every event into each store and joins their errors.
type MultiStats []domain.StatsStore

// NewMultiStats drops nil stores.
func NewMultiStats(stores ...domain.StatsStore) MultiStats {
	out := make(MultiStats, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
