package domain

import (
	"context"
	"time"
)

// StatsEvent describes one admission decision.
//
// Method and Path are plain strings so the same event works outside HTTP.
// Keys and paths are high cardinality; stores must bound what they keep.
type StatsEvent struct {
	Key     Key
	Allowed bool

	Method string
	Path   string

	At time.Time
}

// StatsStore persists admission decisions. Recording is best-effort: an
// error never turns an admitted request into a failure.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
