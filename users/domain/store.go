package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the system of record.
//
// GetByID returns an error of KindNotFound when the id is absent. Every
// method may fail with KindStore.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	Create(ctx context.Context, in NewUser) (User, error)
	// List returns users ordered by creation time, newest first.
	List(ctx context.Context, limit, offset int) ([]User, error)
	Count(ctx context.Context) (int64, error)
}

// Cache is a key/value cache holding JSON snapshots.
//
// Contract:
//   - Get decodes into dst and reports found=false on miss or expiry.
//     A payload that cannot be decoded is a KindSerialization error.
//   - Set overwrites unconditionally. A ttl <= 0 leaves no live entry.
//   - Delete is idempotent.
//   - Transport failures are KindCache errors. Nothing is retried.
//   - Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by backends that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
