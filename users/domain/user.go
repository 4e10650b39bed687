package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the record owned by the durable store. Cached copies are value
// snapshots of it.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUser is the payload accepted by create.
type NewUser struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email,max=320"`
}

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// Page selects a window of the listing ordered by creation time, newest first.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page into the range the store accepts.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Stats is the payload of the stats operation.
type Stats struct {
	TotalUsers        int64   `json:"total_users"`
	CacheHits         uint64  `json:"cache_hits"`
	CacheMisses       uint64  `json:"cache_misses"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}
