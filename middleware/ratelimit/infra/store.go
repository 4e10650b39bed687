package infra

import (
	"context"
	"sync"
	"time"

	"user-service/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// Store keeps one token bucket per key. Buckets start full (burst tokens)
// and refill continuously at rps; rate.Limiter does refill and consume
// under its own lock, so concurrent requests of one client never share a
// token. Buckets idle for longer than idleTTL are dropped by Cleanup.
type Store struct {
	mu           sync.Mutex
	entries      map[string]*storeEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type storeEntry struct {
	bucket   *bucket
	lastSeen time.Time
}

// bucket binds a limiter to the store clock.
type bucket struct {
	lim *rate.Limiter
	now func() time.Time
}

func (b *bucket) Allow() bool { return b.lim.AllowN(b.now(), 1) }

// Tokens reports the tokens available right now.
func (b *bucket) Tokens() float64 { return b.lim.TokensAt(b.now()) }

type StoreOption func(*Store)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

// WithClock replaces time.Now for refill and idle accounting.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(rps float64, burst int, opts ...StoreOption) *Store {
	s := &Store{
		entries:      make(map[string]*storeEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) RPS() float64                { return float64(s.rps) }
func (s *Store) Burst() int                  { return s.burst }
func (s *Store) CleanupEvery() time.Duration { return s.cleanupEvery }

// Get implements domain.LimiterStore.
func (s *Store) Get(key domain.Key) domain.Limiter {
	return s.bucketFor(string(key))
}

func (s *Store) bucketFor(key string) *bucket {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.bucket
	}

	b := &bucket{lim: rate.NewLimiter(s.rps, s.burst), now: s.now}
	s.entries[key] = &storeEntry{bucket: b, lastSeen: now}
	return b
}

// Len reports how many keys currently hold a bucket.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup drops buckets not seen within idleTTL. A dropped client comes
// back with a full bucket, which is what it would have refilled to anyway
// once idleTTL exceeds burst/rps.
func (s *Store) Cleanup() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// StartJanitor runs Cleanup every cleanupEvery until ctx is done.
func (s *Store) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
