package application

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"user-service/metrics"
	"user-service/users/domain"
	"user-service/users/infra"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu      sync.Mutex
	users   map[uuid.UUID]domain.User
	clock   func() time.Time
	gets    atomic.Int64
	lists   atomic.Int64
	creates atomic.Int64
	gate    chan struct{}
	err     error
}

func newFakeStore(clock func() time.Time) *fakeStore {
	return &fakeStore{users: make(map[uuid.UUID]domain.User), clock: clock}
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (domain.User, error) {
	s.gets.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if s.err != nil {
		return domain.User{}, domain.E(domain.KindStore, "store.get", s.err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.E(domain.KindNotFound, "store.get", domain.ErrNotFound)
	}
	return u, nil
}

func (s *fakeStore) Create(_ context.Context, in domain.NewUser) (domain.User, error) {
	s.creates.Add(1)
	if s.err != nil {
		return domain.User{}, domain.E(domain.KindStore, "store.create", s.err)
	}
	u := domain.User{ID: uuid.New(), Name: in.Name, Email: in.Email, CreatedAt: s.clock().UTC()}
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
	return u, nil
}

func (s *fakeStore) List(_ context.Context, limit, offset int) ([]domain.User, error) {
	s.lists.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []domain.User{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.users)), nil
}

func (s *fakeStore) seed(name string) domain.User {
	u := domain.User{ID: uuid.New(), Name: name, Email: name + "@example.com", CreatedAt: s.clock().UTC()}
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
	return u
}

// brokenCache fails every call the way an unreachable backend would.
type brokenCache struct{}

var errUnreachable = errors.New("dial tcp: connection refused")

func (brokenCache) Get(context.Context, string, any) (bool, error) {
	return false, domain.E(domain.KindCache, "cache.get", errUnreachable)
}
func (brokenCache) Set(context.Context, string, any, time.Duration) error {
	return domain.E(domain.KindCache, "cache.set", errUnreachable)
}
func (brokenCache) Delete(context.Context, string) error {
	return domain.E(domain.KindCache, "cache.delete", errUnreachable)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc     *Service
	store   *fakeStore
	cache   *infra.MemoryCache
	metrics *metrics.Aggregator
	clock   *clock
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	c := &clock{now: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)}
	store := newFakeStore(c.Now)
	cache := infra.NewMemoryCache(infra.WithMemoryClock(c.Now))
	m := metrics.New()
	return &fixture{
		svc:     New(store, cache, m, cfg),
		store:   store,
		cache:   cache,
		metrics: m,
		clock:   c,
	}
}

func TestService_GetUser_MissThenHit(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	want := f.store.seed("ann")
	ctx := context.Background()

	first, err := f.svc.GetUser(ctx, want.ID)
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	second, err := f.svc.GetUser(ctx, want.ID)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}

	if first != want || second != want {
		t.Fatalf("expected %+v twice, got %+v and %+v", want, first, second)
	}
	if n := f.store.gets.Load(); n != 1 {
		t.Fatalf("expected one store read, got %d", n)
	}
	snap := f.metrics.Snapshot()
	if snap.CacheHits != 1 || snap.CacheMisses != 1 || snap.TotalRequests != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestService_GetUser_PointEntryExpiresAfterUserTTL(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	u := f.store.seed("ann")
	ctx := context.Background()

	if _, err := f.svc.GetUser(ctx, u.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	f.clock.Advance(DefaultUserTTL)
	if _, err := f.svc.GetUser(ctx, u.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	if n := f.store.gets.Load(); n != 2 {
		t.Fatalf("expected a second store read after ttl, got %d", n)
	}
}

func TestService_GetUser_NotFoundIsNotCached(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	_, err := f.svc.GetUser(context.Background(), uuid.New())
	if domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.cache.Len() != 0 {
		t.Fatalf("expected nothing cached for a missing user")
	}
	if got := f.metrics.Snapshot().TotalRequests; got != 1 {
		t.Fatalf("expected the failed request to be counted, got %d", got)
	}
}

type spyCache struct {
	*infra.MemoryCache
	mu      sync.Mutex
	deleted []string
}

func (c *spyCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	c.deleted = append(c.deleted, key)
	c.mu.Unlock()
	return c.MemoryCache.Delete(ctx, key)
}

func TestService_CreateUser_DeletesUserKey(t *testing.T) {
	c := &clock{now: time.Now()}
	store := newFakeStore(c.Now)
	cache := &spyCache{MemoryCache: infra.NewMemoryCache()}
	svc := New(store, cache, metrics.New(), DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	u, err := svc.CreateUser(ctx, domain.NewUser{Name: "Ann", Email: "ann@example.com"})
	cancel()
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(cache.deleted) != 1 || cache.deleted[0] != "user:"+u.ID.String() {
		t.Fatalf("expected invalidation of user:%s, got %v", u.ID, cache.deleted)
	}
}

func TestService_CreateUser_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	tests := []domain.NewUser{
		{Name: "", Email: "ann@example.com"},
		{Name: "Ann", Email: ""},
		{Name: "Ann", Email: "not-an-email"},
		{Name: strings.Repeat("a", 201), Email: "ann@example.com"},
	}
	for _, in := range tests {
		_, err := f.svc.CreateUser(context.Background(), in)
		if domain.KindOf(err) != domain.KindInvalid {
			t.Fatalf("expected invalid for %+v, got %v", in, err)
		}
	}
	if n := f.store.creates.Load(); n != 0 {
		t.Fatalf("store must not be called for invalid input, got %d", n)
	}
}

func TestService_CreateUser_StoreFailure(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.store.err = errors.New("connection reset")

	_, err := f.svc.CreateUser(context.Background(), domain.NewUser{Name: "Ann", Email: "ann@example.com"})
	if domain.KindOf(err) != domain.KindStore {
		t.Fatalf("expected store failure, got %v", err)
	}
}

func TestService_ListUsers_StalenessIsBoundedByListTTL(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	page := domain.Page{Limit: 10}

	f.store.seed("first")
	before, err := f.svc.ListUsers(ctx, page)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(before) != 1 {
		t.Fatalf("expected one user, got %d", len(before))
	}

	f.clock.Advance(time.Second)
	if _, err := f.svc.CreateUser(ctx, domain.NewUser{Name: "second", Email: "second@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	stale, err := f.svc.ListUsers(ctx, page)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("expected the cached page within ttl, got %d users", len(stale))
	}

	f.clock.Advance(DefaultListTTL)
	fresh, err := f.svc.ListUsers(ctx, page)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(fresh) != 2 || fresh[0].Name != "second" {
		t.Fatalf("expected fresh page after list ttl, got %+v", fresh)
	}
	if n := f.store.lists.Load(); n != 2 {
		t.Fatalf("expected two store listings, got %d", n)
	}
}

func TestService_ListUsers_NormalizesPageIntoKey(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	if _, err := f.svc.ListUsers(ctx, domain.Page{Limit: -1, Offset: -3}); err != nil {
		t.Fatalf("list: %v", err)
	}
	var cached []domain.User
	found, err := f.cache.Get(ctx, ListKey(domain.DefaultPageLimit, 0), &cached)
	if err != nil || !found {
		t.Fatalf("expected page cached under the normalized key, found=%v err=%v", found, err)
	}
}

func TestService_CacheFailure_FailOpenFallsBackToStore(t *testing.T) {
	c := &clock{now: time.Now()}
	store := newFakeStore(c.Now)
	m := metrics.New()
	svc := New(store, brokenCache{}, m, DefaultConfig())
	u := store.seed("ann")
	ctx := context.Background()

	got, err := svc.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("expected store fallback, got %v", err)
	}
	if got != u {
		t.Fatalf("expected %+v, got %+v", u, got)
	}
	if _, err := svc.CreateUser(ctx, domain.NewUser{Name: "Bob", Email: "bob@example.com"}); err != nil {
		t.Fatalf("expected create to succeed without cache, got %v", err)
	}

	out, err := m.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	for _, want := range []string{`cache_errors_total{op="get"} 1`, `cache_errors_total{op="set"} 1`, `cache_errors_total{op="delete"} 1`} {
		if !strings.Contains(string(out), want) {
			t.Fatalf("expected %q in export:\n%s", want, out)
		}
	}
}

func TestService_CacheFailure_FailClosedSurfacesCacheError(t *testing.T) {
	c := &clock{now: time.Now()}
	store := newFakeStore(c.Now)
	svc := New(store, brokenCache{}, metrics.New(), Config{FailOpen: false})
	u := store.seed("ann")

	_, err := svc.GetUser(context.Background(), u.ID)
	if domain.KindOf(err) != domain.KindCache {
		t.Fatalf("expected cache failure, got %v", err)
	}
	if n := store.gets.Load(); n != 0 {
		t.Fatalf("expected no store read when failing closed, got %d", n)
	}
}

func TestService_CorruptCacheEntryIsRepairedWhenFailingOpen(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	u := f.store.seed("ann")
	ctx := context.Background()

	if err := f.cache.Set(ctx, UserKey(u.ID), "garbage", time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := f.svc.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != u {
		t.Fatalf("expected %+v, got %+v", u, got)
	}

	var cached domain.User
	if found, err := f.cache.Get(ctx, UserKey(u.ID), &cached); err != nil || !found || cached != u {
		t.Fatalf("expected entry rewritten, found=%v err=%v cached=%+v", found, err, cached)
	}
}

func TestService_ConcurrentMissesShareOneStoreRead(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	u := f.store.seed("ann")
	f.store.gate = make(chan struct{})

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.svc.GetUser(context.Background(), u.ID)
			if err == nil && got != u {
				err = errors.New("unexpected user")
			}
			errs <- err
		}()
	}

	deadline := time.Now().Add(time.Second)
	for f.metrics.Snapshot().CacheMisses < callers {
		if time.Now().After(deadline) {
			t.Fatalf("callers did not reach the store")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(f.store.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if n := f.store.gets.Load(); n != 1 {
		t.Fatalf("expected one shared store read, got %d", n)
	}
}

func TestService_Stats(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	u := f.store.seed("ann")
	f.store.seed("bob")
	ctx := context.Background()

	_, _ = f.svc.GetUser(ctx, u.ID)
	_, _ = f.svc.GetUser(ctx, u.ID)

	st, err := f.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalUsers != 2 || st.CacheHits != 1 || st.CacheMisses != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestKeys(t *testing.T) {
	id := uuid.MustParse("7f1c2d3e-4b5a-4c6d-8e7f-0a1b2c3d4e5f")
	if got := UserKey(id); got != "user:7f1c2d3e-4b5a-4c6d-8e7f-0a1b2c3d4e5f" {
		t.Fatalf("unexpected user key %q", got)
	}
	if got := ListKey(100, 20); got != "users:limit:100:offset:20" {
		t.Fatalf("unexpected list key %q", got)
	}
}
