package infra

import (
	"context"
	"testing"
	"time"

	"user-service/users/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCache(rdb), mr
}

func sampleUser() domain.User {
	return domain.User{
		ID:        uuid.New(),
		Name:      "Ann",
		Email:     "ann@example.com",
		CreatedAt: time.Date(2026, 3, 4, 5, 6, 7, 8000, time.UTC),
	}
}

func TestRedisCache_RoundTrip(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()
	want := sampleUser()

	if err := c.Set(ctx, "user:1", want, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got domain.User
	found, err := c.Get(ctx, "user:1", &got)
	if err != nil || !found {
		t.Fatalf("expected hit, found=%v err=%v", found, err)
	}
	if got.ID != want.ID || got.Name != want.Name || got.Email != want.Email || !got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestRedisCache_ExpiredEntryIsMiss(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "user:1", sampleUser(), time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(2 * time.Second)

	var got domain.User
	found, err := c.Get(ctx, "user:1", &got)
	if err != nil || found {
		t.Fatalf("expected miss after ttl, found=%v err=%v", found, err)
	}
}

func TestRedisCache_ZeroTTLLeavesNoEntry(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "user:1", sampleUser(), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Set(ctx, "user:1", sampleUser(), 0); err != nil {
		t.Fatalf("set with zero ttl: %v", err)
	}
	if mr.Exists("user:1") {
		t.Fatalf("expected key removed by zero ttl")
	}
}

func TestRedisCache_DeleteInvalidatesAndIsIdempotent(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "user:x", sampleUser(), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Delete(ctx, "user:x"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.Delete(ctx, "user:x"); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}

	var got domain.User
	if found, err := c.Get(ctx, "user:x", &got); err != nil || found {
		t.Fatalf("expected miss after delete, found=%v err=%v", found, err)
	}
}

func TestRedisCache_CorruptPayloadIsSerializationError(t *testing.T) {
	c, mr := newTestRedisCache(t)
	if err := mr.Set("user:bad", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var got domain.User
	found, err := c.Get(context.Background(), "user:bad", &got)
	if found {
		t.Fatalf("expected found=false on corrupt payload")
	}
	if domain.KindOf(err) != domain.KindSerialization {
		t.Fatalf("expected serialization error, got %v", err)
	}
}

func TestRedisCache_UnreachableIsCacheError(t *testing.T) {
	c, mr := newTestRedisCache(t)
	mr.Close()
	ctx := context.Background()

	var got domain.User
	if _, err := c.Get(ctx, "user:1", &got); domain.KindOf(err) != domain.KindCache {
		t.Fatalf("expected cache error on get, got %v", err)
	}
	if err := c.Set(ctx, "user:1", sampleUser(), time.Minute); domain.KindOf(err) != domain.KindCache {
		t.Fatalf("expected cache error on set, got %v", err)
	}
	if err := c.Delete(ctx, "user:1"); domain.KindOf(err) != domain.KindCache {
		t.Fatalf("expected cache error on delete, got %v", err)
	}
	if err := c.Ping(ctx); domain.KindOf(err) != domain.KindCache {
		t.Fatalf("expected cache error on ping, got %v", err)
	}
}

func TestRedisCache_UnencodableValueIsSerializationError(t *testing.T) {
	c, _ := newTestRedisCache(t)

	err := c.Set(context.Background(), "bad", make(chan int), time.Minute)
	if domain.KindOf(err) != domain.KindSerialization {
		t.Fatalf("expected serialization error, got %v", err)
	}
}

func TestRedisCache_RejectsInvalidKey(t *testing.T) {
	c, _ := newTestRedisCache(t)

	var got domain.User
	if _, err := c.Get(context.Background(), " ", &got); err == nil {
		t.Fatalf("expected error for blank key")
	}
}
