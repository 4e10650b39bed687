package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"user-service/metrics"
	"user-service/users/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"
)

// Metrics is the part of the aggregator the service records into.
type Metrics interface {
	RecordRequest(endpoint string)
	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheError(op string)
	Snapshot() metrics.Snapshot
}

const (
	DefaultUserTTL = 5 * time.Minute
	DefaultListTTL = 1 * time.Minute
)

type Config struct {
	// UserTTL applies to point lookups.
	UserTTL time.Duration
	// ListTTL applies to listing pages, which go stale sooner.
	ListTTL time.Duration
	// FailOpen records cache failures and carries on with the store
	// instead of failing the request.
	FailOpen bool
}

func DefaultConfig() Config {
	return Config{UserTTL: DefaultUserTTL, ListTTL: DefaultListTTL, FailOpen: true}
}

// Service is the request orchestrator. It is safe for concurrent use.
type Service struct {
	store    domain.Store
	cache    domain.Cache
	metrics  Metrics
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	validate *validator.Validate
	fills    singleflight.Group
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func New(store domain.Store, cache domain.Cache, m Metrics, cfg Config, opts ...Option) *Service {
	if cfg.UserTTL <= 0 {
		cfg.UserTTL = DefaultUserTTL
	}
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = DefaultListTTL
	}
	s := &Service{
		store:    store,
		cache:    cache,
		metrics:  m,
		cfg:      cfg,
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer(""),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetUser reads through the cache.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (u domain.User, err error) {
	defer s.metrics.RecordRequest(EndpointGetUser)
	ctx, span := s.tracer.Start(ctx, "users.GetUser", trace.WithAttributes(attribute.String("user.id", id.String())))
	defer func() { endSpan(span, err) }()

	err = s.readThrough(ctx, span, UserKey(id), s.cfg.UserTTL, &u, func(ctx context.Context) (any, error) {
		return s.store.GetByID(ctx, id)
	})
	return u, err
}

// ListUsers reads one page through the cache.
func (s *Service) ListUsers(ctx context.Context, page domain.Page) (users []domain.User, err error) {
	defer s.metrics.RecordRequest(EndpointListUsers)
	page = page.Normalize()
	ctx, span := s.tracer.Start(ctx, "users.ListUsers", trace.WithAttributes(
		attribute.Int("page.limit", page.Limit),
		attribute.Int("page.offset", page.Offset),
	))
	defer func() { endSpan(span, err) }()

	err = s.readThrough(ctx, span, ListKey(page.Limit, page.Offset), s.cfg.ListTTL, &users, func(ctx context.Context) (any, error) {
		return s.store.List(ctx, page.Limit, page.Offset)
	})
	return users, err
}

// CreateUser writes to the store and invalidates the point-lookup entry.
// Listing pages are left to expire on their own TTL.
func (s *Service) CreateUser(ctx context.Context, in domain.NewUser) (u domain.User, err error) {
	defer s.metrics.RecordRequest(EndpointCreateUser)
	ctx, span := s.tracer.Start(ctx, "users.CreateUser")
	defer func() { endSpan(span, err) }()

	if err := s.validate.StructCtx(ctx, in); err != nil {
		return domain.User{}, domain.E(domain.KindInvalid, "users.create", err)
	}

	u, err = s.store.Create(ctx, in)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	span.SetAttributes(attribute.String("user.id", u.ID.String()))

	// the row exists now, finish the invalidation even if the client is gone
	if err := s.cache.Delete(context.WithoutCancel(ctx), UserKey(u.ID)); err != nil {
		if cerr := s.cacheFailure(ctx, "delete", UserKey(u.ID), err); cerr != nil {
			return domain.User{}, cerr
		}
	}
	return u, nil
}

// Stats combines the store count with the metrics snapshot.
func (s *Service) Stats(ctx context.Context) (st domain.Stats, err error) {
	defer s.metrics.RecordRequest(EndpointStats)
	ctx, span := s.tracer.Start(ctx, "users.Stats")
	defer func() { endSpan(span, err) }()

	total, err := s.store.Count(ctx)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("count users: %w", err)
	}
	snap := s.metrics.Snapshot()
	return domain.Stats{
		TotalUsers:        total,
		CacheHits:         snap.CacheHits,
		CacheMisses:       snap.CacheMisses,
		RequestsPerSecond: snap.RequestsPerSecond,
	}, nil
}

// readThrough fills dst from the cache, or from load on a miss and then
// populates the cache. Concurrent misses on the same key share one load.
func (s *Service) readThrough(ctx context.Context, span trace.Span, key string, ttl time.Duration, dst any, load func(context.Context) (any, error)) error {
	found, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		if cerr := s.cacheFailure(ctx, "get", key, err); cerr != nil {
			return cerr
		}
		found = false
	}
	span.SetAttributes(attribute.Bool("cache.hit", found))
	if found {
		s.metrics.RecordCacheHit()
		return nil
	}
	s.metrics.RecordCacheMiss()

	ch := s.fills.DoChan(key, func() (any, error) {
		// shared by every waiter, so it must not die with the first caller's context
		fillCtx := context.WithoutCancel(ctx)
		v, err := load(fillCtx)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(fillCtx, key, v, ttl); err != nil {
			if cerr := s.cacheFailure(fillCtx, "set", key, err); cerr != nil {
				return nil, cerr
			}
		}
		return v, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return domain.E(domain.KindInternal, "users.read", ctx.Err())
	}
	if res.Err != nil {
		return res.Err
	}
	return assign(dst, res.Val)
}

// cacheFailure records a cache error. It returns nil when the service is
// configured to carry on, or the error to hand back to the caller.
func (s *Service) cacheFailure(ctx context.Context, op, key string, err error) error {
	s.metrics.RecordCacheError(op)
	if !s.cfg.FailOpen {
		s.logger.ErrorContext(ctx, "cache operation failed",
			slog.String("op", op), slog.String("key", key), slog.Any("error", err))
		return domain.E(domain.KindCache, "users.cache."+op, err)
	}
	s.logger.WarnContext(ctx, "cache operation failed, continuing without cache",
		slog.String("op", op), slog.String("key", key), slog.Any("error", err))
	return nil
}

func assign(dst, v any) error {
	switch d := dst.(type) {
	case *domain.User:
		if u, ok := v.(domain.User); ok {
			*d = u
			return nil
		}
	case *[]domain.User:
		if us, ok := v.([]domain.User); ok {
			*d = us
			return nil
		}
	}
	return domain.E(domain.KindInternal, "users.assign", fmt.Errorf("unexpected value %T for %T", v, dst))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
