package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"user-service/api"
	"user-service/metrics"
	"user-service/middleware/ratelimit"
	ratedomain "user-service/middleware/ratelimit/domain"
	rateinfra "user-service/middleware/ratelimit/infra"
	"user-service/tracing"
	"user-service/users/application"
	"user-service/users/domain"
	"user-service/users/infra"

	"github.com/redis/go-redis/v9"
)

const serviceName = "user-service"

type cacheBackend interface {
	domain.Cache
	domain.Pinger
}

func main() {
	cfg, err := readConfig()
	if err != nil {
		slog.Error("config error", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.logLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openStore(ctx, cfg.databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	store := infra.NewSQLStore(db)

	var rdb *redis.Client
	var cache cacheBackend
	if cfg.redisURL == memoryCacheURL {
		cache = infra.NewMemoryCache()
	} else {
		rdb, err = openRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		cache = infra.NewRedisCache(rdb)
	}

	tracer, shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName: serviceName,
		Version:     cfg.serviceVersion,
		Exporter:    cfg.tracing,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", slog.Any("error", err))
		}
	}()

	agg := metrics.New(metrics.WithRuntimeCollectors())
	svc := application.New(store, cache, agg, application.Config{
		UserTTL:  cfg.userCacheTTL,
		ListTTL:  cfg.listCacheTTL,
		FailOpen: cfg.cacheFailOpen,
	}, application.WithLogger(logger), application.WithTracer(tracer))

	h := api.NewRouter(api.Deps{
		Users:   svc,
		Metrics: agg,
		Checks:  map[string]domain.Pinger{"database": store, "cache": cache},
		Version: cfg.serviceVersion,
		Logger:  logger,
	})

	limiter := rateinfra.NewStore(cfg.rateRPS, cfg.rateBurst,
		rateinfra.WithIdleTTL(cfg.rateIdleTTL),
		rateinfra.WithCleanupEvery(cfg.rateCleanupEvery),
	)
	limiter.StartJanitor(ctx)

	var redisStats ratedomain.StatsStore
	if cfg.rateStatsEnabled {
		redisStats = rateinfra.NewRedisStatsStore(
			rdb,
			rateinfra.WithStatsPrefix(cfg.rateStatsPrefix),
			rateinfra.WithStatsTTL(cfg.rateStatsTTL),
			rateinfra.WithStatsBucket(cfg.rateStatsBucket),
			rateinfra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
		)
	}

	if cfg.rateEnabled {
		h = ratelimit.Middleware(ratelimit.Options{
			Store:               limiter,
			Stats:               rateinfra.NewMultiStats(agg, redisStats),
			KeyHeader:           cfg.rateKeyHeader,
			TrustXForwardedFor:  cfg.trustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          cfg.retryAfter,
			AddRateLimitHeaders: cfg.addHeaders,
			Logger:              logger,
		})(h)
	}
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
	})(h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("user service listening",
		slog.String("addr", cfg.listenAddr),
		slog.String("version", cfg.serviceVersion),
		slog.Bool("redis", rdb != nil),
		slog.String("tracing", cfg.tracing),
	)
	logger.Info("cache",
		slog.Duration("userTTL", cfg.userCacheTTL),
		slog.Duration("listTTL", cfg.listCacheTTL),
		slog.Bool("failOpen", cfg.cacheFailOpen),
		slog.Int("poolSize", cfg.cachePoolSize),
	)
	logger.Info("rate",
		slog.Bool("enabled", cfg.rateEnabled),
		slog.Float64("rps", cfg.rateRPS),
		slog.Int("burst", cfg.rateBurst),
		slog.String("keyHeader", cfg.rateKeyHeader),
		slog.Bool("trustXFF", cfg.trustXFF),
		slog.Duration("idleTTL", cfg.rateIdleTTL),
	)
	logger.Info("rate-stats",
		slog.Bool("enabled", cfg.rateStatsEnabled),
		slog.String("bucket", cfg.rateStatsBucket),
		slog.Duration("ttl", cfg.rateStatsTTL),
		slog.Bool("trackKeys", cfg.rateStatsTrackKeys),
	)
	logger.Info("concurrency",
		slog.Int("max", cfg.concurrencyMax),
		slog.Duration("acquireTimeout", cfg.concurrencyTimeout),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, url string) (*sql.DB, error) {
	db, err := infra.OpenDB(url)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}
	if err := infra.EnsureSchema(pingCtx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func openRedis(ctx context.Context, cfg config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	if cfg.cachePoolSize > 0 {
		opts.PoolSize = cfg.cachePoolSize
	}
	opts.DialTimeout = cfg.cacheTimeout
	opts.ReadTimeout = cfg.cacheTimeout
	opts.WriteTimeout = cfg.cacheTimeout
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	_, err = rdb.Ping(pingCtx).Result()
	cancel()
	if err != nil {
		// the service can run degraded on the store alone
		slog.Warn("redis ping failed, serving from the store until it recovers", slog.Any("error", err))
	}
	return rdb, nil
}
