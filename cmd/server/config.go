package main

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type config struct {
	listenAddr     string
	databaseURL    string
	redisURL       string
	cachePoolSize  int
	cacheTimeout   time.Duration
	userCacheTTL   time.Duration
	listCacheTTL   time.Duration
	cacheFailOpen  bool
	logLevel       slog.Level
	tracing        string
	serviceVersion string

	rateEnabled        bool
	rateRPS            float64
	rateBurst          int
	rateKeyHeader      string
	trustXFF           bool
	retryAfter         time.Duration
	addHeaders         bool
	rateIdleTTL        time.Duration
	rateCleanupEvery   time.Duration
	concurrencyMax     int
	concurrencyTimeout time.Duration

	rateStatsEnabled   bool
	rateStatsPrefix    string
	rateStatsTTL       time.Duration
	rateStatsBucket    string
	rateStatsTrackKeys bool
}

// memoryCacheURL selects the in-process cache instead of Redis.
const memoryCacheURL = "memory://"

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":"+getenvDefault("PORT", "3000"))
	cfg.databaseURL = getenvDefault("DATABASE_URL", "sqlite://users.db")
	cfg.redisURL = getenvDefault("REDIS_URL", "redis://localhost:6379/0")
	cfg.cachePoolSize = getenvIntDefault("CACHE_POOL_SIZE", 0)
	cfg.cacheTimeout = getenvDurationDefault("CACHE_TIMEOUT", 500*time.Millisecond)
	cfg.userCacheTTL = getenvDurationDefault("USER_CACHE_TTL", 5*time.Minute)
	cfg.listCacheTTL = getenvDurationDefault("LIST_CACHE_TTL", 1*time.Minute)
	cfg.cacheFailOpen = getenvBoolDefault("CACHE_FAIL_OPEN", true)
	cfg.logLevel = getenvLevelDefault("LOG_LEVEL", slog.LevelInfo)
	cfg.tracing = getenvDefault("TRACING_EXPORTER", "none")
	cfg.serviceVersion = getenvDefault("SERVICE_VERSION", "1.0.0")

	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.rateRPS = getenvFloatDefault("RATE_RPS", 100)
	// With a very low rate the default burst lets the first couple of
	// hundred requests through, which looks like the limiter is off.
	if burst, ok := getenvInt("RATE_BURST"); ok {
		cfg.rateBurst = burst
	} else {
		cfg.rateBurst = 200
		if getenvIsSet("RATE_RPS") && cfg.rateRPS > 0 && cfg.rateRPS < 1 {
			cfg.rateBurst = 1
		}
	}
	cfg.rateKeyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.retryAfter = getenvDurationDefault("RETRY_AFTER", 1*time.Second)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", false)
	cfg.rateIdleTTL = getenvDurationDefault("RATE_IDLE_TTL", 15*time.Minute)
	cfg.rateCleanupEvery = getenvDurationDefault("RATE_CLEANUP_EVERY", 2*time.Minute)
	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 256)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.rateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.rateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", "admission:stats")
	cfg.rateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	if strings.TrimSpace(cfg.databaseURL) == "" {
		return config{}, errors.New("DATABASE_URL is required")
	}
	if cfg.rateStatsEnabled && cfg.redisURL == memoryCacheURL {
		return config{}, errors.New("RATE_STATS_ENABLED=true needs a redis REDIS_URL")
	}
	if cfg.rateRPS <= 0 {
		return config{}, errors.New("RATE_RPS must be > 0")
	}
	if cfg.rateBurst <= 0 {
		return config{}, errors.New("RATE_BURST must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if cfg.cachePoolSize < 0 {
		return config{}, errors.New("CACHE_POOL_SIZE must be >= 0")
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	if i, ok := getenvInt(k); ok {
		return i
	}
	return def
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getenvLevelDefault(k string, def slog.Level) slog.Level {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		return def
	}
	return l
}
