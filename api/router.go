package api

import (
	"log/slog"
	"net/http"
	"time"

	"user-service/metrics"
	"user-service/users/domain"
)

// Metrics is what the HTTP layer needs from the aggregator.
type Metrics interface {
	RecordDuration(seconds float64)
	Export() ([]byte, error)
}

type Deps struct {
	Users   Users
	Metrics Metrics
	// Checks are pinged by /health, keyed by component name.
	Checks  map[string]domain.Pinger
	Version string
	Logger  *slog.Logger
	// HealthTimeout bounds all pings of one /health call. Defaults to 2s.
	HealthTimeout time.Duration
	Now           func() time.Time
}

// NewRouter wires the routes and wraps them in duration instrumentation.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.HealthTimeout <= 0 {
		d.HealthTimeout = 2 * time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Version == "" {
		d.Version = "dev"
	}

	users := &userHandlers{users: d.Users, logger: d.Logger}

	mux := http.NewServeMux()
	mux.Handle("GET /health", &healthHandler{checks: d.Checks, version: d.Version, timeout: d.HealthTimeout, now: d.Now})
	mux.HandleFunc("GET /api/users", users.list)
	mux.HandleFunc("POST /api/users", users.create)
	mux.HandleFunc("GET /api/users/{id}", users.get)
	mux.HandleFunc("GET /api/stats", users.stats)
	mux.HandleFunc("GET /metrics", metricsHandler(d.Metrics, d.Logger))

	return instrument(d.Metrics, d.Logger, d.Now)(mux)
}

func metricsHandler(m Metrics, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := m.Export()
		if err != nil {
			logger.ErrorContext(r.Context(), "metrics export failed", slog.Any("error", err))
			status := http.StatusInternalServerError
			writeJSON(w, status, errorBody{Error: "Internal error", Status: status})
			return
		}
		w.Header().Set("Content-Type", string(metrics.ContentType))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func instrument(m Metrics, logger *slog.Logger, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			elapsed := now().Sub(start)
			m.RecordDuration(elapsed.Seconds())
			logger.DebugContext(r.Context(), "request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}
