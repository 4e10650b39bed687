package metrics

import (
	"bytes"
	"context"
	"fmt"
	"time"

	ratedomain "user-service/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Snapshot is the point-in-time view served by the stats endpoint.
type Snapshot struct {
	CacheHits         uint64
	CacheMisses       uint64
	TotalRequests     uint64
	RequestsPerSecond float64
}

// Aggregator holds the process counters. All methods are safe for
// concurrent use; counters only ever increase.
type Aggregator struct {
	registry *prometheus.Registry

	requestsTotal      prometheus.Counter
	requestsByEndpoint *prometheus.CounterVec
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	cacheErrors        *prometheus.CounterVec
	rateLimited        prometheus.Counter
	requestDuration    prometheus.Histogram

	startedAt time.Time
	now       func() time.Time
	runtime   bool
}

type Option func(*Aggregator)

// WithClock replaces time.Now for uptime calculations.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithRuntimeCollectors also exports Go runtime and process metrics.
func WithRuntimeCollectors() Option {
	return func(a *Aggregator) { a.runtime = true }
}

func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		registry: prometheus.NewRegistry(),
		now:      time.Now,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}),
		requestsByEndpoint: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_by_endpoint_total",
			Help: "Total number of HTTP requests by endpoint",
		}, []string{"endpoint"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_errors_total",
			Help: "Total number of failed cache operations",
		}, []string{"op"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Total number of requests rejected by admission control",
		}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.startedAt = a.now()

	a.registry.MustRegister(
		a.requestsTotal,
		a.requestsByEndpoint,
		a.cacheHits,
		a.cacheMisses,
		a.cacheErrors,
		a.rateLimited,
		a.requestDuration,
	)
	if a.runtime {
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return a
}

func (a *Aggregator) RecordRequest(endpoint string) {
	a.requestsTotal.Inc()
	a.requestsByEndpoint.WithLabelValues(endpoint).Inc()
}

func (a *Aggregator) RecordCacheHit()  { a.cacheHits.Inc() }
func (a *Aggregator) RecordCacheMiss() { a.cacheMisses.Inc() }

// RecordCacheError counts a failed cache operation (get, set, delete).
func (a *Aggregator) RecordCacheError(op string) {
	a.cacheErrors.WithLabelValues(op).Inc()
}

func (a *Aggregator) RecordRateLimited() { a.rateLimited.Inc() }

func (a *Aggregator) RecordDuration(seconds float64) {
	a.requestDuration.Observe(seconds)
}

// Record implements the admission StatsStore contract: only rejections
// are counted here, allowed requests are covered by RecordRequest.
func (a *Aggregator) Record(_ context.Context, ev ratedomain.StatsEvent) error {
	if !ev.Allowed {
		a.RecordRateLimited()
	}
	return nil
}

// Snapshot reads the counters. RequestsPerSecond is total requests over
// uptime, and 0 while uptime is 0.
func (a *Aggregator) Snapshot() Snapshot {
	total := counterValue(a.requestsTotal)

	var rps float64
	if uptime := a.now().Sub(a.startedAt).Seconds(); uptime > 0 {
		rps = float64(total) / uptime
	}

	return Snapshot{
		CacheHits:         counterValue(a.cacheHits),
		CacheMisses:       counterValue(a.cacheMisses),
		TotalRequests:     total,
		RequestsPerSecond: rps,
	}
}

// Export renders every registered metric in the text exposition format.
func (a *Aggregator) Export() ([]byte, error) {
	families, err := a.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("metrics: gather: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, ContentType)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return nil, fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

// ContentType is the exposition format produced by Export.
var ContentType = expfmt.NewFormat(expfmt.TypeTextPlain)

func counterValue(c prometheus.Counter) uint64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return uint64(m.GetCounter().GetValue())
}

var _ ratedomain.StatsStore = (*Aggregator)(nil)
