package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Candle cache metrics
	cacheRequests  *prometheus.CounterVec
	gapsDetected   *prometheus.CounterVec
	fetchFailures  *prometheus.CounterVec
	candlesFetched *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec

	// Backtest metrics
	backtestsTotal   *prometheus.CounterVec
	backtestDuration prometheus.Histogram
	backtestTrades   prometheus.Histogram
	jobsActive       *prometheus.GaugeVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_candle_requests_total",
			Help: "Candle lookups by outcome (hit, partial, miss)",
		},
		[]string{"source", "interval", "outcome"},
	)
	r.gapsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_candle_gaps_total",
			Help: "Coverage gaps detected before fetching",
		},
		[]string{"source"},
	)
	r.fetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_fetch_failures_total",
			Help: "Gap fetches that failed and were skipped",
		},
		[]string{"source"},
	)
	r.candlesFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_candles_fetched_total",
			Help: "Candles fetched from external sources and written",
		},
		[]string{"source", "interval"},
	)
	r.fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quarry_fetch_duration_seconds",
			Help:    "Duration of one gap fetch",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"source"},
	)
	r.backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_backtests_total",
			Help: "Total number of backtests",
		},
		[]string{"status"},
	)
	r.backtestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quarry_backtest_duration_seconds",
			Help:    "Backtest duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
	)
	r.backtestTrades = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quarry_backtest_trades",
			Help:    "Trades per completed backtest",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)
	r.jobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quarry_jobs_active",
			Help: "Number of active jobs",
		},
		[]string{"type"},
	)

	reg.MustRegister(r.cacheRequests)
	reg.MustRegister(r.gapsDetected)
	reg.MustRegister(r.fetchFailures)
	reg.MustRegister(r.candlesFetched)
	reg.MustRegister(r.fetchDuration)
	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.backtestTrades)
	reg.MustRegister(r.jobsActive)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordCandleRequest records the cache outcome of one candle lookup.
func (r *Registry) RecordCandleRequest(source, interval, outcome string) {
	r.cacheRequests.WithLabelValues(source, interval, outcome).Inc()
}

// RecordGaps records detected coverage gaps.
func (r *Registry) RecordGaps(source string, n int) {
	r.gapsDetected.WithLabelValues(source).Add(float64(n))
}

// RecordFetch records one gap fetch. A failed fetch counts no candles.
func (r *Registry) RecordFetch(source, interval string, candles int, duration float64, err error) {
	r.fetchDuration.WithLabelValues(source).Observe(duration)
	if err != nil {
		r.fetchFailures.WithLabelValues(source).Inc()
		return
	}
	r.candlesFetched.WithLabelValues(source, interval).Add(float64(candles))
}

// RecordBacktest records a backtest completion.
func (r *Registry) RecordBacktest(status string, duration float64, trades int) {
	r.backtestsTotal.WithLabelValues(status).Inc()
	r.backtestDuration.Observe(duration)
	if status == "completed" {
		r.backtestTrades.Observe(float64(trades))
	}
}

// SetJobsActive sets the number of active jobs of a type.
func (r *Registry) SetJobsActive(jobType string, count int) {
	r.jobsActive.WithLabelValues(jobType).Set(float64(count))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
