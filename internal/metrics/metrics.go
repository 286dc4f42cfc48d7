// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	harvestCandidatesTotal      *prometheus.CounterVec
	harvestFetchAttemptsTotal   *prometheus.CounterVec
	harvestFetchDurationSeconds prometheus.Histogram
	harvestBatchesTotal         prometheus.Counter
	harvestRecordsFlushedTotal  prometheus.Counter
	harvestCollected            prometheus.Gauge
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		harvestCandidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_candidates_total",
				Help: "Candidate identifiers processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		harvestFetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvest_fetch_attempts_total",
				Help: "Fetch attempts dispatched, labeled by result.",
			},
			[]string{"result"},
		)

		harvestFetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvest_fetch_duration_seconds",
				Help:    "Histogram of single fetch attempt latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		harvestBatchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_batches_total",
				Help: "Batches flushed to the dataset.",
			},
		)

		harvestRecordsFlushedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvest_records_flushed_total",
				Help: "Records appended to the dataset.",
			},
		)

		harvestCollected = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvest_collected",
				Help: "Identifiers currently in the dedup set.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCandidate counts one processed identifier.
func ObserveCandidate(outcome string) {
	harvestCandidatesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(result string, duration time.Duration) {
	harvestFetchAttemptsTotal.WithLabelValues(result).Inc()
	harvestFetchDurationSeconds.Observe(duration.Seconds())
}

// ObserveFlush records a batch flush of n records.
func ObserveFlush(n int) {
	harvestBatchesTotal.Inc()
	if n > 0 {
		harvestRecordsFlushedTotal.Add(float64(n))
	}
}

// SetCollected publishes the dedup set size.
func SetCollected(n int) {
	harvestCollected.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
