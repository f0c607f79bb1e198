// Package metrics exposes Prometheus collectors for the crawler and search service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crawlsearch"

var (
	crawlAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "crawl",
		Name:      "attempts_total",
		Help:      "Crawl attempts by outcome.",
	}, []string{"outcome"})

	crawlsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "crawl",
		Name:      "in_flight",
		Help:      "Crawl attempts currently running.",
	})

	fetchedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fetch",
		Name:      "bytes_total",
		Help:      "Response body bytes fetched.",
	})

	robotsLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "robots",
		Name:      "lookups_total",
		Help:      "robots.txt lookups by result.",
	}, []string{"result"})

	searchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "duration_seconds",
		Help:      "Search query latency. The sample count is the number of queries served.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 9),
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "code"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route pattern.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "route"})
)

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawl counts one finished crawl attempt.
func ObserveCrawl(outcome string) {
	crawlAttempts.WithLabelValues(outcome).Inc()
}

// ObserveFetch records the body size of a fetched page.
func ObserveFetch(n int) {
	if n > 0 {
		fetchedBytes.Add(float64(n))
	}
}

// ObserveRobots counts a robots.txt lookup.
func ObserveRobots(result string) {
	robotsLookups.WithLabelValues(result).Inc()
}

// IncInFlight and DecInFlight bracket a running crawl attempt.
func IncInFlight() { crawlsInFlight.Inc() }

// DecInFlight ends a crawl attempt started with IncInFlight.
func DecInFlight() { crawlsInFlight.Dec() }

// ObserveSearch records one executed query.
func ObserveSearch(d time.Duration) {
	searchLatency.Observe(d.Seconds())
}

func observeHTTP(method, route string, code int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}
