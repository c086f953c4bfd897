// Package observability holds the HTTP and activity watermark collectors.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests grouped by route, method and status code.",
	}, []string{"route", "method", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fittrack",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	latestActivityGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fittrack",
		Subsystem: "insights",
		Name:      "latest_activity_timestamp_seconds",
		Help:      "Unix timestamp of the newest activity seen in any aggregated collection.",
	})

	upstreamFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "insights",
		Name:      "upstream_failures_total",
		Help:      "Upstream reads that degraded to an empty result, by call.",
	}, []string{"call"})
)

func init() {
	prometheus.MustRegister(httpRequests, httpDuration, latestActivityGauge, upstreamFailures)
}

// RecordRequest counts a served request.
func RecordRequest(route, method string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

var (
	watermarkMu sync.Mutex
	watermark   int64
)

// RecordActivitySeen moves the newest-activity watermark forward. Older
// timestamps leave it unchanged.
func RecordActivitySeen(ts time.Time) {
	if ts.IsZero() {
		return
	}
	watermarkMu.Lock()
	defer watermarkMu.Unlock()
	if unix := ts.Unix(); unix > watermark {
		watermark = unix
		latestActivityGauge.Set(float64(unix))
	}
}

// RecordUpstreamFailure counts a read that fell back to an empty result.
func RecordUpstreamFailure(call string) {
	upstreamFailures.WithLabelValues(call).Inc()
}
