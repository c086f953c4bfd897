package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "store",
		Name:      "cache_hits_total",
		Help:      "Activity collections served from cache.",
	})

	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "store",
		Name:      "cache_misses_total",
		Help:      "Activity collection lookups that required an upstream fetch.",
	})

	cacheErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "store",
		Name:      "backend_errors_total",
		Help:      "Cache backend failures grouped by operation.",
	}, []string{"op"})

	fetchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "store",
		Name:      "fetch_errors_total",
		Help:      "Upstream activity fetches that failed.",
	})

	fetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fittrack",
		Subsystem: "store",
		Name:      "fetch_duration_seconds",
		Help:      "Latency of upstream activity fetches.",
		Buckets:   prometheus.DefBuckets,
	})

	sharedFetches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "store",
		Name:      "shared_fetches_total",
		Help:      "Callers that received the result of another caller's in-flight fetch.",
	})

	invalidations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fittrack",
		Subsystem: "store",
		Name:      "invalidations_total",
		Help:      "Cached collections dropped after a write.",
	})
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMisses, cacheErrors, fetchErrors, fetchDuration, sharedFetches, invalidations)
}

func recordFetch(start time.Time, err error) {
	fetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		fetchErrors.Inc()
	}
}
