package observation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tsa_store_fetch_duration_seconds",
		Help:    "Duration of observation store fetches",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	fetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tsa_store_fetch_retries_total",
		Help: "Observation store fetches retried after a failure",
	})

	breakerRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tsa_store_breaker_rejections_total",
		Help: "Observation store fetches rejected by the open circuit breaker",
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tsa_store_cache_hits_total",
		Help: "Observation fetches served from the per-pass cache",
	})
)
