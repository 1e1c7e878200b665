package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	conditionsEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tsa_conditions_evaluated_total",
		Help: "Conditions processed by evaluation passes, by outcome",
	}, []string{"status"})

	collectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tsa_collection_duration_seconds",
		Help:    "Duration of collection evaluation passes",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"result"})
)

const (
	statusOK      = "ok"
	statusFailed  = "failed"
	statusBlocked = "blocked"
	statusInvalid = "invalid"
)
