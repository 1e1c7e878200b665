package main

import (
	"encoding/json"
	"net/http"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
)

type healthStatus struct {
	StoreBreaker   string `json:"store_breaker"`
	ConsumerLag    int64  `json:"consumer_lag"`
	ConsumerErrors int64  `json:"consumer_errors"`
	Messages       int64  `json:"messages"`
}

// healthHandler reports the store breaker state and request consumer
// statistics. An open breaker answers 503.
func healthHandler(breakerState func() string, consumerStats func() kafka.ReaderStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := consumerStats()
		status := healthStatus{
			StoreBreaker:   breakerState(),
			ConsumerLag:    stats.Lag,
			ConsumerErrors: stats.Errors,
			Messages:       stats.Messages,
		}

		code := http.StatusOK
		if status.StoreBreaker == gobreaker.StateOpen.String() {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}
