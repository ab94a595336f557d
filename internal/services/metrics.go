package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// sessionRefresh counts refresh attempts by outcome:
	// "success", "failure", or "rotated" (already refreshed by another caller).
	sessionRefresh = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_refresh_total",
			Help: "Total number of access token refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// cacheLookups counts collection cache decisions by resource kind and
	// outcome: "hit", "miss", "stale", or "error".
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collection_cache_lookups_total",
			Help: "Total number of remote collection cache lookups by resource and outcome.",
		},
		[]string{"resource", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(sessionRefresh, cacheLookups)
}
