package api

import "github.com/prometheus/client_golang/prometheus"

var (
	// apiReqs counts outgoing requests by logical endpoint and status code
	// ("error" for transport failures).
	apiReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cafe_api_requests_total",
			Help: "Total number of requests issued to the remote café API.",
		},
		[]string{"endpoint", "status"},
	)

	// apiLat records round-trip duration by logical endpoint.
	apiLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cafe_api_request_duration_seconds",
			Help:    "Duration of remote café API requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// apiInflight gauges requests awaiting a response.
	apiInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cafe_api_requests_inflight",
			Help: "Current number of in-flight remote café API requests.",
		},
	)
)

func init() {
	prometheus.MustRegister(apiReqs, apiLat, apiInflight)
}
