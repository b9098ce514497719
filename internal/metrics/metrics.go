// Package metrics defines prometheus metrics to expose
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peerbridge_request_duration_seconds",
			Help:    "Total time taken for gateway requests in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120, 180, 300, 600},
		},
		[]string{"status"},
	)

	TimeToFirstFragment = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "peerbridge_time_to_first_fragment_seconds",
			Help:    "Time until the pipeline delivered its first fragment",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
		},
		[]string{"agent_id"},
	)

	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerbridge_request_count_total",
			Help: "Total number of requests processed",
		},
		[]string{"status"},
	)

	RejectedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerbridge_rejected_requests_total",
			Help: "Requests rejected before reaching the pipeline",
		},
		[]string{"reason"},
	)

	InflightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "peerbridge_inflight_requests",
			Help: "Current admitted requests",
		},
	)

	BuyerInflightRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "peerbridge_buyer_inflight_requests",
			Help: "Current inflight requests per buyer",
		},
		[]string{"buyer"},
	)

	FragmentsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerbridge_fragments_delivered_total",
			Help: "Output fragments delivered by the pipeline",
		},
		[]string{"agent_id"},
	)

	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerbridge_error_count",
			Help: "Error count",
		},
		[]string{"from"},
	)

	ResponseCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "peerbridge_status_code",
			Help: "Status Codes",
		},
		[]string{"path", "status_code"},
	)
)
