package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AcceptAttempts  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "glide", Name: "accept_attempts_total", Help: "Total ride accept attempts"})
	AcceptConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "glide", Name: "accept_conflicts_total", Help: "Accept attempts rejected because the ride was no longer pending"})
	Reassignments   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "glide", Name: "reassignments_total", Help: "Rides re-entered into matching after a driver dropped out"})
	DispatchScans   = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "glide", Name: "dispatch_scan_seconds", Help: "Latency of candidate-set scans"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "glide", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
)
