package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the server's prometheus collectors.
type Metrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	receivedBytes  prometheus.Counter
	storedImages   *prometheus.CounterVec
	emergencyCalls prometheus.Counter
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gophupload",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gophupload",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		receivedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gophupload",
			Subsystem: "uploads",
			Name:      "received_bytes_total",
			Help:      "Decoded upload payload bytes received",
		}),
		storedImages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gophupload",
			Subsystem: "uploads",
			Name:      "stored_images_total",
			Help:      "Images stored by upload method",
		}, []string{"method"}),
		emergencyCalls: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gophupload",
			Subsystem: "uploads",
			Name:      "emergency_requests_total",
			Help:      "Requests sent by the emergency transport",
		}),
	}
}
