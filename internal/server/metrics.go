package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stereorect_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stereorect_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Rectification metrics
	rectifyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stereorect_rectify_requests_total",
			Help: "Total number of rectification requests",
		},
		[]string{"type", "status"}, // type: transforms, images, websocket_setup, websocket_frame
	)

	rectifyProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stereorect_rectify_processing_duration_seconds",
			Help:    "Rectification processing duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"type"},
	)

	rowResidual = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stereorect_row_residual_pixels",
			Help:    "RMS row difference of rectified correspondences",
			Buckets: []float64{1e-6, 1e-4, 1e-2, .1, .5, 1, 2, 5, 10},
		},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stereorect_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"type"}, // type: requests, upload
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stereorect_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024, 100 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stereorect_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stereorect_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)
