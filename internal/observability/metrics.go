package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PhotosQueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sfp",
		Name:      "photos_queued_total",
		Help:      "Total number of photos admitted to the ingestion pipeline",
	})

	PhotosProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sfp",
		Name:      "photos_processed_total",
		Help:      "Total number of photos that reached a terminal state",
	}, []string{"outcome"}) // done, skipped_duplicate, failed

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sfp",
		Name:      "faces_detected_total",
		Help:      "Total number of faces extracted from ingested photos",
	})

	PersonsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sfp",
		Name:      "persons_created_total",
		Help:      "Total number of new person identities created by the resolver",
	})

	ResolverFailOpen = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sfp",
		Name:      "resolver_fail_open_total",
		Help:      "Times the resolver created a new person because the nearest-neighbor query failed",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sfp",
		Name:      "ingest_stage_duration_seconds",
		Help:      "Duration of ingestion pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"}) // extract, dedup, resolve, persist

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sfp",
		Name:      "queue_depth",
		Help:      "Number of pending photo tasks in the queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sfp",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sfp",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
