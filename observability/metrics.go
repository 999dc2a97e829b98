package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_relay_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Session metrics
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_relay_active_sessions",
			Help: "Sessions currently open",
		},
	)

	EnvelopesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_envelopes_dropped_total",
			Help: "Inbound envelopes dropped before reaching the coordinator",
		},
		[]string{"reason"}, // "malformed", "mismatch", "rate_limited"
	)

	// Engine metrics
	ActionsHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_actions_total",
			Help: "Actions handled by the coordinator",
		},
		[]string{"action", "outcome"}, // outcome: "ok", "failed", "ignored"
	)

	EventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_relay_events_published_total",
			Help: "Events handed to the fanout",
		},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_relay_deliveries_total",
			Help: "Per session deliveries attempted by the fanout",
		},
		[]string{"outcome"}, // "ok", "evicted"
	)

	FanoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_relay_fanout_duration_seconds",
			Help:    "Time spent delivering one event to every member",
			Buckets: []float64{.00005, .0001, .0005, .001, .005, .01, .05},
		},
	)

	// Storage metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_relay_store_latency_seconds",
			Help:    "Message store and directory operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"operation"},
	)

	// Process metrics, sampled by the health monitoring worker
	ActiveConversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_relay_active_conversations",
			Help: "Conversations with at least one live session",
		},
	)

	FanoutQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_relay_fanout_queue_length",
			Help: "Events waiting in the fanout channel",
		},
	)

	ProcessCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_relay_process_cpu_percent",
			Help: "CPU usage of the relay process",
		},
	)

	ProcessMemoryPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_relay_process_memory_percent",
			Help: "Memory usage of the relay process",
		},
	)
)
