package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SessionsEstablished counts agent sessions that completed the handshake
	SessionsEstablished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spearhead",
			Name:      "sessions_established_total",
			Help:      "Total number of agent sessions that completed the handshake",
		},
	)

	// SessionsFailed counts sessions that never completed the handshake
	SessionsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spearhead",
			Name:      "sessions_failed_total",
			Help:      "Total number of agent sessions that failed the handshake",
		},
	)

	// SessionsActive tracks currently live agent sessions
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spearhead",
			Name:      "sessions_active",
			Help:      "Number of currently live agent sessions",
		},
	)

	// FramesTotal counts frames moved over agent sessions by direction
	FramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spearhead",
			Name:      "frames_total",
			Help:      "Total number of frames exchanged with agents",
		},
		[]string{"direction"},
	)

	// EventsIngested counts events accepted onto the processing queue
	EventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spearhead",
			Name:      "events_ingested_total",
			Help:      "Total number of events accepted onto the processing queue",
		},
		[]string{"kind"},
	)

	// EventsDropped counts events rejected before processing
	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spearhead",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped before processing",
		},
		[]string{"reason"},
	)

	// QueueDepth tracks the number of events waiting in the processing queue
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spearhead",
			Name:      "event_queue_depth",
			Help:      "Number of events waiting in the processing queue",
		},
	)

	// CampaignsOpened counts campaigns opened by the correlator
	CampaignsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spearhead",
			Name:      "campaigns_opened_total",
			Help:      "Total number of campaigns opened by the correlator",
		},
	)

	// CampaignsClosed counts campaigns closed after inactivity
	CampaignsClosed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spearhead",
			Name:      "campaigns_closed_total",
			Help:      "Total number of campaigns closed after inactivity",
		},
	)

	// HeartbeatsReceived counts heartbeats accepted from agents
	HeartbeatsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "spearhead",
			Name:      "heartbeats_received_total",
			Help:      "Total number of heartbeats accepted from agents",
		},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry
// This function is idempotent and can be called multiple times safely
func InitMetrics() {
	once.Do(func() {
		// Register metrics, ignoring errors if already registered
		// This prevents panics when metrics are already in the registry
		prometheus.DefaultRegisterer.Register(SessionsEstablished)
		prometheus.DefaultRegisterer.Register(SessionsFailed)
		prometheus.DefaultRegisterer.Register(SessionsActive)
		prometheus.DefaultRegisterer.Register(FramesTotal)
		prometheus.DefaultRegisterer.Register(EventsIngested)
		prometheus.DefaultRegisterer.Register(EventsDropped)
		prometheus.DefaultRegisterer.Register(QueueDepth)
		prometheus.DefaultRegisterer.Register(CampaignsOpened)
		prometheus.DefaultRegisterer.Register(CampaignsClosed)
		prometheus.DefaultRegisterer.Register(HeartbeatsReceived)
	})
}
