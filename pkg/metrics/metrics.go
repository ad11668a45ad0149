// Package metrics exposes Prometheus instrumentation for verdant-engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route pattern and
	// status class.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verdant_http_requests_total",
		Help: "Total HTTP requests processed, by method, path and status code.",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration observes request latency per route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "verdant_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// ReadingsIngested counts accepted sensor readings.
	ReadingsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verdant_readings_ingested_total",
		Help: "Sensor readings accepted through the ingest pipeline.",
	})

	// AlertsCreated counts alerts derived during ingestion, by type.
	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verdant_alerts_created_total",
		Help: "Alerts created by threshold evaluation.",
	}, []string{"type"})

	// CommandsEnqueued counts commands added to the queue, by command type.
	CommandsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verdant_commands_enqueued_total",
		Help: "Commands enqueued for device delivery.",
	}, []string{"command_type"})

	// CommandsClaimed counts commands handed out to polling devices.
	CommandsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verdant_commands_claimed_total",
		Help: "Commands claimed by device polls.",
	})

	// CommandsAcknowledged counts terminal acknowledgments, by outcome.
	CommandsAcknowledged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verdant_commands_acknowledged_total",
		Help: "Commands acknowledged by devices, by final status.",
	}, []string{"status"})

	// ScheduleDispatches counts watering schedule firings.
	ScheduleDispatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verdant_schedule_dispatches_total",
		Help: "Watering schedule firings that enqueued a command.",
	})

	// StaleDevicesMarked counts devices flipped offline by the sweep.
	StaleDevicesMarked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "verdant_stale_devices_marked_total",
		Help: "Devices marked offline by the liveness sweep.",
	})
)
