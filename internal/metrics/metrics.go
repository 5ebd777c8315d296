// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for Publishes.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

var (
	// Publisher.
	Publishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensor_publishes_total",
		Help: "Telemetry envelopes published, by topic and result",
	}, []string{"topic", "result"})

	PublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sensor_publish_duration_seconds",
		Help:    "Time from publish to broker acknowledgement",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	// Diagnostic monitor.
	Observations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensor_observations_total",
		Help: "Messages observed by the diagnostic monitor, by classification",
	}, []string{"class"})

	// Connection events of any session client, by component and event.
	ConnectionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sensor_connection_events_total",
		Help: "Broker connection events, by component and event",
	}, []string{"component", "event"})

	// Dashboard state machine.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_transitions_total",
		Help: "State transitions applied by the dashboard store",
	}, []string{"transition"})

	RejectedTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_rejected_transitions_total",
		Help: "State transitions rejected by a precondition",
	}, []string{"transition"})

	ActiveNotifications = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_active_notifications",
		Help: "Notifications currently shown",
	})

	// Operations HTTP server, labelled by route template.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests served, by method, route and status",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency, by method and route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)
