// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package metrics_test

import (
	"testing"

	"github.com/TranDung6129/sensor-telemetry/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCollectorsAreRegistered(t *testing.T) {
	metrics.Publishes.WithLabelValues("sensor/data", metrics.ResultOK).Inc()
	metrics.Observations.WithLabelValues("recognized").Inc()
	metrics.ConnectionEvents.WithLabelValues("monitor", "connected").Inc()
	metrics.Transitions.WithLabelValues("SetLoading").Inc()
	metrics.RejectedTransitions.WithLabelValues("SetPage").Inc()
	metrics.PublishDuration.Observe(0.01)
	metrics.ActiveNotifications.Set(2)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"sensor_publishes_total",
		"sensor_publish_duration_seconds",
		"sensor_observations_total",
		"sensor_connection_events_total",
		"dashboard_transitions_total",
		"dashboard_rejected_transitions_total",
		"dashboard_active_notifications",
	} {
		require.True(t, names[want], want)
	}
}

func TestCounterValues(t *testing.T) {
	c := metrics.Observations.WithLabelValues("opaque")
	before := value(t, c)
	c.Inc()
	c.Inc()
	require.Equal(t, before+2, value(t, c))
}

func value(t *testing.T, c prometheus.Counter) float64 {
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
