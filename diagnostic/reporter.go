// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package diagnostic

import (
	"context"
	"log/slog"

	"github.com/TranDung6129/sensor-telemetry/internal/log"
	"github.com/TranDung6129/sensor-telemetry/telemetry"
)

type (
	// Reporter receives everything the monitor observes. Observed is called
	// from the client's receive goroutine.
	Reporter interface {
		Observed(context.Context, *Observation)
		Connection(context.Context, ConnectionEvent)
		Subscribed(ctx context.Context, filter string)
	}

	// ConnectionKind distinguishes connection events.
	ConnectionKind int

	// ConnectionEvent is a change in the monitor's broker connection.
	ConnectionEvent struct {
		Kind ConnectionKind
		Err  error
	}

	// LogReporter writes observations to a structured logger.
	LogReporter struct {
		Logger *slog.Logger
	}
)

const (
	Connected ConnectionKind = iota
	Disconnected
	Failed
)

func (k ConnectionKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "failed"
	}
}

// Observed logs recognized telemetry at info, unrecognized structured
// payloads at warn and anything else as an opaque string.
func (r *LogReporter) Observed(ctx context.Context, o *Observation) {
	l := log.Wrap(r.Logger)
	attrs := []slog.Attr{
		slog.String("id", o.ID.String()),
		slog.String("topic", o.Topic),
	}

	switch o.Decoded.Class {
	case telemetry.Recognized:
		l.Info(ctx, "telemetry received", append(attrs, telemetryAttrs(o.Decoded)...)...)

	case telemetry.Unrecognized:
		attrs = append(attrs, slog.String("payload", string(o.Decoded.Raw)))
		if o.Err != nil {
			attrs = append(attrs, slog.String("error", o.Err.Error()))
		}
		l.Warn(ctx, "unrecognized payload", attrs...)

	default:
		l.Info(ctx, "opaque payload",
			append(attrs, slog.String("payload", string(o.Decoded.Raw)))...,
		)
	}
}

// Connection logs connection changes. A lost connection is a warning since
// the client reconnects on its own.
func (r *LogReporter) Connection(ctx context.Context, e ConnectionEvent) {
	l := log.Wrap(r.Logger)
	switch e.Kind {
	case Connected:
		l.Info(ctx, "connected to broker")
	case Disconnected:
		if e.Err == nil {
			l.Info(ctx, "disconnected from broker")
			return
		}
		l.Warn(ctx, "broker went offline", slog.String("error", e.Err.Error()))
	default:
		l.Err(ctx, e.Err)
	}
}

// Subscribed logs the active filter.
func (r *LogReporter) Subscribed(ctx context.Context, filter string) {
	l := log.Wrap(r.Logger)
	l.Info(ctx, "subscribed", slog.String("filter", filter))
}

func telemetryAttrs(d *telemetry.Decoded) []slog.Attr {
	if e := d.Envelope; e != nil {
		return []slog.Attr{
			slog.String("device_id", e.DeviceID),
			slog.Float64("temperature", e.Temperature),
			slog.Float64("humidity", e.Humidity),
			slog.Float64("pressure", e.Pressure),
			slog.Float64("light", e.Light),
			slog.Int("battery_level", e.BatteryLevel),
			slog.Int("signal_strength", e.SignalStrength),
			slog.Time("timestamp", e.Timestamp),
		}
	}
	if p := d.DataPoints; p != nil {
		attrs := []slog.Attr{
			slog.String("device_id", p.DeviceID),
			slog.Time("timestamp", p.Timestamp),
		}
		for _, dp := range p.DataPoints {
			attrs = append(attrs, slog.Float64(dp.Sensor, dp.Value))
		}
		return attrs
	}
	return nil
}
