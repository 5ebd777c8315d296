// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package diagnostic observes every message on the broker for a bounded
// window and reports how each payload classifies against the telemetry
// format.
package diagnostic

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/TranDung6129/sensor-telemetry/errors"
	"github.com/TranDung6129/sensor-telemetry/internal/log"
	"github.com/TranDung6129/sensor-telemetry/internal/metrics"
	"github.com/TranDung6129/sensor-telemetry/internal/wallclock"
	"github.com/TranDung6129/sensor-telemetry/mqtt"
	"github.com/TranDung6129/sensor-telemetry/telemetry"
	"github.com/google/uuid"
)

type (
	// Subscriber is the part of the MQTT session client the monitor uses.
	Subscriber interface {
		Subscribe(
			ctx context.Context,
			filter string,
			handler mqtt.MessageHandler,
			opts ...mqtt.SubscribeOption,
		) (mqtt.Subscription, error)
		RegisterConnectEventHandler(mqtt.ConnectEventHandler) func()
		RegisterDisconnectEventHandler(mqtt.DisconnectEventHandler) func()
		RegisterFatalErrorHandler(mqtt.FatalErrorHandler) func()
	}

	// Monitor subscribes to a topic filter, "#" by default, and classifies
	// every message it receives until its observation window closes.
	Monitor struct {
		client   Subscriber
		options  MonitorOptions
		reporter Reporter
		log      log.Logger

		ran      atomic.Bool
		handlers []func()

		recognized   atomic.Int64
		unrecognized atomic.Int64
		opaque       atomic.Int64
		connects     atomic.Int64
		disconnects  atomic.Int64
		failures     atomic.Int64
	}

	// Summary totals one run.
	Summary struct {
		Recognized   int64
		Unrecognized int64
		Opaque       int64
		Connects     int64
		Disconnects  int64

		// Failures counts fatal client errors and failed subscriptions.
		Failures int64
	}

	// Observation is one classified message.
	Observation struct {
		ID         uuid.UUID
		Topic      string
		ReceivedAt time.Time
		Decoded    *telemetry.Decoded

		// Err explains why the payload was not recognized.
		Err error
	}
)

const (
	DefaultFilter = "#"
	DefaultWindow = 60 * time.Second
)

// NewMonitor creates a monitor over a session client. Connection events are
// tracked from this point on, so create the monitor before starting the
// client to see its first connection.
func NewMonitor(client Subscriber, opts ...MonitorOption) (*Monitor, error) {
	if client == nil {
		return nil, &errors.Error{
			Message: "monitor needs a client",
			Kind:    errors.ArgumentInvalid,
		}
	}

	m := &Monitor{client: client}
	m.options.Apply(opts)

	if m.options.Window < 0 {
		return nil, &errors.Error{
			Message:       "observation window must not be negative",
			Kind:          errors.ArgumentInvalid,
			PropertyName:  "Window",
			PropertyValue: m.options.Window,
		}
	}
	if m.options.Filter == "" {
		m.options.Filter = DefaultFilter
	}
	if err := mqtt.ValidateTopicFilter(m.options.Filter); err != nil {
		return nil, &errors.Error{
			Message:       "invalid topic filter",
			Kind:          errors.ArgumentInvalid,
			NestedError:   err,
			PropertyName:  "Filter",
			PropertyValue: m.options.Filter,
		}
	}
	if m.options.Window == 0 {
		m.options.Window = DefaultWindow
	}
	if m.options.Clock == nil {
		m.options.Clock = wallclock.Instance
	}

	m.log = log.Wrap(m.options.Logger)
	m.reporter = m.options.Reporter
	if m.reporter == nil {
		m.reporter = &LogReporter{Logger: m.options.Logger}
	}

	m.handlers = []func(){
		client.RegisterConnectEventHandler(func(*mqtt.ConnectEvent) {
			m.connects.Add(1)
			m.connection(context.Background(), Connected, nil)
		}),
		client.RegisterDisconnectEventHandler(func(e *mqtt.DisconnectEvent) {
			m.disconnects.Add(1)
			m.connection(context.Background(), Disconnected, e.Error)
		}),
		client.RegisterFatalErrorHandler(func(err error) {
			m.failures.Add(1)
			m.connection(context.Background(), Failed, err)
		}),
	}
	return m, nil
}

// Run observes until the window closes or ctx is cancelled, whichever is
// first. Connection failures, including a failed subscription, are reported
// and never end the run early. A monitor runs once; its connection handlers
// are removed when Run returns.
func (m *Monitor) Run(ctx context.Context) (Summary, error) {
	if !m.ran.CompareAndSwap(false, true) {
		return m.Summary(), &errors.Error{
			Message: "monitor has already run",
			Kind:    errors.StateInvalid,
		}
	}
	defer func() {
		for _, remove := range m.handlers {
			remove()
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	window := m.options.Clock.AfterFunc(m.options.Window, cancel)
	defer window.Stop()

	m.log.Info(ctx, "observing",
		slog.String("filter", m.options.Filter),
		slog.Duration("window", m.options.Window),
	)

	sub, err := m.client.Subscribe(ctx, m.options.Filter, m.handle,
		mqtt.WithQoS(mqtt.QoS1),
	)
	switch {
	case err == nil:
		m.reporter.Subscribed(ctx, m.options.Filter)
	case ctx.Err() == nil:
		m.failures.Add(1)
		m.connection(ctx, Failed, &errors.Error{
			Message:     "cannot subscribe to " + m.options.Filter,
			Kind:        errors.TransportError,
			NestedError: err,
		})
	}

	<-ctx.Done()

	if sub != nil {
		unsubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := sub.Unsubscribe(unsubCtx); err != nil {
			m.log.Warn(ctx, "unsubscribe failed", slog.String("error", err.Error()))
		}
	}

	summary := m.Summary()
	m.log.Info(ctx, "observation window closed",
		slog.Int64("recognized", summary.Recognized),
		slog.Int64("unrecognized", summary.Unrecognized),
		slog.Int64("opaque", summary.Opaque),
		slog.Int64("failures", summary.Failures),
	)
	return summary, nil
}

// Summary returns the totals observed so far.
func (m *Monitor) Summary() Summary {
	return Summary{
		Recognized:   m.recognized.Load(),
		Unrecognized: m.unrecognized.Load(),
		Opaque:       m.opaque.Load(),
		Connects:     m.connects.Load(),
		Disconnects:  m.disconnects.Load(),
		Failures:     m.failures.Load(),
	}
}

func (m *Monitor) handle(ctx context.Context, msg *mqtt.Message) {
	d, err := telemetry.Decode(msg.Payload)

	switch d.Class {
	case telemetry.Recognized:
		m.recognized.Add(1)
	case telemetry.Unrecognized:
		m.unrecognized.Add(1)
	default:
		m.opaque.Add(1)
	}
	metrics.Observations.WithLabelValues(d.Class.String()).Inc()

	id, idErr := uuid.NewV7()
	if idErr != nil {
		id = uuid.New()
	}
	m.reporter.Observed(ctx, &Observation{
		ID:         id,
		Topic:      msg.Topic,
		ReceivedAt: m.options.Clock.Now(),
		Decoded:    d,
		Err:        err,
	})
}

func (m *Monitor) connection(ctx context.Context, kind ConnectionKind, err error) {
	metrics.ConnectionEvents.WithLabelValues("monitor", kind.String()).Inc()
	m.reporter.Connection(ctx, ConnectionEvent{Kind: kind, Err: err})
}
