// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package diagnostic_test

import (
	"context"
	stderr "errors"
	"sync"
	"testing"
	"time"

	"github.com/TranDung6129/sensor-telemetry/diagnostic"
	"github.com/TranDung6129/sensor-telemetry/errors"
	"github.com/TranDung6129/sensor-telemetry/internal/container"
	"github.com/TranDung6129/sensor-telemetry/internal/wallclock"
	"github.com/TranDung6129/sensor-telemetry/mqtt"
	"github.com/TranDung6129/sensor-telemetry/simulator"
	"github.com/TranDung6129/sensor-telemetry/telemetry"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	mu           sync.Mutex
	filter       string
	handler      mqtt.MessageHandler
	unsubscribed bool
	err          error

	connect    container.Handlers[mqtt.ConnectEventHandler]
	disconnect container.Handlers[mqtt.DisconnectEventHandler]
	fatal      container.Handlers[mqtt.FatalErrorHandler]
}

func (f *fakeSubscriber) Subscribe(
	_ context.Context,
	filter string,
	handler mqtt.MessageHandler,
	_ ...mqtt.SubscribeOption,
) (mqtt.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.filter = filter
	f.handler = handler
	return f, nil
}

func (f *fakeSubscriber) Filter() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filter
}

func (f *fakeSubscriber) Unsubscribe(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = true
	f.handler = nil
	return nil
}

func (f *fakeSubscriber) RegisterConnectEventHandler(
	h mqtt.ConnectEventHandler,
) func() {
	return f.connect.Add(h)
}

func (f *fakeSubscriber) RegisterDisconnectEventHandler(
	h mqtt.DisconnectEventHandler,
) func() {
	return f.disconnect.Add(h)
}

func (f *fakeSubscriber) RegisterFatalErrorHandler(
	h mqtt.FatalErrorHandler,
) func() {
	return f.fatal.Add(h)
}

func (f *fakeSubscriber) deliver(topic string, payload []byte) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(context.Background(), &mqtt.Message{
			Topic:   topic,
			Payload: payload,
		})
	}
}

type recorder struct {
	mu           sync.Mutex
	observations []*diagnostic.Observation
	events       []diagnostic.ConnectionEvent
	subscribed   chan string
}

func newRecorder() *recorder {
	return &recorder{subscribed: make(chan string, 1)}
}

func (r *recorder) Observed(_ context.Context, o *diagnostic.Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observations = append(r.observations, o)
}

func (r *recorder) Connection(_ context.Context, e diagnostic.ConnectionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Subscribed(_ context.Context, filter string) {
	select {
	case r.subscribed <- filter:
	default:
	}
}

func (r *recorder) classes() []telemetry.Class {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]telemetry.Class, len(r.observations))
	for i, o := range r.observations {
		out[i] = o.Decoded.Class
	}
	return out
}

func (r *recorder) waitSubscribed(t *testing.T) string {
	t.Helper()
	select {
	case filter := <-r.subscribed:
		return filter
	case <-time.After(5 * time.Second):
		require.FailNow(t, "monitor never subscribed")
		return ""
	}
}

type runResult struct {
	summary diagnostic.Summary
	err     error
}

func run(ctx context.Context, m *diagnostic.Monitor) <-chan runResult {
	done := make(chan runResult, 1)
	go func() {
		s, err := m.Run(ctx)
		done <- runResult{s, err}
	}()
	return done
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func validPayload(t *testing.T, clock wallclock.WallClock) []byte {
	gen := simulator.NewGenerator("sensor-001", "Server Room", 7, clock, time.UTC)
	payload, err := telemetry.Encode(gen.Next())
	require.NoError(t, err)
	return payload
}

func TestMonitorClassifiesUntilWindowCloses(t *testing.T) {
	clock := wallclock.NewManual(epoch)
	sub := &fakeSubscriber{}
	rec := newRecorder()

	m, err := diagnostic.NewMonitor(sub,
		diagnostic.WithClock(clock),
		diagnostic.WithReporter(rec),
		diagnostic.WithWindow(12*time.Second),
	)
	require.NoError(t, err)

	done := run(context.Background(), m)
	require.Equal(t, "#", rec.waitSubscribed(t))

	valid := validPayload(t, clock)
	sub.deliver("sensor/data", valid)
	sub.deliver("sensor/other", []byte(`{"foo":1}`))
	sub.deliver("sensor/data", valid)
	sub.deliver("sensor/raw", []byte("hello"))

	clock.Advance(11 * time.Second)
	select {
	case <-done:
		require.FailNow(t, "run ended before the window closed")
	default:
	}

	clock.Advance(time.Second)
	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, diagnostic.Summary{
		Recognized:   2,
		Unrecognized: 1,
		Opaque:       1,
	}, res.summary)

	require.Equal(t, []telemetry.Class{
		telemetry.Recognized,
		telemetry.Unrecognized,
		telemetry.Recognized,
		telemetry.Opaque,
	}, rec.classes())

	unrecognized := rec.observations[1]
	require.Equal(t, "sensor/other", unrecognized.Topic)
	require.True(t, errors.IsKind(unrecognized.Err, errors.UnrecognizedShape))
	require.Equal(t, `{"foo":1}`, string(unrecognized.Decoded.Raw))
	require.Equal(t, epoch, unrecognized.ReceivedAt)

	recognized := rec.observations[0]
	require.NoError(t, recognized.Err)
	require.Equal(t, "sensor-001", recognized.Decoded.Envelope.DeviceID)
	require.NotEqual(t, recognized.ID, rec.observations[2].ID)

	sub.mu.Lock()
	require.True(t, sub.unsubscribed)
	sub.mu.Unlock()
}

func TestMonitorUnrecognizedDoesNotStopObserving(t *testing.T) {
	clock := wallclock.NewManual(epoch)
	sub := &fakeSubscriber{}
	rec := newRecorder()

	m, err := diagnostic.NewMonitor(sub,
		diagnostic.WithClock(clock),
		diagnostic.WithReporter(rec),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := run(ctx, m)
	rec.waitSubscribed(t)

	sub.deliver("sensor/data", []byte(`{"foo":1}`))
	sub.deliver("sensor/data", validPayload(t, clock))
	require.Equal(t, diagnostic.Summary{Recognized: 1, Unrecognized: 1}, m.Summary())

	cancel()
	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, int64(1), res.summary.Recognized)
}

func TestMonitorDefaultWindow(t *testing.T) {
	clock := wallclock.NewManual(epoch)
	rec := newRecorder()

	m, err := diagnostic.NewMonitor(&fakeSubscriber{},
		diagnostic.WithClock(clock),
		diagnostic.WithReporter(rec),
	)
	require.NoError(t, err)

	done := run(context.Background(), m)
	rec.waitSubscribed(t)

	clock.Advance(diagnostic.DefaultWindow - time.Millisecond)
	select {
	case <-done:
		require.FailNow(t, "run ended before the default window")
	default:
	}
	clock.Advance(time.Millisecond)
	require.NoError(t, (<-done).err)
}

func TestMonitorReportsConnectionEvents(t *testing.T) {
	clock := wallclock.NewManual(epoch)
	sub := &fakeSubscriber{}
	rec := newRecorder()

	m, err := diagnostic.NewMonitor(sub,
		diagnostic.WithClock(clock),
		diagnostic.WithReporter(rec),
		diagnostic.WithFilter("sensor/#"),
	)
	require.NoError(t, err)

	done := run(context.Background(), m)
	require.Equal(t, "sensor/#", rec.waitSubscribed(t))

	lost := stderr.New("connection reset")
	for h := range sub.disconnect.All() {
		h(&mqtt.DisconnectEvent{Error: lost})
	}
	for h := range sub.connect.All() {
		h(&mqtt.ConnectEvent{Attempt: 2})
	}
	for h := range sub.fatal.All() {
		h(lost)
	}

	// A fatal client error is reported but the window still decides the end.
	sub.deliver("sensor/data", validPayload(t, clock))
	select {
	case <-done:
		require.FailNow(t, "run ended on a connection error")
	default:
	}

	clock.Advance(diagnostic.DefaultWindow)
	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, int64(1), res.summary.Connects)
	require.Equal(t, int64(1), res.summary.Disconnects)
	require.Equal(t, int64(1), res.summary.Failures)
	require.Equal(t, int64(1), res.summary.Recognized)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, []diagnostic.ConnectionEvent{
		{Kind: diagnostic.Disconnected, Err: lost},
		{Kind: diagnostic.Connected},
		{Kind: diagnostic.Failed, Err: lost},
	}, rec.events)

	require.Equal(t, 0, sub.connect.Len())
	require.Equal(t, 0, sub.disconnect.Len())
	require.Equal(t, 0, sub.fatal.Len())
}

func TestMonitorSubscribeFailureWaitsForWindow(t *testing.T) {
	clock := wallclock.NewManual(epoch)
	sub := &fakeSubscriber{err: stderr.New("not authorized")}
	rec := newRecorder()

	m, err := diagnostic.NewMonitor(sub,
		diagnostic.WithClock(clock),
		diagnostic.WithReporter(rec),
		diagnostic.WithWindow(10*time.Second),
	)
	require.NoError(t, err)

	done := run(context.Background(), m)
	require.Eventually(t, func() bool {
		return m.Summary().Failures == 1
	}, 5*time.Second, time.Millisecond)

	clock.Advance(9 * time.Second)
	select {
	case <-done:
		require.FailNow(t, "run ended on a subscribe failure")
	default:
	}

	clock.Advance(time.Second)
	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, diagnostic.Summary{Failures: 1}, res.summary)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 1)
	require.Equal(t, diagnostic.Failed, rec.events[0].Kind)
	require.True(t, errors.IsKind(rec.events[0].Err, errors.TransportError))
	require.ErrorIs(t, rec.events[0].Err, sub.err)
}

func TestMonitorSeesEventsBeforeRun(t *testing.T) {
	clock := wallclock.NewManual(epoch)
	sub := &fakeSubscriber{}
	rec := newRecorder()

	m, err := diagnostic.NewMonitor(sub,
		diagnostic.WithClock(clock),
		diagnostic.WithReporter(rec),
	)
	require.NoError(t, err)

	for h := range sub.connect.All() {
		h(&mqtt.ConnectEvent{Attempt: 1})
	}
	require.Equal(t, int64(1), m.Summary().Connects)

	done := run(context.Background(), m)
	rec.waitSubscribed(t)
	clock.Advance(diagnostic.DefaultWindow)

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, int64(1), res.summary.Connects)

	_, err = m.Run(context.Background())
	require.True(t, errors.IsKind(err, errors.StateInvalid))
}

func TestNewMonitorValidation(t *testing.T) {
	_, err := diagnostic.NewMonitor(nil)
	require.True(t, errors.IsKind(err, errors.ArgumentInvalid))

	_, err = diagnostic.NewMonitor(&fakeSubscriber{},
		diagnostic.WithFilter("sensor/#/data"),
	)
	require.True(t, errors.IsKind(err, errors.ArgumentInvalid))

	_, err = diagnostic.NewMonitor(&fakeSubscriber{},
		diagnostic.WithWindow(-time.Second),
	)
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, "Window", e.PropertyName)
}
