// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package diagnostic_test

import (
	"context"
	stderr "errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/TranDung6129/sensor-telemetry/diagnostic"
	"github.com/TranDung6129/sensor-telemetry/internal/broker"
	"github.com/TranDung6129/sensor-telemetry/mqtt"
	"github.com/TranDung6129/sensor-telemetry/simulator"
	"github.com/TranDung6129/sensor-telemetry/telemetry"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func startBroker(t *testing.T, addr string) *broker.Broker {
	return startBrokerWith(t, broker.Config{TCPAddress: addr})
}

func startBrokerWith(t *testing.T, cfg broker.Config) *broker.Broker {
	cfg.Logger = quiet
	b, err := broker.Start(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func newClient(
	t *testing.T,
	addr string,
	opts ...mqtt.SessionClientOption,
) *mqtt.SessionClient {
	client, err := mqtt.NewSessionClientFromURL("tcp://"+addr,
		append([]mqtt.SessionClientOption{mqtt.WithLogger(quiet)}, opts...)...,
	)
	require.NoError(t, err)
	return client
}

func startClient(t *testing.T, addr string) *mqtt.SessionClient {
	client := newClient(t, addr)
	require.NoError(t, client.Start())
	t.Cleanup(func() { _ = client.Stop() })
	return client
}

func TestPublishedReadingsAreRecognized(t *testing.T) {
	for _, tc := range []struct {
		name     string
		addr     string
		interval time.Duration
		window   time.Duration
		long     bool
	}{
		{"Scaled", "localhost:18860", 200 * time.Millisecond, 1500 * time.Millisecond, false},
		{"FullLength", "localhost:18862", 5 * time.Second, 12 * time.Second, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if tc.long && testing.Short() {
				t.Skip("runs for the full observation window")
			}
			startBroker(t, tc.addr)
			rec := newRecorder()

			monitor, err := diagnostic.NewMonitor(startClient(t, tc.addr),
				diagnostic.WithReporter(rec),
				diagnostic.WithWindow(tc.window),
				diagnostic.WithLogger(quiet),
			)
			require.NoError(t, err)
			done := run(context.Background(), monitor)
			rec.waitSubscribed(t)

			publisher, err := simulator.NewPublisher(
				startClient(t, tc.addr),
				simulator.NewGenerator("sensor-001", "Server Room", 42, nil, nil),
				simulator.WithInterval(tc.interval),
				simulator.WithMaxMessages(3),
				simulator.WithLogger(quiet),
			)
			require.NoError(t, err)
			require.NoError(t, publisher.Run(context.Background()))
			require.Equal(t, int64(3), publisher.Stats().Published)

			res := <-done
			require.NoError(t, res.err)
			require.Equal(t, int64(3), res.summary.Recognized)
			require.Zero(t, res.summary.Unrecognized)
			require.Zero(t, res.summary.Opaque)

			rec.mu.Lock()
			defer rec.mu.Unlock()
			for _, o := range rec.observations {
				require.Equal(t, simulator.DefaultTopic, o.Topic)
				require.Equal(t, "sensor-001", o.Decoded.Envelope.DeviceID)
			}
		})
	}
}

func TestForeignPayloadIsReportedAndObservationContinues(t *testing.T) {
	const addr = "localhost:18861"
	b := startBroker(t, addr)
	rec := newRecorder()

	monitor, err := diagnostic.NewMonitor(startClient(t, addr),
		diagnostic.WithReporter(rec),
		diagnostic.WithLogger(quiet),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := run(ctx, monitor)
	rec.waitSubscribed(t)

	valid, err := telemetry.Encode(
		simulator.NewGenerator("sensor-002", "Lab", 1, nil, nil).Next(),
	)
	require.NoError(t, err)

	require.NoError(t, b.Publish("devices/other", []byte(`{"foo":1}`)))
	require.NoError(t, b.Publish("sensor/data", valid))

	require.Eventually(t, func() bool {
		s := monitor.Summary()
		return s.Unrecognized == 1 && s.Recognized == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, []telemetry.Class{
		telemetry.Unrecognized,
		telemetry.Recognized,
	}, rec.classes())
}

func TestRejectedCredentialsDoNotEndObservation(t *testing.T) {
	const addr = "localhost:18863"
	startBrokerWith(t, broker.Config{
		TCPAddress: addr,
		Username:   "u",
		Password:   "p",
	})
	rec := newRecorder()

	client := newClient(t, addr,
		mqtt.WithUsername(mqtt.ConstantUsername("u")),
		mqtt.WithPassword(mqtt.ConstantPassword([]byte("wrong"))),
	)
	monitor, err := diagnostic.NewMonitor(client,
		diagnostic.WithReporter(rec),
		diagnostic.WithWindow(time.Second),
		diagnostic.WithLogger(quiet),
	)
	require.NoError(t, err)
	require.NoError(t, client.Start())
	t.Cleanup(func() { _ = client.Stop() })

	start := time.Now()
	res := <-run(context.Background(), monitor)
	require.NoError(t, res.err)
	require.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
	require.NotZero(t, res.summary.Failures)
	require.Zero(t, res.summary.Connects)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var connack *mqtt.FatalConnackError
	for _, e := range rec.events {
		if stderr.As(e.Err, &connack) {
			break
		}
	}
	require.NotNil(t, connack, "the rejected CONNACK is reported")
}
