// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/TranDung6129/sensor-telemetry/internal/broker"
	"github.com/TranDung6129/sensor-telemetry/mqtt"
	"github.com/TranDung6129/sensor-telemetry/mqtt/retry"
	"github.com/stretchr/testify/require"
)

const (
	tcpAddr    = "localhost:18840"
	wsAddr     = "localhost:18841"
	authAddr   = "localhost:18842"
	reconnAddr = "localhost:18843"

	brokerUser     = "gary"
	brokerPassword = "pineapple"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func startBroker(t *testing.T, cfg broker.Config) *broker.Broker {
	cfg.Logger = quiet
	b, err := broker.Start(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func startClient(
	t *testing.T,
	provider mqtt.ConnectionProvider,
	opts ...mqtt.SessionClientOption,
) *mqtt.SessionClient {
	client, err := mqtt.NewSessionClient(provider, opts...)
	require.NoError(t, err)
	require.NoError(t, client.Start())
	t.Cleanup(func() { _ = client.Stop() })
	return client
}

func fastRetry() mqtt.SessionClientOption {
	return mqtt.WithConnectionRetry(&retry.ExponentialBackoff{
		MinInterval: 10 * time.Millisecond,
		MaxInterval: 100 * time.Millisecond,
	})
}

func receive(t *testing.T, ch <-chan *mqtt.Message) *mqtt.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for message")
		return nil
	}
}

func TestLifecycleStates(t *testing.T) {
	client, err := mqtt.NewSessionClientFromURL("tcp://" + tcpAddr)
	require.NoError(t, err)

	var state *mqtt.ClientStateError

	_, err = client.Publish(context.Background(), "sensor/data", nil)
	require.ErrorAs(t, err, &state)
	require.Equal(t, mqtt.NotStarted, state.State)
	require.ErrorAs(t, client.Stop(), &state)

	require.NoError(t, client.Start())
	require.ErrorAs(t, client.Start(), &state)
	require.Equal(t, mqtt.Started, state.State)

	require.NoError(t, client.Stop())
	require.NoError(t, client.Stop())

	_, err = client.Publish(context.Background(), "sensor/data", nil)
	require.ErrorAs(t, err, &state)
	require.Equal(t, mqtt.ShutDown, state.State)
}

func TestStopUnblocksPendingPublish(t *testing.T) {
	// Nothing listens on this port, so the publish waits for a connection.
	client, err := mqtt.NewSessionClientFromURL("tcp://localhost:18849", fastRetry())
	require.NoError(t, err)
	require.NoError(t, client.Start())

	done := make(chan error)
	go func() {
		_, err := client.Publish(context.Background(), "sensor/data", []byte("x"))
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, client.Stop())

	var state *mqtt.ClientStateError
	require.ErrorAs(t, <-done, &state)
	require.Equal(t, mqtt.ShutDown, state.State)
}

func TestPublishSubscribeOverTCP(t *testing.T) {
	startBroker(t, broker.Config{TCPAddress: tcpAddr})
	client := startClient(t, mqtt.TCPConnection("localhost", 18840))

	ctx := context.Background()
	received := make(chan *mqtt.Message, 1)
	sub, err := client.Subscribe(ctx, "sensor/+",
		func(_ context.Context, msg *mqtt.Message) { received <- msg },
		mqtt.WithQoS(1),
	)
	require.NoError(t, err)
	require.Equal(t, "sensor/+", sub.Filter())

	_, err = client.Subscribe(ctx, "sensor/+",
		func(context.Context, *mqtt.Message) {},
	)
	require.Error(t, err)

	ack, err := client.Publish(ctx, "sensor/data", []byte(`{"a":1}`),
		mqtt.WithQoS(1),
		mqtt.WithContentType("application/json"),
		mqtt.WithPayloadFormat(mqtt.PayloadUTF8),
		mqtt.WithUserProperties{"source": "test"},
	)
	require.NoError(t, err)
	require.Equal(t, byte(0), ack.ReasonCode)

	msg := receive(t, received)
	require.Equal(t, "sensor/data", msg.Topic)
	require.Equal(t, []byte(`{"a":1}`), msg.Payload)
	require.Equal(t, "application/json", msg.ContentType)
	require.Equal(t, mqtt.PayloadUTF8, msg.PayloadFormat)
	require.Equal(t, "test", msg.UserProperties["source"])

	require.NoError(t, sub.Unsubscribe(ctx))
	require.NoError(t, sub.Unsubscribe(ctx))

	_, err = client.Publish(ctx, "sensor/data", []byte("late"), mqtt.WithQoS(1))
	require.NoError(t, err)
	select {
	case msg := <-received:
		require.FailNow(t, "unexpected message after unsubscribe", "%s", msg.Payload)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPublishSubscribeOverWebSocket(t *testing.T) {
	startBroker(t, broker.Config{WebSocketAddress: wsAddr})

	provider, err := mqtt.ConnectionProviderFromURL("ws://" + wsAddr + "/mqtt")
	require.NoError(t, err)
	client := startClient(t, provider)

	ctx := context.Background()
	received := make(chan *mqtt.Message, 1)
	_, err = client.Subscribe(ctx, "#",
		func(_ context.Context, msg *mqtt.Message) { received <- msg },
	)
	require.NoError(t, err)

	_, err = client.Publish(ctx, "sensor/data", []byte("over websocket"), mqtt.WithQoS(1))
	require.NoError(t, err)

	require.Equal(t, []byte("over websocket"), receive(t, received).Payload)
}

func TestConnectionStringCredentials(t *testing.T) {
	startBroker(t, broker.Config{
		TCPAddress: authAddr,
		Username:   brokerUser,
		Password:   brokerPassword,
	})

	client, err := mqtt.NewSessionClientFromConnectionString(
		"HostName=localhost;TcpPort=18842;Username=gary;Password=pineapple;KeepAlive=PT30S",
	)
	require.NoError(t, err)

	connected := make(chan *mqtt.ConnectEvent, 1)
	client.RegisterConnectEventHandler(func(e *mqtt.ConnectEvent) {
		connected <- e
	})
	require.NoError(t, client.Start())
	defer func() { _ = client.Stop() }()

	select {
	case e := <-connected:
		require.Equal(t, uint64(1), e.Attempt)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "client did not connect")
	}
}

func TestBadCredentialsAreFatal(t *testing.T) {
	startBroker(t, broker.Config{
		TCPAddress: authAddr,
		Username:   brokerUser,
		Password:   brokerPassword,
	})

	client, err := mqtt.NewSessionClient(
		mqtt.TCPConnection("localhost", 18842),
		mqtt.WithUsername(mqtt.ConstantUsername(brokerUser)),
		mqtt.WithPassword(mqtt.ConstantPassword([]byte("mango"))),
		fastRetry(),
	)
	require.NoError(t, err)

	fatal := make(chan error, 1)
	client.RegisterFatalErrorHandler(func(err error) { fatal <- err })
	require.NoError(t, client.Start())
	defer func() { _ = client.Stop() }()

	select {
	case err := <-fatal:
		var connack *mqtt.FatalConnackError
		require.ErrorAs(t, err, &connack)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "expected a fatal CONNACK error")
	}
}

func TestReconnectRestoresSubscriptions(t *testing.T) {
	b := startBroker(t, broker.Config{TCPAddress: reconnAddr})

	client, err := mqtt.NewSessionClient(
		mqtt.TCPConnection("localhost", 18843),
		mqtt.WithClientID("reconnecting"),
		fastRetry(),
		mqtt.WithLogger(quiet),
	)
	require.NoError(t, err)

	connects := make(chan uint64, 4)
	disconnects := make(chan error, 4)
	client.RegisterConnectEventHandler(func(e *mqtt.ConnectEvent) {
		connects <- e.Attempt
	})
	client.RegisterDisconnectEventHandler(func(e *mqtt.DisconnectEvent) {
		disconnects <- e.Error
	})
	require.NoError(t, client.Start())
	defer func() { _ = client.Stop() }()

	ctx := context.Background()
	received := make(chan *mqtt.Message, 4)
	_, err = client.Subscribe(ctx, "sensor/data",
		func(_ context.Context, msg *mqtt.Message) { received <- msg },
	)
	require.NoError(t, err)
	require.Equal(t, uint64(1), <-connects)

	require.True(t, b.DisconnectClient("reconnecting"))
	require.Error(t, <-disconnects)
	require.Greater(t, <-connects, uint64(1))

	require.NoError(t, b.Publish("sensor/data", []byte("after reconnect")))
	require.Equal(t, []byte("after reconnect"), receive(t, received).Payload)
}

func TestInvalidArguments(t *testing.T) {
	_, err := mqtt.NewSessionClient(nil)
	require.Error(t, err)

	client := startClient(t, mqtt.TCPConnection("localhost", 18849), fastRetry())
	ctx := context.Background()

	var invalid *mqtt.InvalidArgumentError
	_, err = client.Publish(ctx, "sensor/#", nil)
	require.ErrorAs(t, err, &invalid)
	_, err = client.Publish(ctx, "sensor/data", nil, mqtt.WithQoS(2))
	require.ErrorAs(t, err, &invalid)
	_, err = client.Subscribe(ctx, "a/#/b", func(context.Context, *mqtt.Message) {})
	require.ErrorAs(t, err, &invalid)
	_, err = client.Subscribe(ctx, "a/b", nil)
	require.ErrorAs(t, err, &invalid)
}
