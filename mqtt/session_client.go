// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/TranDung6129/sensor-telemetry/internal/container"
	"github.com/TranDung6129/sensor-telemetry/internal/log"
	"github.com/TranDung6129/sensor-telemetry/mqtt/internal"
	"github.com/TranDung6129/sensor-telemetry/mqtt/retry"
	"github.com/eclipse/paho.golang/paho"
)

// SessionClient is an MQTT v5 client that owns one logical session across
// reconnects. Operations issued while the connection is down wait for the
// next connection; subscriptions are restored after every reconnect.
type SessionClient struct {
	started  atomic.Bool
	session  *internal.Lifetime
	finished chan struct{}

	conn *internal.Tracker[*paho.Client]

	subscriptions   map[string]*subscription
	subscriptionsMu sync.RWMutex

	connectHandlers    *container.Handlers[ConnectEventHandler]
	disconnectHandlers *container.Handlers[DisconnectEventHandler]
	fatalHandlers      *container.Handlers[FatalErrorHandler]

	provider ConnectionProvider
	options  SessionClientOptions
	log      internal.Logger
}

// NewSessionClient creates a session client for the given connection
// provider. The client does nothing until Start is called.
func NewSessionClient(
	provider ConnectionProvider,
	opts ...SessionClientOption,
) (*SessionClient, error) {
	if provider == nil {
		return nil, &InvalidArgumentError{message: "connection provider is nil"}
	}

	c := &SessionClient{
		session:            internal.NewLifetime(&ClientStateError{ShutDown}),
		finished:           make(chan struct{}),
		conn:               internal.NewTracker[*paho.Client](),
		subscriptions:      map[string]*subscription{},
		connectHandlers:    container.NewHandlers[ConnectEventHandler](),
		disconnectHandlers: container.NewHandlers[DisconnectEventHandler](),
		fatalHandlers:      container.NewHandlers[FatalErrorHandler](),
		provider:           provider,
	}
	c.options.Apply(opts)

	if c.options.ClientID == "" {
		c.options.ClientID = internal.RandomClientID("sensortelemetry")
	}
	if c.options.KeepAlive < 0 || c.options.KeepAlive.Seconds() > 65535 {
		return nil, &InvalidArgumentError{message: "keep-alive out of range"}
	}
	if c.options.KeepAlive == 0 {
		c.options.KeepAlive = defaultKeepAlive
	}
	if c.options.SessionExpiry < 0 {
		return nil, &InvalidArgumentError{message: "session expiry is negative"}
	}
	if c.options.ConnectionTimeout <= 0 {
		c.options.ConnectionTimeout = defaultConnectionTimeout
	}
	if c.options.ConnectionRetry == nil {
		c.options.ConnectionRetry = &retry.ExponentialBackoff{
			Logger: c.options.Logger,
		}
	}
	c.log = internal.Logger{Logger: log.Wrap(c.options.Logger)}

	return c, nil
}

// NewSessionClientFromURL creates a session client for a broker URL such as
// tcp://localhost:1883, mqtts://broker:8883 or ws://localhost:8083/mqtt.
func NewSessionClientFromURL(
	brokerURL string,
	opts ...SessionClientOption,
) (*SessionClient, error) {
	provider, err := ConnectionProviderFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return NewSessionClient(provider, opts...)
}

// ID returns the MQTT client ID.
func (c *SessionClient) ID() string {
	return c.options.ClientID
}

// Start begins connecting in the background. Connection failures are retried
// according to the connection retry policy; only errors that reconnecting
// cannot fix are reported to fatal error handlers.
func (c *SessionClient) Start() error {
	if !c.started.CompareAndSwap(false, true) {
		return &ClientStateError{Started}
	}

	ctx, cancel := c.session.Bind(context.Background())
	go func() {
		defer close(c.finished)
		defer cancel()

		err := c.manageConnection(ctx)
		c.session.End()
		if err != nil {
			c.log.Err(ctx, err)
			for handler := range c.fatalHandlers.All() {
				handler(err)
			}
		}
	}()
	return nil
}

// Stop disconnects gracefully and waits for the connection goroutine to
// exit. Calls made after Stop fail with a ClientStateError.
func (c *SessionClient) Stop() error {
	if !c.started.Load() {
		return &ClientStateError{NotStarted}
	}
	c.session.End()
	<-c.finished
	return nil
}

// RegisterConnectEventHandler adds a handler for successful connections.
func (c *SessionClient) RegisterConnectEventHandler(
	handler ConnectEventHandler,
) (remove func()) {
	return c.connectHandlers.Add(handler)
}

// RegisterDisconnectEventHandler adds a handler for lost connections.
func (c *SessionClient) RegisterDisconnectEventHandler(
	handler DisconnectEventHandler,
) (remove func()) {
	return c.disconnectHandlers.Add(handler)
}

// RegisterFatalErrorHandler adds a handler for the error that made the
// client shut down on its own.
func (c *SessionClient) RegisterFatalErrorHandler(
	handler FatalErrorHandler,
) (remove func()) {
	return c.fatalHandlers.Add(handler)
}

func (c *SessionClient) ensureStarted() error {
	switch {
	case !c.started.Load():
		return &ClientStateError{NotStarted}
	case c.session.Ended():
		return &ClientStateError{ShutDown}
	default:
		return nil
	}
}

func (c *SessionClient) logEvent(
	ctx context.Context,
	level slog.Level,
	msg string,
	attrs ...slog.Attr,
) {
	c.log.Log(ctx, level, msg, append(attrs,
		slog.String("client_id", c.options.ClientID),
	)...)
}
