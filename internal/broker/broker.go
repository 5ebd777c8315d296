// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package broker runs an embedded MQTT v5 broker for local development and
// end-to-end tests.
package broker

import (
	"log/slog"

	"github.com/TranDung6129/sensor-telemetry/errors"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

type (
	// Config selects the listeners and credentials of the broker.
	Config struct {
		// TCPAddress is the plain MQTT listener, e.g. ":1883". Empty disables
		// it.
		TCPAddress string

		// WebSocketAddress is the MQTT over WebSocket listener, e.g.
		// ":8083". Empty disables it.
		WebSocketAddress string

		// Username and Password, when set, are the only accepted
		// credentials. Otherwise every client is allowed.
		Username string
		Password string

		Logger *slog.Logger
	}

	// Broker is a running embedded broker.
	Broker struct {
		server *mochi.Server
	}
)

// Start creates the broker and begins serving on the configured listeners.
func Start(cfg Config) (*Broker, error) {
	if cfg.TCPAddress == "" && cfg.WebSocketAddress == "" {
		return nil, &errors.Error{
			Message: "no broker listener configured",
			Kind:    errors.ConfigurationInvalid,
		}
	}

	opts := &mochi.Options{InlineClient: true}
	if cfg.Logger != nil {
		opts.Logger = cfg.Logger
	}
	server := mochi.New(opts)

	if err := server.AddHook(authHook(cfg)); err != nil {
		return nil, wrap("cannot add auth hook", err)
	}

	if cfg.TCPAddress != "" {
		l := listeners.NewTCP(listeners.Config{
			ID:      "tcp",
			Type:    "tcp",
			Address: cfg.TCPAddress,
		})
		if err := server.AddListener(l); err != nil {
			return nil, wrap("cannot listen on "+cfg.TCPAddress, err)
		}
	}
	if cfg.WebSocketAddress != "" {
		l := listeners.NewWebsocket(listeners.Config{
			ID:      "ws",
			Type:    "ws",
			Address: cfg.WebSocketAddress,
		})
		if err := server.AddListener(l); err != nil {
			_ = server.Close()
			return nil, wrap("cannot listen on "+cfg.WebSocketAddress, err)
		}
	}

	if err := server.Serve(); err != nil {
		_ = server.Close()
		return nil, wrap("cannot start broker", err)
	}
	return &Broker{server}, nil
}

// Publish injects a message as if a client had published it.
func (b *Broker) Publish(topic string, payload []byte) error {
	return b.server.Publish(topic, payload, false, 0)
}

// DisconnectClient drops a connected client, which then has to reconnect.
func (b *Broker) DisconnectClient(id string) bool {
	cl, ok := b.server.Clients.Get(id)
	if !ok {
		return false
	}
	cl.Stop(nil)
	return true
}

// Close stops every listener and disconnects all clients.
func (b *Broker) Close() error {
	return b.server.Close()
}

func authHook(cfg Config) (mochi.Hook, any) {
	if cfg.Username == "" {
		return new(auth.AllowHook), nil
	}
	return new(auth.Hook), &auth.Options{
		Ledger: &auth.Ledger{
			Auth: auth.AuthRules{{
				Username: auth.RString(cfg.Username),
				Password: auth.RString(cfg.Password),
				Allow:    true,
			}},
		},
	}
}

func wrap(msg string, err error) error {
	return &errors.Error{
		Message:     msg,
		Kind:        errors.TransportError,
		NestedError: err,
	}
}
