// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package main

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/TranDung6129/sensor-telemetry/dashboard"
	"github.com/TranDung6129/sensor-telemetry/errors"
	"github.com/TranDung6129/sensor-telemetry/internal/httpserver"
	"github.com/TranDung6129/sensor-telemetry/mqtt"
	"github.com/TranDung6129/sensor-telemetry/telemetry"
)

// server wires the dashboard store to the live telemetry topic and the
// operations endpoints. A nil client runs the store on its simulated
// drivers only.
type server struct {
	store     *dashboard.Store
	client    *mqtt.SessionClient
	ops       *httpserver.Server
	topic     string
	connected atomic.Bool
	log       *slog.Logger
}

func newServer(
	client *mqtt.SessionClient,
	addr, topic string,
	opts []dashboard.StoreOption,
	logger *slog.Logger,
) (*server, error) {
	s := &server{client: client, topic: topic, log: logger}

	if client != nil {
		client.RegisterConnectEventHandler(func(*mqtt.ConnectEvent) {
			s.connected.Store(true)
		})
		client.RegisterDisconnectEventHandler(func(*mqtt.DisconnectEvent) {
			s.connected.Store(false)
		})
		opts = append(opts, dashboard.WithProbe(s.connected.Load))
	}

	store, err := dashboard.NewStore(append(opts, dashboard.WithLogger(logger))...)
	if err != nil {
		return nil, err
	}
	s.store = store
	store.Subscribe(reporter(logger))

	s.ops = httpserver.New(addr, s.health, logger)
	routes(s.ops.Router(), store)
	return s, nil
}

// start serves the endpoints and runs the drivers before the live feed is
// subscribed, so the dashboard reports offline while the broker is
// unreachable.
func (s *server) start(ctx context.Context) error {
	if err := s.ops.Start(ctx); err != nil {
		return err
	}
	if err := s.store.Start(); err != nil {
		return err
	}
	if s.client == nil {
		return nil
	}

	if err := s.client.Start(); err != nil {
		return err
	}
	go s.subscribe(ctx)
	return nil
}

// subscribe waits for the first connection; the session client restores the
// subscription after every reconnect.
func (s *server) subscribe(ctx context.Context) {
	_, err := s.client.Subscribe(ctx, s.topic, ingest(s.store, s.log),
		mqtt.WithQoS(mqtt.QoS1),
	)
	switch {
	case err == nil:
		s.log.Info("subscribed to telemetry", slog.String("topic", s.topic))
	case ctx.Err() == nil:
		s.log.Error("cannot subscribe to telemetry",
			slog.String("topic", s.topic),
			slog.String("error", err.Error()),
		)
	}
}

func (s *server) stop() {
	_ = s.ops.Shutdown(context.Background())
	_ = s.store.Close()
	if s.client != nil {
		_ = s.client.Stop()
	}
}

func (s *server) health(context.Context) error {
	if s.client != nil && !s.connected.Load() {
		return &errors.Error{
			Message: "not connected to the broker",
			Kind:    errors.TransportError,
		}
	}
	return nil
}

// reporter logs what a dashboard user would see.
func reporter(logger *slog.Logger) dashboard.ChangeHandler {
	return func(c dashboard.Change) {
		for _, t := range c.Transitions {
			switch t := t.(type) {
			case dashboard.PushNotification:
				n := t.Notification
				level := slog.LevelInfo
				if n.Category == dashboard.Danger || n.Category == dashboard.Warning {
					level = slog.LevelWarn
				}
				logger.Log(context.Background(), level, n.Message,
					slog.String("category", string(n.Category)),
				)
			case dashboard.SetConnectionStatus:
				logger.Info("connection status", slog.String("status", string(t.Status)))
			}
		}
	}
}

func ingest(store *dashboard.Store, logger *slog.Logger) mqtt.MessageHandler {
	return func(_ context.Context, msg *mqtt.Message) {
		d, err := telemetry.Decode(msg.Payload)
		if err != nil {
			logger.Debug("ignoring payload",
				slog.String("topic", msg.Topic),
				slog.String("error", err.Error()),
			)
			return
		}

		switch {
		case d.Envelope != nil:
			err = store.Ingest(d.Envelope)
		case d.DataPoints != nil:
			err = store.IngestDataPoints(d.DataPoints)
		}
		if err != nil {
			logger.Warn("cannot ingest reading", slog.String("error", err.Error()))
		}
	}
}
