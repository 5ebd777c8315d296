// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Command sensor-broker runs an embedded MQTT broker for local development.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/TranDung6129/sensor-telemetry/internal/broker"
	"github.com/TranDung6129/sensor-telemetry/internal/env"
	"github.com/TranDung6129/sensor-telemetry/internal/log"
)

func main() {
	level, err := log.ParseLevel(os.Getenv("LOG_LEVEL"))
	logger := log.Console(os.Stdout, level)
	if err == nil {
		err = run(logger)
	}
	if err != nil {
		l := log.Wrap(logger)
		l.Err(context.Background(), err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg := broker.Config{
		TCPAddress:       env.String("BROKER_TCP_ADDR", ":1883"),
		WebSocketAddress: env.String("BROKER_WS_ADDR", ""),
		Username:         env.String("BROKER_USERNAME", ""),
		Password:         env.String("BROKER_PASSWORD", ""),
		Logger:           logger,
	}

	b, err := broker.Start(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	logger.Info("broker running",
		slog.String("tcp", cfg.TCPAddress),
		slog.String("websocket", cfg.WebSocketAddress),
		slog.Bool("auth", cfg.Username != ""),
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("broker shutting down")
	return nil
}
