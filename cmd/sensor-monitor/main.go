// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Command sensor-monitor subscribes to every topic on the broker for a fixed
// window and reports how each message classifies as telemetry.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/TranDung6129/sensor-telemetry/diagnostic"
	"github.com/TranDung6129/sensor-telemetry/internal/env"
	"github.com/TranDung6129/sensor-telemetry/internal/httpserver"
	"github.com/TranDung6129/sensor-telemetry/internal/log"
	"github.com/TranDung6129/sensor-telemetry/mqtt"
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
	window, err := env.Duration("MONITOR_WINDOW", diagnostic.DefaultWindow)
	if err != nil {
		return err
	}
	filter := env.String("MONITOR_FILTER", diagnostic.DefaultFilter)

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr := env.String("METRICS_ADDR", ""); addr != "" {
		ops := httpserver.New(addr, nil, logger)
		if err := ops.Start(ctx); err != nil {
			return err
		}
		defer ops.Shutdown(context.Background())
	}

	client, err := mqtt.NewSessionClientFromEnv(mqtt.WithLogger(logger))
	if err != nil {
		return err
	}

	// The monitor registers its connection handlers here, before Start, so
	// the first connection outcome is reported.
	monitor, err := diagnostic.NewMonitor(client,
		diagnostic.WithFilter(filter),
		diagnostic.WithWindow(window),
		diagnostic.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	if err := client.Start(); err != nil {
		return err
	}
	defer client.Stop()

	summary, err := monitor.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("monitor finished",
		slog.Int64("recognized", summary.Recognized),
		slog.Int64("unrecognized", summary.Unrecognized),
		slog.Int64("opaque", summary.Opaque),
		slog.Int64("connects", summary.Connects),
		slog.Int64("disconnects", summary.Disconnects),
		slog.Int64("failures", summary.Failures),
	)
	return nil
}
