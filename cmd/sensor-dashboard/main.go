// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Command sensor-dashboard runs the dashboard state machine, feeds it from
// the live telemetry topic and serves its snapshot over HTTP. SIGUSR1
// triggers a manual refresh.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/TranDung6129/sensor-telemetry/dashboard"
	"github.com/TranDung6129/sensor-telemetry/internal/env"
	"github.com/TranDung6129/sensor-telemetry/internal/log"
	"github.com/TranDung6129/sensor-telemetry/mqtt"
	"github.com/TranDung6129/sensor-telemetry/simulator"
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
	opts, err := storeOptions()
	if err != nil {
		return err
	}
	live, err := env.Bool("DASHBOARD_LIVE", true)
	if err != nil {
		return err
	}
	topic := env.String("DASHBOARD_TOPIC", simulator.DefaultTopic)

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	var client *mqtt.SessionClient
	if live {
		client, err = mqtt.NewSessionClientFromEnv(mqtt.WithLogger(logger))
		if err != nil {
			return err
		}
	}

	srv, err := newServer(client,
		env.String("DASHBOARD_HTTP_ADDR", ":8080"), topic, opts, logger)
	if err != nil {
		return err
	}
	defer srv.stop()
	if err := srv.start(ctx); err != nil {
		return err
	}

	refresh := make(chan os.Signal, 1)
	signal.Notify(refresh, syscall.SIGUSR1)
	defer signal.Stop(refresh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("dashboard shutting down")
			return nil
		case <-refresh:
			if _, err := srv.store.StartRefresh(ctx); err != nil {
				logger.Warn("manual refresh rejected", slog.String("error", err.Error()))
			}
		}
	}
}

func storeOptions() ([]dashboard.StoreOption, error) {
	refresh, err := env.Duration("DASHBOARD_REFRESH_INTERVAL", dashboard.DefaultRefreshInterval)
	if err != nil {
		return nil, err
	}
	health, err := env.Duration("DASHBOARD_HEALTH_INTERVAL", dashboard.DefaultHealthInterval)
	if err != nil {
		return nil, err
	}
	ttl, err := env.Duration("DASHBOARD_NOTIFICATION_TTL", dashboard.DefaultNotificationTTL)
	if err != nil {
		return nil, err
	}
	delay, err := env.Duration("DASHBOARD_REFRESH_DELAY", dashboard.DefaultRefreshDelay)
	if err != nil {
		return nil, err
	}
	fromDelta, err := env.Bool("DASHBOARD_TREND_FROM_DELTA", false)
	if err != nil {
		return nil, err
	}
	return []dashboard.StoreOption{
		dashboard.WithRefreshInterval(refresh),
		dashboard.WithHealthInterval(health),
		dashboard.WithNotificationTTL(ttl),
		dashboard.WithRefreshDelay(delay),
		dashboard.WithTrendFromDelta(fromDelta),
	}, nil
}
