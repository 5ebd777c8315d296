// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Command sensor-publisher publishes simulated sensor readings to the broker
// configured by the MQTT_* environment variables.
package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/TranDung6129/sensor-telemetry/errors"
	"github.com/TranDung6129/sensor-telemetry/internal/env"
	"github.com/TranDung6129/sensor-telemetry/internal/httpserver"
	"github.com/TranDung6129/sensor-telemetry/internal/log"
	"github.com/TranDung6129/sensor-telemetry/mqtt"
	"github.com/TranDung6129/sensor-telemetry/simulator"
)

type config struct {
	deviceID    string
	location    string
	topic       string
	format      simulator.Format
	seed        uint64
	metricsAddr string
	opts        []simulator.PublisherOption
}

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
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.metricsAddr != "" {
		ops := httpserver.New(cfg.metricsAddr, nil, logger)
		if err := ops.Start(ctx); err != nil {
			return err
		}
		defer ops.Shutdown(context.Background())
	}

	client, err := mqtt.NewSessionClientFromEnv(mqtt.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := client.Start(); err != nil {
		return err
	}
	defer client.Stop()

	gen := simulator.NewGenerator(cfg.deviceID, cfg.location, cfg.seed, nil, nil)
	publisher, err := simulator.NewPublisher(client, gen, append(cfg.opts,
		simulator.WithTopic(cfg.topic),
		simulator.WithFormat(cfg.format),
		simulator.WithLogger(logger),
	)...)
	if err != nil {
		return err
	}

	if err := publisher.Run(ctx); err != nil {
		return err
	}

	stats := publisher.Stats()
	logger.Info("publisher finished",
		slog.Int64("published", stats.Published),
		slog.Int64("failed", stats.Failed),
	)
	return nil
}

func loadConfig() (*config, error) {
	cfg := &config{
		deviceID:    env.String("SENSOR_DEVICE_ID", "sensor-001"),
		location:    env.String("SENSOR_LOCATION", "Server Room"),
		topic:       env.String("SENSOR_TOPIC", simulator.DefaultTopic),
		metricsAddr: env.String("METRICS_ADDR", ""),
	}

	switch f := env.String("SENSOR_FORMAT", "envelope"); f {
	case "envelope":
		cfg.format = simulator.FormatEnvelope
	case "data-points":
		cfg.format = simulator.FormatDataPoints
	default:
		return nil, &errors.Error{
			Message:       "SENSOR_FORMAT must be envelope or data-points",
			Kind:          errors.ConfigurationInvalid,
			PropertyName:  "SENSOR_FORMAT",
			PropertyValue: f,
		}
	}

	interval, err := env.Duration("SENSOR_INTERVAL", simulator.DefaultInterval)
	if err != nil {
		return nil, err
	}
	maxMessages, err := env.Int("SENSOR_MAX_MESSAGES", 0)
	if err != nil {
		return nil, err
	}
	seed, err := env.Int64("SENSOR_SEED", 0)
	if err != nil {
		return nil, err
	}

	cfg.seed = uint64(seed)
	if cfg.seed == 0 {
		cfg.seed = rand.Uint64()
	}
	cfg.opts = []simulator.PublisherOption{
		simulator.WithInterval(interval),
		simulator.WithMaxMessages(maxMessages),
	}
	return cfg, nil
}
