// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package simulator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TranDung6129/sensor-telemetry/errors"
	"github.com/TranDung6129/sensor-telemetry/internal/log"
	"github.com/TranDung6129/sensor-telemetry/internal/metrics"
	"github.com/TranDung6129/sensor-telemetry/internal/wallclock"
	"github.com/TranDung6129/sensor-telemetry/mqtt"
	"github.com/TranDung6129/sensor-telemetry/telemetry"
)

type (
	// Client is the part of the MQTT session client the publisher uses.
	Client interface {
		Publish(
			ctx context.Context,
			topic string,
			payload []byte,
			opts ...mqtt.PublishOption,
		) (*mqtt.Ack, error)
	}

	// Format selects the wire shape of published readings.
	Format int

	// PublisherOptions configure a Publisher.
	PublisherOptions struct {
		// Topic defaults to DefaultTopic.
		Topic string

		// Interval defaults to DefaultInterval.
		Interval time.Duration

		// MaxMessages stops the publisher after that many publishes; 0 means
		// run until cancelled.
		MaxMessages int

		Format Format
		Logger *slog.Logger
		Clock  wallclock.WallClock
	}

	// PublisherOption configures a Publisher.
	PublisherOption interface{ publisher(*PublisherOptions) }

	// WithTopic sets the topic readings are published to.
	WithTopic string

	// WithInterval sets the publish cadence.
	WithInterval time.Duration

	// WithMaxMessages bounds the number of publishes.
	WithMaxMessages int

	// WithFormat sets the wire shape.
	WithFormat Format

	withLogger struct{ *slog.Logger }

	withClock struct{ wallclock.WallClock }

	// Stats counts publish outcomes.
	Stats struct {
		Attempted int64
		Published int64
		Failed    int64
	}

	// Publisher emits one reading per interval. Each publish runs on its own
	// goroutine so a slow acknowledgement never delays the next tick.
	Publisher struct {
		client  Client
		gen     *Generator
		options PublisherOptions
		log     log.Logger

		attempted atomic.Int64
		published atomic.Int64
		failed    atomic.Int64
	}
)

const (
	// FormatEnvelope publishes the flat simulator envelope.
	FormatEnvelope Format = iota

	// FormatDataPoints publishes the data_points envelope.
	FormatDataPoints
)

const (
	DefaultTopic    = "sensor/data"
	DefaultInterval = 5 * time.Second
)

// WithLogger sets the publisher logger.
func WithLogger(l *slog.Logger) PublisherOption {
	return withLogger{l}
}

// WithClock sets the clock that drives the cadence.
func WithClock(c wallclock.WallClock) PublisherOption {
	return withClock{c}
}

// NewPublisher creates a publisher of the generator's readings.
func NewPublisher(
	client Client,
	gen *Generator,
	opts ...PublisherOption,
) (*Publisher, error) {
	if client == nil || gen == nil {
		return nil, &errors.Error{
			Message: "publisher needs a client and a generator",
			Kind:    errors.ArgumentInvalid,
		}
	}

	if gen.DeviceID == "" {
		return nil, invalidOption("DeviceID", gen.DeviceID)
	}

	p := &Publisher{client: client, gen: gen}
	p.options.Apply(opts)

	switch {
	case p.options.Interval < 0:
		return nil, invalidOption("Interval", p.options.Interval)
	case p.options.MaxMessages < 0:
		return nil, invalidOption("MaxMessages", p.options.MaxMessages)
	case p.options.Format != FormatEnvelope && p.options.Format != FormatDataPoints:
		return nil, invalidOption("Format", p.options.Format)
	}
	if p.options.Topic == "" {
		p.options.Topic = DefaultTopic
	}
	if err := mqtt.ValidateTopicName(p.options.Topic); err != nil {
		return nil, &errors.Error{
			Message:       "invalid publish topic",
			Kind:          errors.ArgumentInvalid,
			NestedError:   err,
			PropertyName:  "Topic",
			PropertyValue: p.options.Topic,
		}
	}
	if p.options.Interval == 0 {
		p.options.Interval = DefaultInterval
	}
	if p.options.Clock == nil {
		p.options.Clock = wallclock.Instance
	}
	p.log = log.Wrap(p.options.Logger)

	return p, nil
}

// Run publishes immediately and then on every interval until ctx is
// cancelled or MaxMessages publishes have been started. It returns after
// every started publish has settled.
func (p *Publisher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	p.log.Info(ctx, "publisher started",
		slog.String("topic", p.options.Topic),
		slog.Duration("interval", p.options.Interval),
		slog.String("device_id", p.gen.DeviceID),
	)

	var seq int64
	tick := func() {
		seq++
		reading := p.gen.Next()
		wg.Add(1)
		go func(seq int64) {
			defer wg.Done()
			p.publish(ctx, seq, reading)
		}(seq)
	}

	tick()

	timer := p.options.Clock.NewTimer(p.options.Interval)
	defer timer.Stop()

	for p.options.MaxMessages == 0 || seq < int64(p.options.MaxMessages) {
		select {
		case <-ctx.Done():
			p.log.Info(ctx, "publisher stopping", slog.Int64("sent", seq))
			return nil
		case <-timer.C():
			tick()
			timer.Reset(p.options.Interval)
		}
	}

	p.log.Info(ctx, "publisher reached message limit", slog.Int64("sent", seq))
	return nil
}

// Stats returns the publish counters so far.
func (p *Publisher) Stats() Stats {
	return Stats{
		Attempted: p.attempted.Load(),
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Publisher) publish(
	ctx context.Context,
	seq int64,
	reading telemetry.Envelope,
) {
	p.attempted.Add(1)

	payload, err := p.encode(reading)
	if err != nil {
		p.fail(ctx, seq, err)
		return
	}

	start := time.Now()
	_, err = p.client.Publish(ctx, p.options.Topic, payload,
		mqtt.WithQoS(mqtt.QoS1),
		mqtt.WithContentType(telemetry.ContentType),
		mqtt.WithPayloadFormat(mqtt.PayloadUTF8),
	)
	if err != nil {
		if ctx.Err() != nil {
			p.log.Debug(ctx, "publish abandoned on shutdown", slog.Int64("seq", seq))
			return
		}
		p.fail(ctx, seq, err)
		return
	}

	p.published.Add(1)
	metrics.PublishDuration.Observe(time.Since(start).Seconds())
	metrics.Publishes.WithLabelValues(p.options.Topic, metrics.ResultOK).Inc()
	p.log.Info(ctx, "published reading",
		slog.Int64("seq", seq),
		slog.String("device_id", reading.DeviceID),
		slog.Float64("temperature", reading.Temperature),
		slog.Float64("humidity", reading.Humidity),
		slog.Float64("pressure", reading.Pressure),
		slog.Float64("light", reading.Light),
		slog.Int("battery_level", reading.BatteryLevel),
		slog.Int("signal_strength", reading.SignalStrength),
	)
}

func (p *Publisher) encode(e telemetry.Envelope) ([]byte, error) {
	if p.options.Format == FormatDataPoints {
		return telemetry.EncodeDataPoints(e.DataPoints())
	}
	return telemetry.Encode(e)
}

func (p *Publisher) fail(ctx context.Context, seq int64, err error) {
	p.failed.Add(1)
	metrics.Publishes.WithLabelValues(p.options.Topic, metrics.ResultFailed).Inc()
	p.log.Err(ctx, err, slog.Int64("seq", seq))
}

func invalidOption(name string, value any) error {
	return &errors.Error{
		Message:       "invalid publisher option " + name,
		Kind:          errors.ArgumentInvalid,
		PropertyName:  name,
		PropertyValue: value,
	}
}

// Apply resolves a list of options.
func (o *PublisherOptions) Apply(
	opts []PublisherOption,
	rest ...PublisherOption,
) {
	for _, opt := range opts {
		if opt != nil {
			opt.publisher(o)
		}
	}
	for _, opt := range rest {
		if opt != nil {
			opt.publisher(o)
		}
	}
}

func (o *PublisherOptions) publisher(opt *PublisherOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithTopic) publisher(opt *PublisherOptions) {
	opt.Topic = string(o)
}

func (o WithInterval) publisher(opt *PublisherOptions) {
	opt.Interval = time.Duration(o)
}

func (o WithMaxMessages) publisher(opt *PublisherOptions) {
	opt.MaxMessages = int(o)
}

func (o WithFormat) publisher(opt *PublisherOptions) {
	opt.Format = Format(o)
}

func (o withLogger) publisher(opt *PublisherOptions) {
	opt.Logger = o.Logger
}

func (o withClock) publisher(opt *PublisherOptions) {
	opt.Clock = o.WallClock
}
