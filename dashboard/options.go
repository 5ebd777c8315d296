// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/TranDung6129/sensor-telemetry/internal/wallclock"
)

type (
	// StoreOptions configure a Store. Zero values select the defaults.
	StoreOptions struct {
		RefreshInterval time.Duration
		HealthInterval  time.Duration
		NotificationTTL time.Duration

		// RefreshDelay is how long a manual refresh waits before applying new
		// data. It is ignored when Fetch is set.
		RefreshDelay time.Duration

		// Fetch replaces the manual refresh delay. An error aborts the
		// refresh and is shown as a danger notification.
		Fetch func(context.Context) error

		// Probe replaces the random connection health draw.
		Probe func() bool

		// OnlineProbability is the chance a random health draw reports
		// online.
		OnlineProbability float64

		// TrendFromDelta derives refreshed trends from the value change
		// instead of drawing them.
		TrendFromDelta bool

		// Seed makes the random draws reproducible; zero picks a random seed.
		Seed uint64

		Logger *slog.Logger
		Clock  wallclock.WallClock
	}

	// StoreOption configures a Store.
	StoreOption interface{ store(*StoreOptions) }

	// WithRefreshInterval sets the data refresh driver period.
	WithRefreshInterval time.Duration

	// WithHealthInterval sets the connection health driver period.
	WithHealthInterval time.Duration

	// WithNotificationTTL sets how long notifications stay visible.
	WithNotificationTTL time.Duration

	// WithRefreshDelay sets the simulated manual refresh delay.
	WithRefreshDelay time.Duration

	// WithOnlineProbability sets the chance of an online health draw.
	WithOnlineProbability float64

	// WithTrendFromDelta derives trends from value changes.
	WithTrendFromDelta bool

	// WithSeed seeds the random draws.
	WithSeed uint64

	withFetch func(context.Context) error

	withProbe func() bool

	withLogger struct{ *slog.Logger }

	withClock struct{ wallclock.WallClock }
)

const (
	DefaultRefreshInterval   = 30 * time.Second
	DefaultHealthInterval    = 5 * time.Second
	DefaultNotificationTTL   = 3 * time.Second
	DefaultRefreshDelay      = time.Second
	DefaultOnlineProbability = 0.9
)

// WithFetch replaces the manual refresh delay with f.
func WithFetch(f func(context.Context) error) StoreOption {
	return withFetch(f)
}

// WithProbe replaces the random connection health draw with probe, which
// reports whether the connection is up.
func WithProbe(probe func() bool) StoreOption {
	return withProbe(probe)
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) StoreOption {
	return withLogger{l}
}

// WithClock sets the clock driving timers and timestamps.
func WithClock(c wallclock.WallClock) StoreOption {
	return withClock{c}
}

// Apply resolves a list of options.
func (o *StoreOptions) Apply(opts []StoreOption, rest ...StoreOption) {
	for _, opt := range opts {
		if opt != nil {
			opt.store(o)
		}
	}
	for _, opt := range rest {
		if opt != nil {
			opt.store(o)
		}
	}
}

func (o *StoreOptions) store(opt *StoreOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithRefreshInterval) store(opt *StoreOptions) {
	opt.RefreshInterval = time.Duration(o)
}

func (o WithHealthInterval) store(opt *StoreOptions) {
	opt.HealthInterval = time.Duration(o)
}

func (o WithNotificationTTL) store(opt *StoreOptions) {
	opt.NotificationTTL = time.Duration(o)
}

func (o WithRefreshDelay) store(opt *StoreOptions) {
	opt.RefreshDelay = time.Duration(o)
}

func (o WithOnlineProbability) store(opt *StoreOptions) {
	opt.OnlineProbability = float64(o)
}

func (o WithTrendFromDelta) store(opt *StoreOptions) {
	opt.TrendFromDelta = bool(o)
}

func (o WithSeed) store(opt *StoreOptions) {
	opt.Seed = uint64(o)
}

func (o withFetch) store(opt *StoreOptions) {
	opt.Fetch = o
}

func (o withProbe) store(opt *StoreOptions) {
	opt.Probe = o
}

func (o withLogger) store(opt *StoreOptions) {
	opt.Logger = o.Logger
}

func (o withClock) store(opt *StoreOptions) {
	opt.Clock = o.WallClock
}
