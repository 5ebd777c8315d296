// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package diagnostic

import (
	"log/slog"
	"time"

	"github.com/TranDung6129/sensor-telemetry/internal/wallclock"
)

type (
	// MonitorOptions configure a Monitor.
	MonitorOptions struct {
		Filter   string
		Window   time.Duration
		Reporter Reporter
		Logger   *slog.Logger
		Clock    wallclock.WallClock
	}

	// MonitorOption configures a Monitor.
	MonitorOption interface{ monitor(*MonitorOptions) }

	// WithFilter sets the observed topic filter.
	WithFilter string

	// WithWindow sets the observation window.
	WithWindow time.Duration

	withReporter struct{ Reporter }

	withLogger struct{ *slog.Logger }

	withClock struct{ wallclock.WallClock }
)

// WithReporter replaces the default log reporter.
func WithReporter(r Reporter) MonitorOption {
	return withReporter{r}
}

// WithLogger sets the monitor logger, also used by the default reporter.
func WithLogger(l *slog.Logger) MonitorOption {
	return withLogger{l}
}

// WithClock sets the clock that times the observation window.
func WithClock(c wallclock.WallClock) MonitorOption {
	return withClock{c}
}

// Apply resolves a list of options.
func (o *MonitorOptions) Apply(opts []MonitorOption, rest ...MonitorOption) {
	for _, opt := range opts {
		if opt != nil {
			opt.monitor(o)
		}
	}
	for _, opt := range rest {
		if opt != nil {
			opt.monitor(o)
		}
	}
}

func (o *MonitorOptions) monitor(opt *MonitorOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithFilter) monitor(opt *MonitorOptions) {
	opt.Filter = string(o)
}

func (o WithWindow) monitor(opt *MonitorOptions) {
	opt.Window = time.Duration(o)
}

func (o withReporter) monitor(opt *MonitorOptions) {
	opt.Reporter = o.Reporter
}

func (o withLogger) monitor(opt *MonitorOptions) {
	opt.Logger = o.Logger
}

func (o withClock) monitor(opt *MonitorOptions) {
	opt.Clock = o.WallClock
}
