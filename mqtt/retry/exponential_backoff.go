// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/TranDung6129/sensor-telemetry/internal/log"
	"github.com/TranDung6129/sensor-telemetry/internal/wallclock"
)

// ExponentialBackoff doubles the wait between attempts from MinInterval up to
// MaxInterval, with ±5% jitter unless NoJitter is set.
type ExponentialBackoff struct {
	// MaxAttempts caps the number of attempts; 0 means unlimited and 1
	// disables retries.
	MaxAttempts uint64

	// MinInterval defaults to 250ms.
	MinInterval time.Duration

	// MaxInterval defaults to 30s.
	MaxInterval time.Duration

	// Timeout bounds all attempts together.
	Timeout time.Duration

	NoJitter bool

	Logger *slog.Logger

	// Clock defaults to the real clock.
	Clock wallclock.WallClock
}

// Start runs task until it succeeds or the policy gives up, returning the
// last error.
func (e *ExponentialBackoff) Start(
	ctx context.Context,
	name string,
	task Task,
) error {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	clock := e.Clock
	if clock == nil {
		clock = wallclock.Instance
	}
	l := logger{log.Wrap(e.Logger)}

	for attempt := uint64(1); ; attempt++ {
		l.attempt(ctx, name, attempt)

		retry, err := task(ctx)
		if err == nil {
			l.complete(ctx, name, attempt, nil)
			return nil
		}
		if !retry || attempt == e.MaxAttempts || ctx.Err() != nil {
			l.complete(ctx, name, attempt, err)
			return err
		}

		wait := e.Interval(attempt)
		l.backoff(ctx, name, attempt, err, slog.DurationValue(wait))

		select {
		case <-clock.After(wait):
		case <-ctx.Done():
			l.complete(ctx, name, attempt, ctx.Err())
			return ctx.Err()
		}
	}
}

// Interval returns the wait that follows the given failed attempt.
func (e *ExponentialBackoff) Interval(attempt uint64) time.Duration {
	lo := e.MinInterval
	if lo <= 0 {
		lo = 250 * time.Millisecond
	}
	hi := e.MaxInterval
	if hi <= 0 {
		hi = 30 * time.Second
	}
	if hi < lo {
		hi = lo
	}

	d := min(
		float64(lo)*math.Pow(2, float64(min(attempt-1, 62))),
		float64(hi),
	)
	if !e.NoJitter {
		// #nosec G404
		d *= .95 + .1*rand.Float64()
	}
	return time.Duration(d)
}
