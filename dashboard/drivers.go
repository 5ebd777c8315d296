// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/TranDung6129/sensor-telemetry/errors"
	"github.com/TranDung6129/sensor-telemetry/internal/wallclock"
)

var errClosed = &errors.Error{
	Message: "dashboard store is closed",
	Kind:    errors.StateInvalid,
}

// Start runs the data refresh and connection health drivers until Close.
func (s *Store) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return &errors.Error{
			Message: "dashboard store already started",
			Kind:    errors.StateInvalid,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}

	s.every(s.options.RefreshInterval, "refresh", s.RefreshData)
	s.every(s.options.HealthInterval, "health", s.ProbeConnection)

	s.log.Info(context.Background(), "dashboard drivers started",
		slog.Duration("refresh_interval", s.options.RefreshInterval),
		slog.Duration("health_interval", s.options.HealthInterval),
	)
	return nil
}

// every schedules tick once per period, re-arming only after the previous
// tick returned. Must hold s.mu.
func (s *Store) every(period time.Duration, name string, tick func() error) {
	var timer wallclock.Timer
	timer = s.options.Clock.AfterFunc(period, func() {
		if err := tick(); err != nil && !errors.IsKind(err, errors.StateInvalid) {
			s.log.Warn(context.Background(), "driver tick failed",
				slog.String("driver", name),
				slog.String("error", err.Error()),
			)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.closed {
			timer.Reset(period)
		}
	})
	s.drivers = append(s.drivers, timer)
}

// RefreshData runs one data refresh: new readings, the update time and a
// success notification, applied as one change.
func (s *Store) RefreshData() error {
	_, err := s.commit(func(*Snapshot) ([]Transition, error) {
		return s.refreshTransitions(), nil
	})
	return err
}

// ProbeConnection runs one connection health check and changes the status
// only if it differs from the current one.
func (s *Store) ProbeConnection() error {
	status := Offline
	if s.online() {
		status = Online
	}

	var changed bool
	_, err := s.commit(func(snap *Snapshot) ([]Transition, error) {
		if snap.Connection == status {
			return nil, nil
		}
		changed = true
		return []Transition{SetConnectionStatus{status}}, nil
	})
	if err == nil && changed {
		s.log.Info(context.Background(), "connection status changed",
			slog.String("status", string(status)),
		)
	}
	return err
}

// Refresh is the manual refresh: it sets loading, waits for the fetch, then
// applies new readings and a regenerated chart, clears loading and reports
// success. A refresh already in progress makes it fail with a
// PreconditionViolation. A failed fetch becomes a danger notification and
// is not returned.
func (s *Store) Refresh(ctx context.Context) error {
	if err := s.beginRefresh(); err != nil {
		return err
	}
	return s.finishRefresh(ctx)
}

// StartRefresh is Refresh without waiting for the fetch. The rejection of an
// overlapping refresh is returned directly; the outcome of an accepted one
// is delivered on the channel.
func (s *Store) StartRefresh(ctx context.Context) (<-chan error, error) {
	if err := s.beginRefresh(); err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() { done <- s.finishRefresh(ctx) }()
	return done, nil
}

func (s *Store) beginRefresh() error {
	_, err := s.commit(func(snap *Snapshot) ([]Transition, error) {
		if snap.Loading {
			return nil, &errors.Error{
				Message:       "refresh already in progress",
				Kind:          errors.PreconditionViolation,
				PropertyName:  "Loading",
				PropertyValue: true,
			}
		}
		return []Transition{SetLoading{true}}, nil
	})
	return err
}

func (s *Store) finishRefresh(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-s.done:
			cancel(errClosed)
		case <-ctx.Done():
		}
	}()

	if fetchErr := s.options.Fetch(ctx); fetchErr != nil {
		s.log.Warn(ctx, "refresh failed", slog.String("error", fetchErr.Error()))
		_, err := s.commit(func(*Snapshot) ([]Transition, error) {
			return []Transition{
				SetLoading{false},
				s.notification(fmt.Sprintf("Refresh failed: %v", fetchErr), Danger),
			}, nil
		})
		return err
	}

	_, err := s.commit(func(snap *Snapshot) ([]Transition, error) {
		ts := s.refreshTransitions()
		return append(ts,
			SetChartSeries{s.chartSeries(snap.TimeRange, s.options.Clock.Now())},
			SetLoading{false},
			s.notification("Dashboard refreshed", Success),
		), nil
	})
	return err
}

func (s *Store) delay(ctx context.Context) error {
	timer := s.options.Clock.NewTimer(s.options.RefreshDelay)
	defer timer.Stop()

	select {
	case <-timer.C():
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func (s *Store) refreshTransitions() []Transition {
	values := make(map[SensorKind]float64, len(SensorKinds))
	trends := make(map[SensorKind]Trend, len(SensorKinds))

	s.randMu.Lock()
	for _, kind := range SensorKinds {
		values[kind] = s.draw(LiveBounds[kind])
		trends[kind] = Trends[s.rand.IntN(len(Trends))]
	}
	s.randMu.Unlock()

	return []Transition{
		MergeSensorData{
			Readings:    readings(values, trends),
			DeriveTrend: s.options.TrendFromDelta,
		},
		TouchLastUpdate{s.options.Clock.Now()},
		s.notification("Sensor data updated", Success),
	}
}

// chartSeries generates the samples of a range, oldest first, ending at now.
func (s *Store) chartSeries(r TimeRange, now time.Time) []ChartPoint {
	n, step := r.Points(), r.Step()
	series := make([]ChartPoint, n)

	s.randMu.Lock()
	defer s.randMu.Unlock()
	for i := range series {
		series[i] = ChartPoint{
			Time:        now.Add(-time.Duration(n-1-i) * step),
			Temperature: s.draw(ChartBounds[Temperature]),
			Humidity:    s.draw(ChartBounds[Humidity]),
			Pressure:    s.draw(ChartBounds[Pressure]),
			Light:       s.draw(ChartBounds[Light]),
		}
	}
	return series
}

func (s *Store) online() bool {
	if s.options.Probe != nil {
		return s.options.Probe()
	}
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rand.Float64() < s.options.OnlineProbability
}

// draw returns a value in b rounded to one decimal. Must hold s.randMu.
func (s *Store) draw(b Bounds) float64 {
	return math.Round((b.Min+s.rand.Float64()*(b.Max-b.Min))*10) / 10
}
