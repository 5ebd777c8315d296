// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TranDung6129/sensor-telemetry/errors"
	"github.com/TranDung6129/sensor-telemetry/internal/container"
	"github.com/TranDung6129/sensor-telemetry/internal/log"
	"github.com/TranDung6129/sensor-telemetry/internal/metrics"
	"github.com/TranDung6129/sensor-telemetry/internal/wallclock"
	"github.com/TranDung6129/sensor-telemetry/telemetry"
	"github.com/google/uuid"
)

type (
	// Store is the single owner of a dashboard snapshot. Every change goes
	// through Dispatch or one of the trigger methods, each of which applies
	// its transitions atomically.
	Store struct {
		mu      sync.Mutex
		snap    Snapshot
		closed  bool
		expiry  map[string]wallclock.Timer
		drivers []wallclock.Timer

		randMu sync.Mutex
		rand   *rand.Rand

		started  atomic.Bool
		done     chan struct{}
		handlers container.Handlers[ChangeHandler]
		options  StoreOptions
		log      log.Logger
	}

	// Change describes one committed dispatch.
	Change struct {
		Transitions []Transition

		// Snapshot is the state right after the dispatch. It is shared by
		// every handler and must not be modified.
		Snapshot Snapshot
	}

	// ChangeHandler is notified after every committed dispatch. Handlers may
	// run concurrently; Snapshot.Version orders the changes.
	ChangeHandler func(Change)

	// build computes the transitions of a dispatch from the current state.
	build func(*Snapshot) ([]Transition, error)
)

// NewStore creates a store holding the initial dashboard snapshot. Drivers do
// not run until Start.
func NewStore(opts ...StoreOption) (*Store, error) {
	s := &Store{
		expiry: map[string]wallclock.Timer{},
		done:   make(chan struct{}),
	}
	s.options.Apply(opts)

	for name, d := range map[string]time.Duration{
		"RefreshInterval": s.options.RefreshInterval,
		"HealthInterval":  s.options.HealthInterval,
		"NotificationTTL": s.options.NotificationTTL,
		"RefreshDelay":    s.options.RefreshDelay,
	} {
		if d < 0 {
			return nil, &errors.Error{
				Message:       "duration must not be negative",
				Kind:          errors.ArgumentInvalid,
				PropertyName:  name,
				PropertyValue: d,
			}
		}
	}
	if p := s.options.OnlineProbability; p < 0 || p > 1 {
		return nil, &errors.Error{
			Message:       "probability must be between 0 and 1",
			Kind:          errors.ArgumentInvalid,
			PropertyName:  "OnlineProbability",
			PropertyValue: p,
		}
	}

	if s.options.RefreshInterval == 0 {
		s.options.RefreshInterval = DefaultRefreshInterval
	}
	if s.options.HealthInterval == 0 {
		s.options.HealthInterval = DefaultHealthInterval
	}
	if s.options.NotificationTTL == 0 {
		s.options.NotificationTTL = DefaultNotificationTTL
	}
	if s.options.RefreshDelay == 0 {
		s.options.RefreshDelay = DefaultRefreshDelay
	}
	if s.options.OnlineProbability == 0 {
		s.options.OnlineProbability = DefaultOnlineProbability
	}
	if s.options.Clock == nil {
		s.options.Clock = wallclock.Instance
	}
	if s.options.Fetch == nil {
		s.options.Fetch = s.delay
	}

	seed := s.options.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	// #nosec G404
	s.rand = rand.New(rand.NewPCG(seed, seed^0xda942042e4dd58b5))
	s.log = log.Wrap(s.options.Logger)

	s.snap = NewSnapshot()
	s.snap.Chart = s.chartSeries(s.snap.TimeRange, s.options.Clock.Now())
	return s, nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Subscribe registers a handler for committed changes.
func (s *Store) Subscribe(handler ChangeHandler) (remove func()) {
	return s.handlers.Add(handler)
}

// Dispatch applies the transitions in order as one atomic change. If any of
// them is rejected, none is applied.
func (s *Store) Dispatch(ts ...Transition) error {
	_, err := s.commit(func(*Snapshot) ([]Transition, error) {
		return ts, nil
	})
	return err
}

// Close stops the drivers and cancels every pending notification expiry.
// The store rejects dispatches afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	for _, t := range s.drivers {
		t.Stop()
	}
	s.drivers = nil
	for id, t := range s.expiry {
		t.Stop()
		delete(s.expiry, id)
	}
	return nil
}

func (s *Store) commit(b build) (Snapshot, error) {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, errClosed
	}

	ts, err := b(&s.snap)
	if err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	if len(ts) == 0 {
		view := s.snap.Clone()
		s.mu.Unlock()
		return view, nil
	}

	next := s.snap.Clone()
	for _, t := range ts {
		if t == nil {
			s.mu.Unlock()
			return Snapshot{}, &errors.Error{
				Message: "nil transition",
				Kind:    errors.ArgumentInvalid,
			}
		}
		if err := t.apply(&next); err != nil {
			s.mu.Unlock()
			metrics.RejectedTransitions.WithLabelValues(t.Name()).Inc()
			s.log.Debug(context.Background(), "transition rejected",
				slog.String("transition", t.Name()),
				slog.String("error", err.Error()),
			)
			return Snapshot{}, err
		}
	}
	next.Version++
	s.snap = next
	s.scheduleExpiry(ts)

	view := next.Clone()
	s.mu.Unlock()

	for _, t := range ts {
		metrics.Transitions.WithLabelValues(t.Name()).Inc()
	}
	metrics.ActiveNotifications.Set(float64(len(view.Notifications)))

	change := Change{Transitions: ts, Snapshot: view}
	for h := range s.handlers.All() {
		h(change)
	}
	return view, nil
}

// scheduleExpiry arms a drop for every pushed notification and cancels the
// drop of every dropped one. Must hold s.mu.
func (s *Store) scheduleExpiry(ts []Transition) {
	for _, t := range ts {
		switch t := t.(type) {
		case PushNotification:
			id := t.Notification.ID
			s.expiry[id] = s.options.Clock.AfterFunc(
				s.options.NotificationTTL,
				func() { s.expire(id) },
			)
		case DropNotification:
			if timer, ok := s.expiry[t.ID]; ok {
				timer.Stop()
				delete(s.expiry, t.ID)
			}
		}
	}
}

func (s *Store) expire(id string) {
	_ = s.drop(id)
}

// drop removes a notification, committing nothing if it is already gone.
func (s *Store) drop(id string) error {
	_, err := s.commit(func(snap *Snapshot) ([]Transition, error) {
		if _, ok := snap.Notification(id); !ok {
			if timer, ok := s.expiry[id]; ok {
				timer.Stop()
				delete(s.expiry, id)
			}
			return nil, nil
		}
		return []Transition{DropNotification{id}}, nil
	})
	return err
}

// notification builds a notification stamped with the current time.
func (s *Store) notification(message string, category Category) PushNotification {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return PushNotification{Notification{
		ID:        id.String(),
		Message:   message,
		Category:  category,
		CreatedAt: s.options.Clock.Now(),
	}}
}

// ToggleSidebar flips the sidebar.
func (s *Store) ToggleSidebar() error {
	return s.Dispatch(ToggleSidebar{})
}

// SetLoading sets the loading flag.
func (s *Store) SetLoading(loading bool) error {
	return s.Dispatch(SetLoading{loading})
}

// SetConnectionStatus replaces the connection status.
func (s *Store) SetConnectionStatus(status ConnectionStatus) error {
	return s.Dispatch(SetConnectionStatus{status})
}

// TouchLastUpdate stamps the last update with the current time.
func (s *Store) TouchLastUpdate() error {
	return s.Dispatch(TouchLastUpdate{s.options.Clock.Now()})
}

// MergeSensorData replaces the readings of the given kinds.
func (s *Store) MergeSensorData(partial map[SensorKind]SensorReading) error {
	return s.Dispatch(MergeSensorData{Readings: partial})
}

// SetChartSeries replaces the chart series.
func (s *Store) SetChartSeries(series []ChartPoint) error {
	return s.Dispatch(SetChartSeries{series})
}

// SetTimeRange replaces the selected range without touching the chart.
func (s *Store) SetTimeRange(r TimeRange) error {
	return s.Dispatch(SetTimeRange{r})
}

// SelectTimeRange switches the range and regenerates the chart for it in the
// same change.
func (s *Store) SelectTimeRange(r TimeRange) error {
	return s.Dispatch(
		SetTimeRange{r},
		SetChartSeries{s.chartSeries(r, s.options.Clock.Now())},
	)
}

// SetPage moves the device list cursor.
func (s *Store) SetPage(page int) error {
	return s.Dispatch(SetPage{page})
}

// SetPageSize changes the page size and returns to the first page.
func (s *Store) SetPageSize(size int) error {
	return s.Dispatch(SetPageSize{size})
}

// SetTotalItems updates the device list length.
func (s *Store) SetTotalItems(items int) error {
	return s.Dispatch(SetTotalItems{items})
}

// PushNotification shows a message and returns its ID. It is dropped
// automatically after the notification TTL.
func (s *Store) PushNotification(message string, category Category) (string, error) {
	n := s.notification(message, category)
	return n.Notification.ID, s.Dispatch(n)
}

// DropNotification removes a notification; unknown IDs are ignored.
func (s *Store) DropNotification(id string) error {
	return s.drop(id)
}

// Ingest merges a received telemetry envelope into the live readings. Trends
// follow the value change.
func (s *Store) Ingest(e *telemetry.Envelope) error {
	return s.ingest(map[SensorKind]float64{
		Temperature: e.Temperature,
		Humidity:    e.Humidity,
		Pressure:    e.Pressure,
		Light:       e.Light,
	}, e.Timestamp)
}

// IngestDataPoints merges the charted sensors of a full-protocol envelope.
// Kinds without a data point keep their reading; an envelope with none of
// them commits nothing.
func (s *Store) IngestDataPoints(d *telemetry.DataPointsEnvelope) error {
	values := make(map[SensorKind]float64, len(dataPointSensors))
	for kind, sensor := range dataPointSensors {
		if v, ok := d.Value(sensor); ok {
			values[kind] = v
		}
	}
	if len(values) == 0 {
		return nil
	}
	return s.ingest(values, d.Timestamp)
}

var dataPointSensors = map[SensorKind]string{
	Temperature: telemetry.SensorTemperature,
	Humidity:    telemetry.SensorHumidity,
	Pressure:    telemetry.SensorPressure,
	Light:       telemetry.SensorLight,
}

func (s *Store) ingest(values map[SensorKind]float64, at time.Time) error {
	if at.IsZero() {
		at = s.options.Clock.Now()
	}
	return s.Dispatch(
		MergeSensorData{Readings: readings(values, nil), DeriveTrend: true},
		TouchLastUpdate{at},
	)
}
