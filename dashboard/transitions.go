// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard

import (
	"fmt"
	"slices"
	"time"

	"github.com/TranDung6129/sensor-telemetry/errors"
)

type (
	// Transition is one named change to the snapshot. The set of transitions
	// is closed; Reduce is the only way to apply them.
	Transition interface {
		Name() string
		apply(*Snapshot) error
	}

	// ToggleSidebar flips the sidebar.
	ToggleSidebar struct{}

	// SetLoading sets the loading flag.
	SetLoading struct{ Loading bool }

	// SetConnectionStatus replaces the connection status.
	SetConnectionStatus struct{ Status ConnectionStatus }

	// TouchLastUpdate records the time of the latest data refresh.
	TouchLastUpdate struct{ At time.Time }

	// MergeSensorData replaces the readings of the kinds it names and keeps
	// the rest. With DeriveTrend, each merged trend is the sign of the change
	// from the previous value instead of the given one.
	MergeSensorData struct {
		Readings    map[SensorKind]SensorReading
		DeriveTrend bool
	}

	// SetChartSeries replaces the chart series.
	SetChartSeries struct{ Series []ChartPoint }

	// SetTimeRange replaces the selected chart range.
	SetTimeRange struct{ Range TimeRange }

	// SetPage moves the device list cursor. Pages outside the list are
	// rejected, not clamped.
	SetPage struct{ Page int }

	// SetPageSize changes the page size and returns to the first page.
	SetPageSize struct{ Size int }

	// SetTotalItems updates the length of the device list, pulling the page
	// back inside the list if it shrank.
	SetTotalItems struct{ Items int }

	// PushNotification appends a notification.
	PushNotification struct{ Notification Notification }

	// DropNotification removes a notification if it is still present.
	DropNotification struct{ ID string }
)

// Reduce applies one transition and returns the resulting snapshot. The input
// is never modified. A transition whose precondition fails returns the input
// snapshot together with a PreconditionViolation error.
func Reduce(s Snapshot, t Transition) (Snapshot, error) {
	if t == nil {
		return s, &errors.Error{
			Message: "nil transition",
			Kind:    errors.ArgumentInvalid,
		}
	}
	next := s.Clone()
	if err := t.apply(&next); err != nil {
		return s, err
	}
	return next, nil
}

func violation(t Transition, property string, value any) error {
	return &errors.Error{
		Message:       fmt.Sprintf("%s: invalid %s %v", t.Name(), property, value),
		Kind:          errors.PreconditionViolation,
		PropertyName:  property,
		PropertyValue: value,
	}
}

func (ToggleSidebar) Name() string       { return "toggleSidebar" }
func (SetLoading) Name() string          { return "setLoading" }
func (SetConnectionStatus) Name() string { return "setConnectionStatus" }
func (TouchLastUpdate) Name() string     { return "touchLastUpdate" }
func (MergeSensorData) Name() string     { return "mergeSensorData" }
func (SetChartSeries) Name() string      { return "setChartSeries" }
func (SetTimeRange) Name() string        { return "setTimeRange" }
func (SetPage) Name() string             { return "setPage" }
func (SetPageSize) Name() string         { return "setPageSize" }
func (SetTotalItems) Name() string       { return "setTotalItems" }
func (PushNotification) Name() string    { return "pushNotification" }
func (DropNotification) Name() string    { return "dropNotification" }

func (ToggleSidebar) apply(s *Snapshot) error {
	s.SidebarOpen = !s.SidebarOpen
	return nil
}

func (t SetLoading) apply(s *Snapshot) error {
	s.Loading = t.Loading
	return nil
}

func (t SetConnectionStatus) apply(s *Snapshot) error {
	if !t.Status.Valid() {
		return violation(t, "status", t.Status)
	}
	s.Connection = t.Status
	return nil
}

func (t TouchLastUpdate) apply(s *Snapshot) error {
	s.LastUpdate = t.At
	return nil
}

func (t MergeSensorData) apply(s *Snapshot) error {
	if s.Readings == nil {
		s.Readings = make(map[SensorKind]SensorReading, len(t.Readings))
	}
	for kind, r := range t.Readings {
		if t.DeriveTrend {
			r.Trend = Neutral
			if prev, ok := s.Readings[kind]; ok {
				r.Trend = trendOf(r.Current - prev.Current)
			}
		}
		s.Readings[kind] = r
	}
	return nil
}

func (t SetChartSeries) apply(s *Snapshot) error {
	s.Chart = slices.Clone(t.Series)
	return nil
}

func (t SetTimeRange) apply(s *Snapshot) error {
	if !t.Range.Valid() {
		return violation(t, "range", t.Range)
	}
	s.TimeRange = t.Range
	return nil
}

func (t SetPage) apply(s *Snapshot) error {
	if t.Page < 1 || t.Page > s.Pagination.TotalPages() {
		return violation(t, "page", t.Page)
	}
	s.Pagination.Page = t.Page
	return nil
}

func (t SetPageSize) apply(s *Snapshot) error {
	if t.Size <= 0 {
		return violation(t, "size", t.Size)
	}
	s.Pagination.PageSize = t.Size
	s.Pagination.Page = 1
	return nil
}

func (t SetTotalItems) apply(s *Snapshot) error {
	if t.Items < 0 {
		return violation(t, "items", t.Items)
	}
	s.Pagination.TotalItems = t.Items
	s.Pagination.Page = min(s.Pagination.Page, s.Pagination.TotalPages())
	return nil
}

func (t PushNotification) apply(s *Snapshot) error {
	n := t.Notification
	if n.ID == "" {
		return violation(t, "id", n.ID)
	}
	if !n.Category.Valid() {
		return violation(t, "category", n.Category)
	}
	if _, ok := s.Notification(n.ID); ok {
		return violation(t, "id", n.ID)
	}
	s.Notifications = append(s.Notifications, n)
	return nil
}

func (t DropNotification) apply(s *Snapshot) error {
	s.Notifications = slices.DeleteFunc(s.Notifications, func(n Notification) bool {
		return n.ID == t.ID
	})
	return nil
}

func trendOf(delta float64) Trend {
	switch {
	case delta > 0:
		return Positive
	case delta < 0:
		return Negative
	default:
		return Neutral
	}
}

// readings builds a merge payload from current values, keeping the live
// bounds of each kind.
func readings(values map[SensorKind]float64, trends map[SensorKind]Trend) map[SensorKind]SensorReading {
	out := make(map[SensorKind]SensorReading, len(values))
	for kind, v := range values {
		b := LiveBounds[kind]
		out[kind] = SensorReading{
			Min:     b.Min,
			Max:     b.Max,
			Current: v,
			Trend:   trends[kind],
		}
	}
	return out
}
