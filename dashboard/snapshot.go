// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package dashboard owns the client-side view of the sensor network: one
// snapshot, changed only through named transitions, kept fresh by periodic
// drivers.
package dashboard

import (
	"maps"
	"slices"
	"time"
)

type (
	// SensorKind names one of the dashboard's sensor readings.
	SensorKind string

	// Trend is a coarse classification of the most recent change.
	Trend string

	// ConnectionStatus is the estimated broker connection health.
	ConnectionStatus string

	// Category is the severity of a notification.
	Category string

	// TimeRange selects the span of the chart series.
	TimeRange string

	// SensorReading is the live value of one sensor kind and its fixed
	// bounds.
	SensorReading struct {
		Min     float64 `json:"min"`
		Max     float64 `json:"max"`
		Current float64 `json:"current"`
		Trend   Trend   `json:"trend"`
	}

	// Notification is a user-visible message that expires on its own.
	Notification struct {
		ID        string    `json:"id"`
		Message   string    `json:"message"`
		Category  Category  `json:"category"`
		CreatedAt time.Time `json:"createdAt"`
	}

	// Pagination is the cursor over the device list.
	Pagination struct {
		Page       int `json:"page"`
		PageSize   int `json:"pageSize"`
		TotalItems int `json:"totalItems"`
	}

	// ChartPoint is one sample of the historical chart.
	ChartPoint struct {
		Time        time.Time `json:"time"`
		Temperature float64   `json:"temperature"`
		Humidity    float64   `json:"humidity"`
		Pressure    float64   `json:"pressure"`
		Light       float64   `json:"light"`
	}

	// Snapshot is the complete client state. Values returned by the store are
	// copies; changing them has no effect on the store.
	Snapshot struct {
		// Version increases with every committed dispatch.
		Version uint64 `json:"version"`

		SidebarOpen   bool                         `json:"sidebarOpen"`
		Loading       bool                         `json:"loading"`
		Connection    ConnectionStatus             `json:"connection"`
		LastUpdate    time.Time                    `json:"lastUpdate"`
		Readings      map[SensorKind]SensorReading `json:"readings"`
		Chart         []ChartPoint                 `json:"chart"`
		TimeRange     TimeRange                    `json:"timeRange"`
		Pagination    Pagination                   `json:"pagination"`
		Notifications []Notification               `json:"notifications"`
	}

	// Bounds is an inclusive value range.
	Bounds struct{ Min, Max float64 }
)

const (
	Temperature SensorKind = "temperature"
	Humidity    SensorKind = "humidity"
	Pressure    SensorKind = "pressure"
	Light       SensorKind = "light"
)

const (
	Positive Trend = "positive"
	Negative Trend = "negative"
	Neutral  Trend = "neutral"
)

const (
	Online  ConnectionStatus = "online"
	Offline ConnectionStatus = "offline"
)

const (
	Success Category = "success"
	Info    Category = "info"
	Warning Category = "warning"
	Danger  Category = "danger"
)

const (
	Range24h TimeRange = "24h"
	Range7d  TimeRange = "7d"
	Range30d TimeRange = "30d"
)

// DefaultPageSize is the initial page size of the device list.
const DefaultPageSize = 10

var (
	// SensorKinds lists every kind in display order.
	SensorKinds = []SensorKind{Temperature, Humidity, Pressure, Light}

	// Trends lists every trend classification.
	Trends = []Trend{Positive, Negative, Neutral}

	// LiveBounds are the fixed ranges of the live readings.
	LiveBounds = map[SensorKind]Bounds{
		Temperature: {15, 35},
		Humidity:    {30, 90},
		Pressure:    {1000, 1020},
		Light:       {0, 1000},
	}

	// ChartBounds are the ranges of generated chart samples.
	ChartBounds = map[SensorKind]Bounds{
		Temperature: {20, 30},
		Humidity:    {40, 70},
		Pressure:    {1008, 1018},
		Light:       {200, 800},
	}

	initialReadings = map[SensorKind]float64{
		Temperature: 24.5,
		Humidity:    65,
		Pressure:    1013.2,
		Light:       850,
	}
)

// NewSnapshot returns the state of a freshly opened dashboard.
func NewSnapshot() Snapshot {
	readings := make(map[SensorKind]SensorReading, len(SensorKinds))
	for _, kind := range SensorKinds {
		b := LiveBounds[kind]
		readings[kind] = SensorReading{
			Min:     b.Min,
			Max:     b.Max,
			Current: initialReadings[kind],
			Trend:   Neutral,
		}
	}
	return Snapshot{
		SidebarOpen: true,
		Connection:  Online,
		Readings:    readings,
		TimeRange:   Range24h,
		Pagination:  Pagination{Page: 1, PageSize: DefaultPageSize},
	}
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	s.Readings = maps.Clone(s.Readings)
	s.Chart = slices.Clone(s.Chart)
	s.Notifications = slices.Clone(s.Notifications)
	return s
}

// Notification returns the notification with the given ID.
func (s *Snapshot) Notification(id string) (Notification, bool) {
	i := slices.IndexFunc(s.Notifications, func(n Notification) bool {
		return n.ID == id
	})
	if i < 0 {
		return Notification{}, false
	}
	return s.Notifications[i], true
}

// TotalPages is the number of pages of the device list; it is at least 1.
func (p Pagination) TotalPages() int {
	if p.PageSize <= 0 || p.TotalItems <= p.PageSize {
		return 1
	}
	return (p.TotalItems + p.PageSize - 1) / p.PageSize
}

// Valid reports whether the status is one of the known statuses.
func (s ConnectionStatus) Valid() bool {
	return s == Online || s == Offline
}

// Valid reports whether the category is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case Success, Info, Warning, Danger:
		return true
	default:
		return false
	}
}

// Valid reports whether the range is one of the selectable ranges.
func (r TimeRange) Valid() bool {
	return r == Range24h || r == Range7d || r == Range30d
}

// Points is the number of chart samples the range covers.
func (r TimeRange) Points() int {
	switch r {
	case Range7d:
		return 7
	case Range30d:
		return 30
	default:
		return 24
	}
}

// Step is the spacing between chart samples.
func (r TimeRange) Step() time.Duration {
	if r == Range24h {
		return time.Hour
	}
	return 24 * time.Hour
}
