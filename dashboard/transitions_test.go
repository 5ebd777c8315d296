// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard_test

import (
	"testing"
	"time"

	"github.com/TranDung6129/sensor-telemetry/dashboard"
	"github.com/TranDung6129/sensor-telemetry/errors"
	"github.com/stretchr/testify/require"
)

func paged(items int) dashboard.Snapshot {
	s := dashboard.NewSnapshot()
	s.Pagination.TotalItems = items
	return s
}

func TestReduceDoesNotModifyInput(t *testing.T) {
	before := dashboard.NewSnapshot()
	original := before.Clone()

	after, err := dashboard.Reduce(before, dashboard.MergeSensorData{
		Readings: map[dashboard.SensorKind]dashboard.SensorReading{
			dashboard.Light: {Min: 0, Max: 1000, Current: 10, Trend: dashboard.Negative},
		},
	})
	require.NoError(t, err)
	require.Equal(t, original, before)
	require.Equal(t, 10.0, after.Readings[dashboard.Light].Current)
	require.Equal(t, before.Readings[dashboard.Temperature], after.Readings[dashboard.Temperature])
}

func TestReduceToggleAndLoading(t *testing.T) {
	s := dashboard.NewSnapshot()
	require.True(t, s.SidebarOpen)

	s, err := dashboard.Reduce(s, dashboard.ToggleSidebar{})
	require.NoError(t, err)
	require.False(t, s.SidebarOpen)

	s, err = dashboard.Reduce(s, dashboard.ToggleSidebar{})
	require.NoError(t, err)
	require.True(t, s.SidebarOpen)

	s, err = dashboard.Reduce(s, dashboard.SetLoading{Loading: true})
	require.NoError(t, err)
	require.True(t, s.Loading)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s, err = dashboard.Reduce(s, dashboard.TouchLastUpdate{At: at})
	require.NoError(t, err)
	require.Equal(t, at, s.LastUpdate)
}

func TestReducePreconditions(t *testing.T) {
	for _, tc := range []struct {
		name       string
		transition dashboard.Transition
		property   string
	}{
		{"UnknownStatus", dashboard.SetConnectionStatus{Status: "degraded"}, "status"},
		{"UnknownRange", dashboard.SetTimeRange{Range: "1y"}, "range"},
		{"PageZero", dashboard.SetPage{Page: 0}, "page"},
		{"PageBeyondLast", dashboard.SetPage{Page: 4}, "page"},
		{"PageSizeZero", dashboard.SetPageSize{Size: 0}, "size"},
		{"NegativeItems", dashboard.SetTotalItems{Items: -1}, "items"},
		{"NotificationWithoutID", dashboard.PushNotification{
			Notification: dashboard.Notification{Message: "x", Category: dashboard.Info},
		}, "id"},
		{"UnknownCategory", dashboard.PushNotification{
			Notification: dashboard.Notification{ID: "n1", Category: "fatal"},
		}, "category"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			before := paged(30)
			after, err := dashboard.Reduce(before, tc.transition)

			var e *errors.Error
			require.ErrorAs(t, err, &e)
			require.Equal(t, errors.PreconditionViolation, e.Kind)
			require.Equal(t, tc.property, e.PropertyName)
			require.Equal(t, before, after)
		})
	}
}

func TestReducePagination(t *testing.T) {
	s := paged(35)
	require.Equal(t, 4, s.Pagination.TotalPages())

	s, err := dashboard.Reduce(s, dashboard.SetPage{Page: 4})
	require.NoError(t, err)
	require.Equal(t, 4, s.Pagination.Page)

	for _, size := range []int{1, 7, 50} {
		next, err := dashboard.Reduce(s, dashboard.SetPageSize{Size: size})
		require.NoError(t, err)
		require.Equal(t, 1, next.Pagination.Page)
		require.Equal(t, size, next.Pagination.PageSize)
	}

	s, err = dashboard.Reduce(s, dashboard.SetTotalItems{Items: 12})
	require.NoError(t, err)
	require.Equal(t, 2, s.Pagination.Page)

	s, err = dashboard.Reduce(s, dashboard.SetTotalItems{Items: 0})
	require.NoError(t, err)
	require.Equal(t, 1, s.Pagination.Page)
	require.Equal(t, 1, s.Pagination.TotalPages())
}

func TestReduceNotifications(t *testing.T) {
	n := dashboard.Notification{ID: "n1", Message: "Saved", Category: dashboard.Success}

	s, err := dashboard.Reduce(dashboard.NewSnapshot(), dashboard.PushNotification{Notification: n})
	require.NoError(t, err)
	got, ok := s.Notification("n1")
	require.True(t, ok)
	require.Equal(t, n, got)

	_, err = dashboard.Reduce(s, dashboard.PushNotification{Notification: n})
	require.True(t, errors.IsKind(err, errors.PreconditionViolation))

	s, err = dashboard.Reduce(s, dashboard.DropNotification{ID: "n1"})
	require.NoError(t, err)
	require.Empty(t, s.Notifications)

	again, err := dashboard.Reduce(s, dashboard.DropNotification{ID: "n1"})
	require.NoError(t, err)
	require.Equal(t, s, again)
}

func TestReduceMergeDerivesTrend(t *testing.T) {
	s := dashboard.NewSnapshot()
	prev := s.Readings[dashboard.Temperature].Current

	s, err := dashboard.Reduce(s, dashboard.MergeSensorData{
		Readings: map[dashboard.SensorKind]dashboard.SensorReading{
			dashboard.Temperature: {Min: 15, Max: 35, Current: prev + 1, Trend: dashboard.Negative},
			dashboard.Humidity:    {Min: 30, Max: 90, Current: s.Readings[dashboard.Humidity].Current},
		},
		DeriveTrend: true,
	})
	require.NoError(t, err)
	require.Equal(t, dashboard.Positive, s.Readings[dashboard.Temperature].Trend)
	require.Equal(t, dashboard.Neutral, s.Readings[dashboard.Humidity].Trend)

	s, err = dashboard.Reduce(s, dashboard.MergeSensorData{
		Readings: map[dashboard.SensorKind]dashboard.SensorReading{
			dashboard.Temperature: {Min: 15, Max: 35, Current: prev, Trend: dashboard.Positive},
		},
		DeriveTrend: true,
	})
	require.NoError(t, err)
	require.Equal(t, dashboard.Negative, s.Readings[dashboard.Temperature].Trend)
}

func TestReduceChartSeriesIsCopied(t *testing.T) {
	series := []dashboard.ChartPoint{{Temperature: 21}}
	s, err := dashboard.Reduce(dashboard.NewSnapshot(), dashboard.SetChartSeries{Series: series})
	require.NoError(t, err)

	series[0].Temperature = 99
	require.Equal(t, 21.0, s.Chart[0].Temperature)
}

func TestReduceNilTransition(t *testing.T) {
	_, err := dashboard.Reduce(dashboard.NewSnapshot(), nil)
	require.True(t, errors.IsKind(err, errors.ArgumentInvalid))
}

func TestTimeRangeGeometry(t *testing.T) {
	require.Equal(t, 24, dashboard.Range24h.Points())
	require.Equal(t, time.Hour, dashboard.Range24h.Step())
	require.Equal(t, 7, dashboard.Range7d.Points())
	require.Equal(t, 30, dashboard.Range30d.Points())
	require.Equal(t, 24*time.Hour, dashboard.Range30d.Step())
}
