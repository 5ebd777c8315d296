// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TranDung6129/sensor-telemetry/mqtt/retry"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type taskMock struct {
	mock.Mock
}

var errRefused = errors.New("connection refused")

func (m *taskMock) Task(context.Context) (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

func fast() *retry.ExponentialBackoff {
	return &retry.ExponentialBackoff{
		MinInterval: time.Millisecond,
		MaxInterval: 4 * time.Millisecond,
	}
}

func TestSucceedsFirstTime(t *testing.T) {
	m := new(taskMock)
	m.On("Task").Return(false, nil)

	require.NoError(t, fast().Start(context.Background(), "connect", m.Task))
	m.AssertNumberOfCalls(t, "Task", 1)
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	m := new(taskMock)
	m.On("Task").Return(true, errRefused)

	r := fast()
	r.MaxAttempts = 3
	err := r.Start(context.Background(), "connect", m.Task)

	require.ErrorIs(t, err, errRefused)
	m.AssertNumberOfCalls(t, "Task", 3)
}

func TestStopsOnNonRetryable(t *testing.T) {
	m := new(taskMock)
	m.On("Task").Return(false, errRefused)

	err := fast().Start(context.Background(), "connect", m.Task)

	require.ErrorIs(t, err, errRefused)
	m.AssertNumberOfCalls(t, "Task", 1)
}

func TestRetriesUntilSuccess(t *testing.T) {
	m := new(taskMock)
	m.On("Task").Twice().Return(true, errRefused)
	m.On("Task").Once().Return(false, nil)

	require.NoError(t, fast().Start(context.Background(), "connect", m.Task))
	m.AssertNumberOfCalls(t, "Task", 3)
}

func TestCancelledWhileWaiting(t *testing.T) {
	called := make(chan struct{}, 1)
	m := new(taskMock)
	m.On("Task").Run(func(mock.Arguments) {
		called <- struct{}{}
	}).Return(true, errRefused)

	ctx, cancel := context.WithCancel(context.Background())
	r := &retry.ExponentialBackoff{MinInterval: time.Hour, MaxInterval: time.Hour}

	done := make(chan error)
	go func() { done <- r.Start(ctx, "connect", m.Task) }()

	<-called
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
}

func TestIntervalDoublesAndCaps(t *testing.T) {
	r := &retry.ExponentialBackoff{
		MinInterval: 100 * time.Millisecond,
		MaxInterval: time.Second,
		NoJitter:    true,
	}

	require.Equal(t, 100*time.Millisecond, r.Interval(1))
	require.Equal(t, 200*time.Millisecond, r.Interval(2))
	require.Equal(t, 400*time.Millisecond, r.Interval(3))
	require.Equal(t, 800*time.Millisecond, r.Interval(4))
	require.Equal(t, time.Second, r.Interval(5))
	require.Equal(t, time.Second, r.Interval(50))
}

func TestIntervalJitterBounds(t *testing.T) {
	r := &retry.ExponentialBackoff{MinInterval: time.Second}
	for range 100 {
		d := r.Interval(1)
		require.GreaterOrEqual(t, d, 950*time.Millisecond)
		require.LessOrEqual(t, d, 1050*time.Millisecond)
	}
}
