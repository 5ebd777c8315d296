// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import (
	"time"
)

type (
	// WallClock abstracts the subset of package time used by the telemetry
	// components, so tests can control apparent time.
	WallClock interface {
		After(d time.Duration) <-chan time.Time
		AfterFunc(d time.Duration, f func()) Timer
		NewTimer(d time.Duration) Timer
		Now() time.Time
	}

	// Timer abstracts the functionality of time.Timer. C returns nil for
	// timers created by AfterFunc.
	Timer interface {
		C() <-chan time.Time
		Reset(d time.Duration) bool
		Stop() bool
	}

	wallClock struct{}

	timer struct {
		*time.Timer
	}
)

// After indirects time.After.
func (wallClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// AfterFunc indirects time.AfterFunc.
func (wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return timer{Timer: time.AfterFunc(d, f)}
}

// NewTimer indirects time.NewTimer.
func (wallClock) NewTimer(d time.Duration) Timer {
	return timer{Timer: time.NewTimer(d)}
}

// Now indirects time.Now.
func (wallClock) Now() time.Time {
	return time.Now()
}

// C indirects time.Timer.C.
func (t timer) C() <-chan time.Time {
	return t.Timer.C
}

// Instance is a WallClock singleton used for indirect time-based references to
// package time. Components accept a WallClock option that defaults to it.
var Instance WallClock = wallClock{}
