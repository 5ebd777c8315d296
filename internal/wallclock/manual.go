// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import (
	"sync"
	"time"
)

type (
	// Manual is a WallClock whose time only moves when Advance is called.
	// Timer functions run synchronously on the goroutine calling Advance, in
	// deadline order, which makes timer-driven code deterministic under test.
	Manual struct {
		mu     sync.Mutex
		now    time.Time
		timers []*manualTimer
	}

	manualTimer struct {
		clock  *Manual
		when   time.Time
		c      chan time.Time
		f      func()
		active bool
	}
)

// NewManual creates a manual clock starting at the given instant.
func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// After returns a channel that receives once the clock passes d.
func (m *Manual) After(d time.Duration) <-chan time.Time {
	return m.NewTimer(d).C()
}

// NewTimer creates a channel timer.
func (m *Manual) NewTimer(d time.Duration) Timer {
	t := &manualTimer{clock: m, c: make(chan time.Time, 1)}
	m.schedule(t, d)
	return t
}

// AfterFunc creates a timer that calls f from within Advance.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	t := &manualTimer{clock: m, f: f}
	m.schedule(t, d)
	return t
}

// Pending returns the number of timers that have not fired or been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Advance moves the clock forward by d, firing every timer whose deadline is
// reached along the way. Timers scheduled by fired functions are honored if
// they fall within the advanced window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		idx := -1
		for i, t := range m.timers {
			if t.when.After(target) {
				continue
			}
			if idx == -1 || t.when.Before(m.timers[idx].when) {
				idx = i
			}
		}
		if idx == -1 {
			m.now = target
			m.mu.Unlock()
			return
		}

		t := m.timers[idx]
		m.removeLocked(t)
		if t.when.After(m.now) {
			m.now = t.when
		}
		now := m.now
		m.mu.Unlock()

		if t.f != nil {
			t.f()
			continue
		}
		select {
		case t.c <- now:
		default:
		}
	}
}

func (m *Manual) schedule(t *manualTimer, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t.when = m.now.Add(d)
	t.active = true
	m.timers = append(m.timers, t)
}

func (m *Manual) removeLocked(t *manualTimer) bool {
	if !t.active {
		return false
	}
	t.active = false
	for i, other := range m.timers {
		if other == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			break
		}
	}
	return true
}

func (t *manualTimer) C() <-chan time.Time {
	return t.c
}

func (t *manualTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	wasActive := t.clock.removeLocked(t)
	t.clock.mu.Unlock()

	t.clock.schedule(t, d)
	return wasActive
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.clock.removeLocked(t)
}
