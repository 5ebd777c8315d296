// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package simulator emits synthetic sensor readings to the broker on a fixed
// cadence.
package simulator

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/TranDung6129/sensor-telemetry/internal/wallclock"
	"github.com/TranDung6129/sensor-telemetry/telemetry"
)

// Generator produces readings from a seedable random source. The light level
// follows the hour of the injected clock in the generator's time zone.
type Generator struct {
	DeviceID string
	Location string

	mu    sync.Mutex
	rand  *rand.Rand
	clock wallclock.WallClock
	zone  *time.Location
}

// NewGenerator creates a generator. A nil clock means the real clock and a
// nil zone means time.Local.
func NewGenerator(
	deviceID, location string,
	seed uint64,
	clock wallclock.WallClock,
	zone *time.Location,
) *Generator {
	if clock == nil {
		clock = wallclock.Instance
	}
	if zone == nil {
		zone = time.Local
	}
	return &Generator{
		DeviceID: deviceID,
		Location: location,
		// #nosec G404
		rand:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		clock: clock,
		zone:  zone,
	}
}

// Next draws one reading stamped with the current time in UTC.
func (g *Generator) Next() telemetry.Envelope {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	return telemetry.Envelope{
		DeviceID:       g.DeviceID,
		Location:       g.Location,
		Temperature:    round1(25 + g.uniform(-5, 5)),
		Humidity:       round1(clamp(60+g.uniform(-20, 20), 30, 90)),
		Pressure:       round1(1013 + g.uniform(-10, 10)),
		Light:          math.Floor(LightBase(now.In(g.zone).Hour()) + g.uniform(0, 300)),
		BatteryLevel:   int(math.Round(g.uniform(70, 100))),
		SignalStrength: int(math.Round(-g.uniform(30, 80))),
		Timestamp:      now.UTC().Round(0),
	}
}

// LightBase is the daylight baseline for an hour of the day: 600 from 06:00
// through 18:59, 200 in the evening through 22:59, 50 otherwise.
func LightBase(hour int) float64 {
	switch {
	case hour >= 6 && hour <= 18:
		return 600
	case hour >= 19 && hour <= 22:
		return 200
	default:
		return 50
	}
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rand.Float64()*(hi-lo)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
