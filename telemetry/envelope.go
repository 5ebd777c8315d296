// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package telemetry defines the sensor reading wire format shared by the
// publisher, the diagnostic monitor and the dashboard.
package telemetry

import (
	"time"

	"github.com/TranDung6129/sensor-telemetry/errors"
)

// ContentType is the MQTT content type of encoded envelopes.
const ContentType = "application/json"

type (
	// Envelope is one sensor snapshot from one device at one instant.
	Envelope struct {
		DeviceID       string
		Location       string
		Temperature    float64
		Humidity       float64
		Pressure       float64
		Light          float64
		BatteryLevel   int
		SignalStrength int
		Timestamp      time.Time
	}

	// DataPointsEnvelope is the full-protocol shape: a device snapshot as a
	// list of named data points.
	DataPointsEnvelope struct {
		DeviceID   string
		Timestamp  time.Time
		DataPoints []DataPoint
	}

	// DataPoint is one named measurement.
	DataPoint struct {
		Sensor string  `json:"sensor"`
		Value  float64 `json:"value"`
		Unit   string  `json:"unit,omitempty"`
	}
)

// Sensor names and units used in data point envelopes.
const (
	SensorTemperature    = "temperature"
	SensorHumidity       = "humidity"
	SensorPressure       = "pressure"
	SensorLight          = "light"
	SensorBatteryLevel   = "batteryLevel"
	SensorSignalStrength = "signalStrength"
)

var sensorUnits = map[string]string{
	SensorTemperature:    "°C",
	SensorHumidity:       "%",
	SensorPressure:       "hPa",
	SensorLight:          "lx",
	SensorBatteryLevel:   "%",
	SensorSignalStrength: "dBm",
}

// Validate checks that the envelope has a device ID, a battery percentage
// and a negative signal strength.
func (e *Envelope) Validate() error {
	switch {
	case e.DeviceID == "":
		return invalidField("deviceId", e.DeviceID, "device ID must not be empty")
	case e.BatteryLevel < 0 || e.BatteryLevel > 100:
		return invalidField("batteryLevel", e.BatteryLevel,
			"battery level must be between 0 and 100")
	case e.SignalStrength >= 0:
		return invalidField("signalStrength", e.SignalStrength,
			"signal strength must be negative")
	case e.Timestamp.IsZero():
		return invalidField("timestamp", e.Timestamp, "timestamp must be set")
	}
	return nil
}

// DataPoints converts the envelope to the full-protocol shape.
func (e *Envelope) DataPoints() DataPointsEnvelope {
	point := func(sensor string, v float64) DataPoint {
		return DataPoint{Sensor: sensor, Value: v, Unit: sensorUnits[sensor]}
	}
	return DataPointsEnvelope{
		DeviceID:  e.DeviceID,
		Timestamp: e.Timestamp,
		DataPoints: []DataPoint{
			point(SensorTemperature, e.Temperature),
			point(SensorHumidity, e.Humidity),
			point(SensorPressure, e.Pressure),
			point(SensorLight, e.Light),
			point(SensorBatteryLevel, float64(e.BatteryLevel)),
			point(SensorSignalStrength, float64(e.SignalStrength)),
		},
	}
}

// Value returns the first data point for the sensor.
func (d *DataPointsEnvelope) Value(sensor string) (float64, bool) {
	for _, p := range d.DataPoints {
		if p.Sensor == sensor {
			return p.Value, true
		}
	}
	return 0, false
}

// Validate checks that the envelope names its device and every data point
// names its sensor.
func (d *DataPointsEnvelope) Validate() error {
	if d.DeviceID == "" {
		return invalidField("deviceId", d.DeviceID, "device ID must not be empty")
	}
	for i, p := range d.DataPoints {
		if p.Sensor == "" {
			return invalidField("data_points", i, "data point has no sensor name")
		}
	}
	return nil
}

func invalidField(name string, value any, msg string) error {
	return &errors.Error{
		Message:       msg,
		Kind:          errors.ArgumentInvalid,
		PropertyName:  name,
		PropertyValue: value,
	}
}
