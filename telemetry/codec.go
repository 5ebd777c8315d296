// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/TranDung6129/sensor-telemetry/errors"
	"github.com/relvacode/iso8601"
)

// Class is the diagnostic classification of an inbound payload.
type Class int

const (
	// Recognized payloads are telemetry envelopes.
	Recognized Class = iota

	// Unrecognized payloads are structured but not telemetry.
	Unrecognized

	// Opaque payloads are not structured text at all.
	Opaque
)

func (c Class) String() string {
	switch c {
	case Recognized:
		return "recognized"
	case Unrecognized:
		return "unrecognized"
	default:
		return "opaque"
	}
}

// Decoded is the result of decoding an arbitrary payload. It is returned even
// when decoding fails so the raw payload can still be reported.
type Decoded struct {
	Class Class
	Raw   []byte

	// Envelope is set for recognized simulator-format payloads.
	Envelope *Envelope

	// DataPoints is set for recognized full-protocol payloads.
	DataPoints *DataPointsEnvelope
}

const dataPointsMarker = "data_points"

var requiredFields = []string{
	"deviceId",
	"temperature",
	"humidity",
	"pressure",
	"light",
	"batteryLevel",
	"signalStrength",
	"timestamp",
}

type (
	envelopeWire struct {
		DeviceID       string  `json:"deviceId"`
		Location       string  `json:"location,omitempty"`
		Temperature    float64 `json:"temperature"`
		Humidity       float64 `json:"humidity"`
		Pressure       float64 `json:"pressure"`
		Light          float64 `json:"light"`
		BatteryLevel   float64 `json:"batteryLevel"`
		SignalStrength float64 `json:"signalStrength"`
		Timestamp      string  `json:"timestamp"`
	}

	dataPointsWire struct {
		DeviceID   string      `json:"deviceId"`
		Timestamp  string      `json:"timestamp"`
		DataPoints []DataPoint `json:"data_points"`
	}
)

// Encode serializes an envelope as UTF-8 JSON with fixed field order and a
// UTC RFC 3339 timestamp. The output depends only on the envelope. Envelopes
// that fail Validate are rejected, so every encoded payload decodes as
// Recognized to an envelope equal to e, except that its timestamp is the
// same instant in UTC.
func Encode(e Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := finite(e.Temperature, e.Humidity, e.Pressure, e.Light); err != nil {
		return nil, err
	}
	return json.Marshal(envelopeWire{
		DeviceID:       e.DeviceID,
		Location:       e.Location,
		Temperature:    e.Temperature,
		Humidity:       e.Humidity,
		Pressure:       e.Pressure,
		Light:          e.Light,
		BatteryLevel:   float64(e.BatteryLevel),
		SignalStrength: float64(e.SignalStrength),
		Timestamp:      formatTime(e.Timestamp),
	})
}

// EncodeDataPoints serializes a full-protocol envelope. Envelopes that fail
// Validate are rejected.
func EncodeDataPoints(d DataPointsEnvelope) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	points := d.DataPoints
	if points == nil {
		points = []DataPoint{}
	}
	for _, p := range points {
		if err := finite(p.Value); err != nil {
			return nil, err
		}
	}
	return json.Marshal(dataPointsWire{
		DeviceID:   d.DeviceID,
		Timestamp:  formatTime(d.Timestamp),
		DataPoints: points,
	})
}

// Decode classifies and decodes a payload. Payloads that are not JSON are
// Opaque with a MalformedPayload error. JSON that lacks the data_points
// marker and the full envelope field set, or fails validation, is
// Unrecognized with an UnrecognizedShape error. Timestamps are returned in
// UTC.
func Decode(payload []byte) (*Decoded, error) {
	d := &Decoded{Raw: payload}

	if !json.Valid(payload) {
		d.Class = Opaque
		return d, &errors.Error{
			Message: "payload is not well-formed JSON",
			Kind:    errors.MalformedPayload,
		}
	}

	d.Class = Unrecognized

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return d, unrecognized("payload is not a JSON object", "", err)
	}

	if _, ok := fields[dataPointsMarker]; ok {
		dp, err := decodeDataPoints(payload)
		if err != nil {
			return d, err
		}
		d.Class, d.DataPoints = Recognized, dp
		return d, nil
	}

	for _, name := range requiredFields {
		if raw, ok := fields[name]; !ok || bytes.Equal(raw, []byte("null")) {
			return d, unrecognized("payload lacks telemetry field "+name, name, nil)
		}
	}

	e, err := decodeEnvelope(payload)
	if err != nil {
		return d, err
	}
	d.Class, d.Envelope = Recognized, e
	return d, nil
}

func decodeEnvelope(payload []byte) (*Envelope, error) {
	var w envelopeWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, unrecognized("telemetry field has the wrong type", "", err)
	}

	ts, err := parseTime(w.Timestamp)
	if err != nil {
		return nil, err
	}
	battery, err := integral("batteryLevel", w.BatteryLevel)
	if err != nil {
		return nil, err
	}
	signal, err := integral("signalStrength", w.SignalStrength)
	if err != nil {
		return nil, err
	}

	e := &Envelope{
		DeviceID:       w.DeviceID,
		Location:       w.Location,
		Temperature:    w.Temperature,
		Humidity:       w.Humidity,
		Pressure:       w.Pressure,
		Light:          w.Light,
		BatteryLevel:   battery,
		SignalStrength: signal,
		Timestamp:      ts,
	}
	if err := e.Validate(); err != nil {
		return nil, unrecognized("invalid telemetry envelope", "", err)
	}
	return e, nil
}

func decodeDataPoints(payload []byte) (*DataPointsEnvelope, error) {
	var w dataPointsWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, unrecognized("malformed data_points envelope", dataPointsMarker, err)
	}

	ts, err := parseTime(w.Timestamp)
	if err != nil {
		return nil, err
	}

	d := &DataPointsEnvelope{
		DeviceID:   w.DeviceID,
		Timestamp:  ts,
		DataPoints: w.DataPoints,
	}
	if d.DataPoints == nil {
		d.DataPoints = []DataPoint{}
	}
	if err := d.Validate(); err != nil {
		return nil, unrecognized("invalid data_points envelope", "", err)
	}
	return d, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := iso8601.ParseString(s)
	if err != nil {
		return time.Time{}, unrecognized("timestamp is not ISO 8601", "timestamp", err)
	}
	return t.UTC(), nil
}

func integral(name string, v float64) (int, error) {
	if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, unrecognized(name+" must be an integer", name, nil)
	}
	return int(v), nil
}

func finite(vs ...float64) error {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &errors.Error{
				Message:       "reading is not a finite number",
				Kind:          errors.ArgumentInvalid,
				PropertyValue: v,
			}
		}
	}
	return nil
}

func unrecognized(msg, field string, nested error) error {
	return &errors.Error{
		Message:      msg,
		Kind:         errors.UnrecognizedShape,
		NestedError:  nested,
		PropertyName: field,
	}
}
