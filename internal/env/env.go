// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package env reads typed settings from environment variables. Every getter
// returns the fallback when the variable is unset or blank, and a
// configuration error when it is set but does not parse.
package env

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TranDung6129/sensor-telemetry/errors"
	"github.com/sosodev/duration"
)

// Lookup is the source of raw values; tests replace it.
var Lookup = os.LookupEnv

func value(key string) (string, bool) {
	v, ok := Lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func invalid(key, raw string, err error) error {
	return &errors.Error{
		Message:       "invalid value for " + key,
		Kind:          errors.ConfigurationInvalid,
		NestedError:   err,
		PropertyName:  key,
		PropertyValue: raw,
	}
}

// String returns the variable or the fallback.
func String(key, fallback string) string {
	if v, ok := value(key); ok {
		return v
	}
	return fallback
}

// Int parses a base-10 integer.
func Int(key string, fallback int) (int, error) {
	v, ok := value(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, invalid(key, v, err)
	}
	return n, nil
}

// Int64 parses a base-10 64-bit integer.
func Int64(key string, fallback int64) (int64, error) {
	v, ok := value(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, invalid(key, v, err)
	}
	return n, nil
}

// Bool parses anything strconv.ParseBool accepts.
func Bool(key string, fallback bool) (bool, error) {
	v, ok := value(key)
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, invalid(key, v, err)
	}
	return b, nil
}

// Duration parses a duration with ParseDuration.
func Duration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := value(key)
	if !ok {
		return fallback, nil
	}
	d, err := ParseDuration(v)
	if err != nil {
		return 0, invalid(key, v, err)
	}
	return d, nil
}

// ParseDuration accepts ISO 8601 durations ("PT5S"), Go durations ("5s") and
// bare integers, which are read as seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToUpper(s), "P") {
		d, err := duration.Parse(strings.ToUpper(s))
		if err != nil {
			return 0, err
		}
		return d.ToTimeDuration(), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
