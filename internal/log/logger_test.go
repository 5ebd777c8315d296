// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/TranDung6129/sensor-telemetry/errors"
	"github.com/TranDung6129/sensor-telemetry/internal/log"
	"github.com/stretchr/testify/require"
)

func TestNilLoggerIsSilent(t *testing.T) {
	l := log.Wrap(nil, nil)
	require.False(t, l.Enabled(context.Background(), slog.LevelError))
	l.Info(context.Background(), "dropped")
	l.Err(context.Background(), &errors.Error{Message: "dropped"})
}

func TestErrExpandsStructuredAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := log.Wrap(nil, slog.New(slog.NewJSONHandler(&buf, nil)))

	l.Err(context.Background(), &errors.Error{
		Message:       "invalid value for SENSOR_INTERVAL",
		Kind:          errors.ConfigurationInvalid,
		PropertyName:  "SENSOR_INTERVAL",
		PropertyValue: "soon",
	}, slog.String("component", "publisher"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "ERROR", line["level"])
	require.Equal(t, "invalid value for SENSOR_INTERVAL", line["msg"])
	require.Equal(t, "publisher", line["component"])
	require.Equal(t, "configuration invalid", line["kind"])
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := log.ParseLevel(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := log.ParseLevel("chatty")
	require.True(t, errors.IsKind(err, errors.ConfigurationInvalid))
}
