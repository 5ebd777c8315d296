// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package log

import (
	"io"
	"log/slog"
	"strings"

	"github.com/TranDung6129/sensor-telemetry/errors"
	"github.com/lmittmann/tint"
)

// Console creates the colored terminal logger used by the binaries.
func Console(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
	}))
}

// ParseLevel parses debug, info, warn or error. An empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, &errors.Error{
			Message:       "invalid log level",
			Kind:          errors.ConfigurationInvalid,
			NestedError:   err,
			PropertyName:  "LOG_LEVEL",
			PropertyValue: s,
		}
	}
	return level, nil
}
