// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"

	"github.com/TranDung6129/sensor-telemetry/internal/log"
)

type (
	// Policy runs a task until it succeeds, reports that it should not be
	// retried, or the policy gives up.
	Policy interface {
		Start(ctx context.Context, name string, task Task) error
	}

	// Task is one attempt of a retried operation. It returns whether a failure
	// is worth retrying along with the failure itself.
	Task = func(context.Context) (retry bool, err error)

	logger struct{ log.Logger }
)

func (l *logger) attempt(ctx context.Context, name string, attempt uint64) {
	l.Debug(ctx, "retry attempt",
		slog.String("task", name),
		slog.Uint64("attempt", attempt),
	)
}

func (l *logger) backoff(
	ctx context.Context,
	name string,
	attempt uint64,
	err error,
	wait slog.Value,
) {
	l.Warn(ctx, "retrying after failure",
		slog.String("task", name),
		slog.Uint64("attempt", attempt),
		slog.String("error", err.Error()),
		slog.Attr{Key: "wait", Value: wait},
	)
}

func (l *logger) complete(
	ctx context.Context,
	name string,
	attempt uint64,
	err error,
) {
	if err != nil {
		l.Err(ctx, err,
			slog.String("task", name),
			slog.Uint64("attempts", attempt),
		)
		return
	}
	l.Debug(ctx, "retry complete",
		slog.String("task", name),
		slog.Uint64("attempts", attempt),
	)
}
