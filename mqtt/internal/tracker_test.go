// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClient struct{ name string }

func TestTrackerStaleDownIgnored(t *testing.T) {
	tr := NewTracker[*fakeClient]()

	first := tr.Attempt()
	second := tr.Attempt()
	require.NoError(t, tr.Up(&fakeClient{"b"}))

	tr.Down(first, errors.New("stale"))
	require.NotNil(t, tr.Current().Client)

	tr.Down(second, errors.New("lost"))
	cur := tr.Current()
	require.Nil(t, cur.Client)
	require.EqualError(t, cur.Error, "lost")
	require.True(t, cur.Down.Ended())
}

func TestTrackerFailureBeforeUp(t *testing.T) {
	tr := NewTracker[*fakeClient]()

	attempt := tr.Attempt()
	tr.Down(attempt, errors.New("refused"))

	require.EqualError(t, tr.Up(&fakeClient{"a"}), "refused")
	require.Nil(t, tr.Current().Client)
}

func TestTrackerClientWaitsForReconnect(t *testing.T) {
	tr := NewTracker[*fakeClient]()
	first := &fakeClient{"first"}
	second := &fakeClient{"second"}

	attempt := tr.Attempt()
	require.NoError(t, tr.Up(first))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var seen []string
	for connCtx, c := range tr.Client(ctx) {
		seen = append(seen, c.name)
		if c == first {
			tr.Down(attempt, errors.New("dropped"))
			<-connCtx.Done()

			go func() {
				tr.Attempt()
				_ = tr.Up(second)
			}()
			continue
		}
		break
	}

	require.Equal(t, []string{"first", "second"}, seen)
}

func TestLifetimeBindCancelsWithCause(t *testing.T) {
	cause := errors.New("session closed")
	l := NewLifetime(cause)

	ctx, cancel := l.Bind(context.Background())
	defer cancel()

	l.End()
	l.End()

	<-ctx.Done()
	require.ErrorIs(t, context.Cause(ctx), cause)
}
