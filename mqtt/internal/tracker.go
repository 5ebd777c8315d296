// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"context"
	"iter"
	"sync"
)

type (
	// Tracker records which client instance currently owns the broker
	// connection. The client is replaced on every reconnect, so callers obtain
	// it through Client rather than holding on to it.
	Tracker[C comparable] struct {
		mu  sync.RWMutex
		cur Link[C]
	}

	// Link is the state of the current connection attempt.
	Link[C comparable] struct {
		// Client is the connected instance, or the zero value while down.
		Client C

		// Error is the first failure recorded against this attempt.
		Error error

		// Attempt counts every connection attempt, successful or not.
		Attempt uint64

		// Down ends when the connected client is lost.
		Down *Lifetime

		up chan struct{}
	}
)

// NewTracker creates a tracker in the disconnected state.
func NewTracker[C comparable]() *Tracker[C] {
	t := &Tracker[C]{}
	t.cur.up = make(chan struct{})
	t.cur.Down = NewLifetime(context.Canceled)
	t.cur.Down.End()
	return t
}

// Attempt starts a new connection attempt and returns its number.
func (t *Tracker[C]) Attempt() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cur.Error = nil
	t.cur.Attempt++
	return t.cur.Attempt
}

// Up marks the client connected. If the attempt already failed between
// Attempt and Up, that failure is returned instead.
func (t *Tracker[C]) Up(client C) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cur.Error != nil {
		return t.cur.Error
	}

	t.cur.Client = client
	t.cur.Down = NewLifetime(context.Canceled)
	close(t.cur.up)
	return nil
}

// Down records a failure for the given attempt. Failures reported by a stale
// attempt are ignored.
func (t *Tracker[C]) Down(attempt uint64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cur.Attempt != attempt {
		return
	}
	if t.cur.Error == nil {
		t.cur.Error = err
	}

	var zero C
	if t.cur.Client == zero {
		return
	}

	t.cur.Client = zero
	t.cur.up = make(chan struct{})
	t.cur.Down.End()
}

// Current returns a copy of the current connection state.
func (t *Tracker[C]) Current() Link[C] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cur
}

// Client yields the connected client together with a context that is
// cancelled if that connection drops. The caller breaks out of the loop once
// its request completes, or continues to retry on the next connection. The
// sequence only ends by itself when ctx is done.
func (t *Tracker[C]) Client(ctx context.Context) iter.Seq2[context.Context, C] {
	return func(yield func(context.Context, C) bool) {
		for {
			cur := t.Current()

			var zero C
			if cur.Client == zero {
				select {
				case <-ctx.Done():
					return
				case <-cur.up:
					continue
				}
			}

			bound, cancel := cur.Down.Bind(ctx)
			more := yield(bound, cur.Client)
			cancel()
			if !more {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-cur.Down.Done():
			}
		}
	}
}
