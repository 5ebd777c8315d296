// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"context"
	"sync"
)

// Lifetime represents a long-running scope (the session, or a single network
// connection) that derived contexts are cancelled with when it ends.
type Lifetime struct {
	cause error
	done  chan struct{}
	end   func()
}

// NewLifetime creates a lifetime whose derived contexts are cancelled with the
// given cause when it ends.
func NewLifetime(cause error) *Lifetime {
	done := make(chan struct{})
	return &Lifetime{cause, done, sync.OnceFunc(func() { close(done) })}
}

// Bind derives a context from ctx that is also cancelled when the lifetime
// ends.
func (l *Lifetime) Bind(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	bound, cancel := context.WithCancelCause(ctx)
	go func() {
		select {
		case <-l.done:
			cancel(l.cause)
		case <-bound.Done():
		}
	}()
	return bound, func() { cancel(context.Canceled) }
}

// End terminates the lifetime. It is safe to call more than once.
func (l *Lifetime) End() {
	l.end()
}

// Done is closed once the lifetime has ended.
func (l *Lifetime) Done() <-chan struct{} {
	return l.done
}

// Ended reports whether End has been called.
func (l *Lifetime) Ended() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
