// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package container

import (
	"iter"
	"sync"
)

type (
	// Handlers is an ordered, concurrency-safe collection of callbacks where
	// each entry can be removed through the function returned by Add.
	Handlers[T any] struct {
		mu      sync.RWMutex
		nextID  uint64
		entries []handlerEntry[T]
	}

	handlerEntry[T any] struct {
		id    uint64
		value T
	}
)

// NewHandlers creates an empty handler collection.
func NewHandlers[T any]() *Handlers[T] {
	return &Handlers[T]{}
}

// Add appends a value and returns a function that removes it. Calling the
// returned function more than once is a no-op.
func (h *Handlers[T]) Add(value T) (remove func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.entries = append(h.entries, handlerEntry[T]{id, value})

	return sync.OnceFunc(func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		for i, e := range h.entries {
			if e.id == id {
				h.entries = append(h.entries[:i:i], h.entries[i+1:]...)
				return
			}
		}
	})
}

// All iterates over a point-in-time copy of the values, so callbacks may add
// or remove entries while being iterated.
func (h *Handlers[T]) All() iter.Seq[T] {
	h.mu.RLock()
	entries := h.entries
	h.mu.RUnlock()

	return func(yield func(T) bool) {
		for _, e := range entries {
			if !yield(e.value) {
				return
			}
		}
	}
}

// Len returns the number of registered values.
func (h *Handlers[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
