// Copyright 2026 The Karnal64 Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ksync

import (
	"sync"

	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/resource"
	"karnal.dev/karnal64/pkg/waiter"
)

// Event is a binary event flag. Writing sets it; a read waits for it and
// clears it, so each signal releases one reader.
type Event struct {
	resource.NoControl
	resource.NoSeek
	resource.Modes
	waiter.Queue

	mu       sync.Mutex
	signaled bool
}

var _ resource.Provider = (*Event)(nil)

// NewEvent returns a clear event.
func NewEvent() *Event {
	return &Event{Modes: resource.Modes(defaultModes)}
}

// Read implements resource.Provider.Read. It consumes the signal and stores
// a single 1 byte.
func (e *Event) Read(ctx context.Context, dst []byte, offset uint64) (uint64, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.signaled {
		return 0, kerr.ErrWouldBlock
	}
	e.signaled = false
	dst[0] = 1
	return 1, nil
}

// Write implements resource.Provider.Write. Any write sets the event.
func (e *Event) Write(ctx context.Context, src []byte, offset uint64) (uint64, error) {
	e.Set()
	return uint64(len(src)), nil
}

// Set signals the event.
func (e *Event) Set() {
	e.mu.Lock()
	e.signaled = true
	e.mu.Unlock()
	e.Notify(waiter.EventIn)
}

// Signaled returns true if the event is set.
func (e *Event) Signaled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signaled
}

// Status implements resource.Provider.Status.
func (e *Event) Status(context.Context) resource.Status {
	var size uint64
	if e.Signaled() {
		size = 1
	}
	return resource.Status{Readable: true, Writable: true, Size: size, HasSize: true}
}

// Readiness implements waiter.Waitable.Readiness.
func (e *Event) Readiness(mask waiter.EventMask) waiter.EventMask {
	ready := waiter.EventOut
	if e.Signaled() {
		ready |= waiter.EventIn
	}
	return mask & ready
}
