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
	"math"
	"sync"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/resource"
	"karnal.dev/karnal64/pkg/waiter"
)

// valueMax is the maximum semaphore value.
const valueMax = math.MaxInt64

// Semaphore is a counting semaphore.
type Semaphore struct {
	resource.NoRead
	resource.NoWrite
	resource.NoSeek
	resource.Modes
	waiter.Queue

	mu    sync.Mutex
	value uint64
}

var _ resource.Provider = (*Semaphore)(nil)

// NewSemaphore returns a semaphore with the given count.
func NewSemaphore(value uint64) *Semaphore {
	return &Semaphore{Modes: resource.Modes(defaultModes), value: min(value, valueMax)}
}

// Value returns the current count.
func (s *Semaphore) Value() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Control implements resource.Provider.Control.
func (s *Semaphore) Control(ctx context.Context, request, arg uint64) (uint64, error) {
	switch request {
	case karnal.SemaphoreWait:
		return 0, s.TryWait()
	case karnal.SemaphoreSignal:
		return 0, s.Signal(arg)
	case karnal.SemaphoreValue:
		return s.Value(), nil
	default:
		return 0, kerr.ErrNotSupported
	}
}

// TryWait decrements the count, or returns kerr.ErrWouldBlock if it is zero.
func (s *Semaphore) TryWait() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value == 0 {
		return kerr.ErrWouldBlock
	}
	s.value--
	return nil
}

// Signal adds n to the count.
func (s *Semaphore) Signal(n uint64) error {
	s.mu.Lock()
	if n > valueMax-s.value {
		s.mu.Unlock()
		return kerr.ErrInvalidArgument
	}
	s.value += n
	s.mu.Unlock()
	if n > 0 {
		s.Notify(waiter.EventIn)
	}
	return nil
}

// Status implements resource.Provider.Status. The size is the count.
func (s *Semaphore) Status(context.Context) resource.Status {
	return resource.Status{Size: s.Value(), HasSize: true}
}

// Readiness implements waiter.Waitable.Readiness.
func (s *Semaphore) Readiness(mask waiter.EventMask) waiter.EventMask {
	if s.Value() > 0 {
		return mask & waiter.EventIn
	}
	return 0
}
