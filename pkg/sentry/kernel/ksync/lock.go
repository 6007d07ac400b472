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

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/resource"
	"karnal.dev/karnal64/pkg/waiter"
)

// Lock is a mutual exclusion lock owned by a thread.
type Lock struct {
	resource.NoRead
	resource.NoWrite
	resource.NoSeek
	resource.Modes
	waiter.Queue

	mu sync.Mutex

	// owner is the ID of the holding thread. It is zero while the lock is
	// free; thread IDs start at 1.
	owner uint64
}

var _ resource.Provider = (*Lock)(nil)

// NewLock returns a free lock.
func NewLock() *Lock {
	return &Lock{Modes: resource.Modes(defaultModes)}
}

// Owner returns the ID of the thread holding the lock, or 0.
func (l *Lock) Owner() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}

// Control implements resource.Provider.Control.
func (l *Lock) Control(ctx context.Context, request, arg uint64) (uint64, error) {
	switch request {
	case karnal.LockAcquire:
		return 0, l.TryLock(ctx)
	case karnal.LockRelease:
		return 0, l.Unlock(ctx)
	default:
		return 0, kerr.ErrNotSupported
	}
}

// TryLock takes the lock for the calling thread. It returns
// kerr.ErrWouldBlock if another thread holds it, and kerr.ErrBusy if the
// caller already holds it.
func (l *Lock) TryLock(ctx context.Context) error {
	id, err := owner(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.owner {
	case 0:
		l.owner = id
		return nil
	case id:
		return kerr.ErrBusy
	default:
		return kerr.ErrWouldBlock
	}
}

// Unlock releases the lock. Only the holder may release it.
func (l *Lock) Unlock(ctx context.Context) error {
	id, err := owner(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	switch l.owner {
	case 0:
		l.mu.Unlock()
		return kerr.ErrInvalidArgument
	case id:
		l.owner = 0
		l.mu.Unlock()
		l.Notify(waiter.EventIn)
		return nil
	default:
		l.mu.Unlock()
		return kerr.ErrPermissionDenied
	}
}

// Status implements resource.Provider.Status.
func (*Lock) Status(context.Context) resource.Status {
	return resource.Status{}
}

// Readiness implements waiter.Waitable.Readiness.
func (l *Lock) Readiness(mask waiter.EventMask) waiter.EventMask {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == 0 {
		return mask & waiter.EventIn
	}
	return 0
}
