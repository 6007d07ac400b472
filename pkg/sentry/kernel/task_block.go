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

package kernel

import (
	"errors"
	"time"

	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/waiter"
)

// errDeadline is returned by block when its timer fires.
var errDeadline = errors.New("deadline exceeded")

// block gives up the CPU and waits until ch is signalled, timer fires, the
// thread is interrupted or its task exits. It returns nil, errDeadline or
// kerr.ErrInterrupted respectively, and holds a CPU again on return.
//
// A nil ch or timer never fires.
//
// Preconditions: the caller is t's goroutine and t is Running.
func (t *Thread) block(state ThreadState, reason string, ch <-chan struct{}, timer <-chan time.Time) error {
	t.transition(state, reason)
	t.putCPU()

	var err error
	select {
	case <-ch:
	case <-timer:
		err = errDeadline
	case <-t.interrupt:
		err = kerr.ErrInterrupted
	case <-t.killed:
		err = kerr.ErrInterrupted
	}

	t.transition(ThreadReady, "")
	t.getCPU()
	return err
}

// BlockOn waits until ch is signalled. It returns kerr.ErrInterrupted if the
// thread is interrupted first.
func (t *Thread) BlockOn(reason string, ch <-chan struct{}) error {
	return t.block(ThreadBlocked, reason, ch, nil)
}

// Wait runs op until it stops asking to wait, blocking on w for events in
// mask between attempts.
//
// op returns kerr.ErrWouldBlock or kerr.ErrWouldBlockEmpty to wait. If
// nonblock is set, or w is nil, such an error is reported immediately as the
// public error with the same code. If timeout is non-zero, expiry does the
// same. Interruption reports Interrupted.
//
// Preconditions: the caller is t's goroutine and t is Running.
func (t *Thread) Wait(w waiter.Waitable, mask waiter.EventMask, nonblock bool, timeout time.Duration, op func() (uint64, error)) (uint64, error) {
	v, err := op()
	if !kerr.IsWouldBlock(err) {
		return v, err
	}
	if nonblock || w == nil {
		return 0, kerr.Settle(err)
	}

	e, ch := waiter.NewChannelEntry(nil)
	w.EventRegister(&e, mask)
	defer w.EventUnregister(&e)

	var timer <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timer = tm.C
	}
	for {
		// Retry once registered, so that a notification between the
		// first attempt and EventRegister is not lost.
		v, err = op()
		if !kerr.IsWouldBlock(err) {
			return v, err
		}
		switch berr := t.block(ThreadBlocked, "wait", ch, timer); berr {
		case nil:
		case errDeadline:
			return 0, kerr.Settle(err)
		default:
			return 0, berr
		}
	}
}

// Sleep waits for d to elapse. A non-positive d yields. It returns
// kerr.ErrInterrupted if the thread is interrupted first.
//
// Preconditions: the caller is t's goroutine and t is Running.
func (t *Thread) Sleep(d time.Duration) error {
	if d <= 0 {
		t.Yield()
		return nil
	}
	tm := time.NewTimer(d)
	defer tm.Stop()
	if err := t.block(ThreadSleeping, "sleep", nil, tm.C); err != errDeadline {
		return err
	}
	return nil
}
