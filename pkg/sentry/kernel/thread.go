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
	gocontext "context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"karnal.dev/karnal64/pkg/log"
	"karnal.dev/karnal64/pkg/sentry/arch"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/mm"
	"karnal.dev/karnal64/pkg/sentry/platform"
)

// ThreadID identifies a thread. Thread IDs are unique across the kernel and
// never reused.
type ThreadID uint64

// ThreadState is the scheduling state of a thread.
type ThreadState int

// Thread states.
const (
	// ThreadReady means the thread is runnable and waiting for a CPU.
	ThreadReady ThreadState = iota

	// ThreadRunning means the thread holds a CPU.
	ThreadRunning

	// ThreadBlocked means the thread is waiting for a resource.
	ThreadBlocked

	// ThreadSleeping means the thread is waiting for a timer.
	ThreadSleeping

	// ThreadExited is terminal.
	ThreadExited
)

// String implements fmt.Stringer.String.
func (s ThreadState) String() string {
	switch s {
	case ThreadReady:
		return "Ready"
	case ThreadRunning:
		return "Running"
	case ThreadBlocked:
		return "Blocked"
	case ThreadSleeping:
		return "Sleeping"
	case ThreadExited:
		return "Exited"
	default:
		return fmt.Sprintf("ThreadState(%d)", int(s))
	}
}

// validTransition returns true if a thread may move from one state to the
// other.
func validTransition(from, to ThreadState) bool {
	switch {
	case from == ThreadExited:
		return false
	case to == ThreadExited:
		return true
	}
	switch from {
	case ThreadReady:
		return to == ThreadRunning
	case ThreadRunning:
		return to == ThreadReady || to == ThreadBlocked || to == ThreadSleeping
	case ThreadBlocked, ThreadSleeping:
		return to == ThreadReady
	}
	return false
}

// KernelStackSize is the size of the kernel stack reserved for every thread.
const KernelStackSize = 4 * 4096

// Thread represents a thread of execution in a task. Its goroutine runs the
// thread's kernel side: it switches into user mode through the platform and
// handles every trap.
//
// Thread implements context.Context, so a *Thread is passed to providers
// and the memory manager on the thread's behalf.
type Thread struct {
	k  *Kernel
	tk *Task
	id ThreadID

	// ac is the saved user context. It is only touched by the thread's
	// goroutine.
	ac arch.Context

	// pc executes ac.
	pc platform.Context

	// kstack holds the frames of the kernel stack.
	kstack []platform.PhysAddr

	// mu protects state and waitReason.
	mu         sync.Mutex
	state      ThreadState
	waitReason string

	// grant delivers the CPU the thread may run on.
	grant chan int

	// cpu is the CPU the thread holds, or -1. lastCPU is the last CPU it
	// ran on. Both are only touched by the thread's goroutine.
	cpu     int
	lastCPU int

	// sliceStart is when the thread last got its CPU.
	sliceStart time.Time

	// interrupt holds a pending cancellation.
	interrupt chan struct{}

	// killed is closed when the task is exiting.
	killed   chan struct{}
	killOnce sync.Once

	// syscalls counts system calls made by the thread.
	syscalls atomic.Uint64

	// runState is the next state of the run loop.
	runState threadRunState
}

var _ context.Context = (*Thread)(nil)

// ID returns the thread's ID.
func (t *Thread) ID() ThreadID { return t.id }

// Task returns the task the thread belongs to.
func (t *Thread) Task() *Task { return t.tk }

// Kernel returns the kernel the thread runs in.
func (t *Thread) Kernel() *Kernel { return t.k }

// MemoryManager returns the address space of the thread's task.
func (t *Thread) MemoryManager() *mm.MemoryManager { return t.tk.mm }

// Arch returns the thread's saved user context.
func (t *Thread) Arch() arch.Context { return t.ac }

// State returns the thread's state.
func (t *Thread) State() ThreadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// WaitReason returns why the thread is blocked or sleeping, if it is.
func (t *Thread) WaitReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waitReason
}

// Syscalls returns the number of system calls the thread made.
func (t *Thread) Syscalls() uint64 { return t.syscalls.Load() }

// transition moves the thread to state to. An invalid transition is a
// kernel bug.
func (t *Thread) transition(to ThreadState, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !validTransition(t.state, to) {
		panic(fmt.Sprintf("thread %d: invalid transition %v -> %v", t.id, t.state, to))
	}
	t.state = to
	t.waitReason = reason
}

// kill makes the thread leave at its next opportunity: blocked waits return
// and the thread never re-enters user mode.
func (t *Thread) kill() {
	t.killOnce.Do(func() { close(t.killed) })
}

// Killed returns true if the thread's task is exiting.
func (t *Thread) Killed() bool {
	select {
	case <-t.killed:
		return true
	default:
		return false
	}
}

// Interrupt delivers a cancellation. A blocked thread's wait returns
// Interrupted; otherwise the cancellation stays pending until the thread
// next blocks.
func (t *Thread) Interrupt() {
	select {
	case t.interrupt <- struct{}{}:
	default:
	}
}

// Deadline implements context.Context.Deadline.
func (*Thread) Deadline() (time.Time, bool) {
	return time.Time{}, false
}

// Done implements context.Context.Done.
func (t *Thread) Done() <-chan struct{} {
	return t.killed
}

// Err implements context.Context.Err.
func (t *Thread) Err() error {
	if t.Killed() {
		return gocontext.Canceled
	}
	return nil
}

// Value implements context.Context.Value.
func (t *Thread) Value(key any) any {
	switch key {
	case context.CtxTaskID:
		return uint64(t.tk.id)
	case context.CtxThreadID:
		return uint64(t.id)
	case CtxKernel:
		return t.k
	case CtxThread:
		return t
	default:
		return nil
	}
}

// Debugf implements log.Logger.Debugf.
func (t *Thread) Debugf(format string, v ...any) {
	if log.IsLogging(log.Debug) {
		log.Debugf(t.logPrefix()+format, v...)
	}
}

// Infof implements log.Logger.Infof.
func (t *Thread) Infof(format string, v ...any) {
	if log.IsLogging(log.Info) {
		log.Infof(t.logPrefix()+format, v...)
	}
}

// Warningf implements log.Logger.Warningf.
func (t *Thread) Warningf(format string, v ...any) {
	log.Warningf(t.logPrefix()+format, v...)
}

// IsLogging implements log.Logger.IsLogging.
func (t *Thread) IsLogging(level log.Level) bool {
	return log.IsLogging(level)
}

func (t *Thread) logPrefix() string {
	return fmt.Sprintf("[%5d:%5d] ", t.tk.id, t.id)
}

// String implements fmt.Stringer.String.
func (t *Thread) String() string {
	return fmt.Sprintf("thread %d of task %d", t.id, t.tk.id)
}
