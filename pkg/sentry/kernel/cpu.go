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
	"sync/atomic"
	"time"
)

// cpu is the kernel's view of one CPU. A CPU loop hands the CPU to one
// thread at a time and waits for it to be given back.
type cpu struct {
	id int

	// released is signalled by the thread holding the CPU when it gives the
	// CPU up.
	released chan struct{}

	// switches counts CPU grants.
	switches atomic.Uint64
}

// runCPU runs CPU c until ctx is cancelled.
func (k *Kernel) runCPU(ctx gocontext.Context, c *cpu) {
	for {
		t := k.sched.Dequeue(c.id)
		if t == nil {
			select {
			case <-k.kick:
				continue
			case <-ctx.Done():
				return
			}
		}
		c.switches.Add(1)
		t.grant <- c.id
		select {
		case <-c.released:
		case <-ctx.Done():
			return
		}
	}
}

// kickCPU wakes one idle CPU loop, if any.
func (k *Kernel) kickCPU() {
	select {
	case k.kick <- struct{}{}:
	default:
	}
}

// getCPU makes t runnable and waits for a CPU.
//
// Preconditions: t is Ready. The caller is t's goroutine.
func (t *Thread) getCPU() {
	t.k.sched.Enqueue(t)
	t.k.kickCPU()
	c := <-t.grant
	t.cpu, t.lastCPU = c, c
	t.sliceStart = time.Now()
	t.transition(ThreadRunning, "")
}

// putCPU gives up the CPU t holds.
//
// Preconditions: the caller is t's goroutine.
func (t *Thread) putCPU() {
	if t.cpu < 0 {
		return
	}
	c := t.k.cpus[t.cpu]
	t.cpu = -1
	c.released <- struct{}{}
}

// LastCPU returns the CPU the thread last ran on, or -1.
func (t *Thread) LastCPU() int { return t.lastCPU }

// Yield gives up the CPU and waits to be scheduled again.
//
// Preconditions: the caller is t's goroutine and t is Running.
func (t *Thread) Yield() {
	t.transition(ThreadReady, "")
	t.putCPU()
	t.getCPU()
}

// maybePreempt yields if t has used up its time slice and another thread is
// waiting for a CPU.
func (t *Thread) maybePreempt() {
	if time.Since(t.sliceStart) < t.k.quantum || t.k.sched.Len() == 0 {
		return
	}
	t.Debugf("Preempted after %v", time.Since(t.sliceStart))
	t.Yield()
}
