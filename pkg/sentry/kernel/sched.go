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
	"sync"
)

// Scheduler decides which Ready thread runs next on a CPU. Implementations
// must be safe for concurrent use by every CPU.
type Scheduler interface {
	// Enqueue makes t runnable. t.LastCPU() is a placement hint.
	Enqueue(t *Thread)

	// Dequeue removes and returns the next thread to run on cpu, or nil
	// if no thread is runnable.
	Dequeue(cpu int) *Thread

	// Len returns the number of runnable threads.
	Len() int
}

// runQueue is a FIFO of runnable threads.
type runQueue struct {
	mu      sync.Mutex
	threads []*Thread
}

func (q *runQueue) push(t *Thread) {
	q.mu.Lock()
	q.threads = append(q.threads, t)
	q.mu.Unlock()
}

func (q *runQueue) popFront() *Thread {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.threads) == 0 {
		return nil
	}
	t := q.threads[0]
	q.threads[0] = nil
	q.threads = q.threads[1:]
	return t
}

func (q *runQueue) popBack() *Thread {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.threads)
	if n == 0 {
		return nil
	}
	t := q.threads[n-1]
	q.threads[n-1] = nil
	q.threads = q.threads[:n-1]
	return t
}

func (q *runQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.threads)
}

// RoundRobin is the default Scheduler: one FIFO queue per CPU, with idle
// CPUs stealing from the back of other queues.
type RoundRobin struct {
	queues []runQueue

	// stealMu serializes stealing. It is taken before any queue lock.
	stealMu sync.Mutex

	// next places threads that have not run yet.
	nextMu sync.Mutex
	next   int
}

var _ Scheduler = (*RoundRobin)(nil)

// NewRoundRobin returns a scheduler for cpus CPUs.
func NewRoundRobin(cpus int) *RoundRobin {
	return &RoundRobin{queues: make([]runQueue, max(cpus, 1))}
}

// Enqueue implements Scheduler.Enqueue.
func (rr *RoundRobin) Enqueue(t *Thread) {
	cpu := t.LastCPU()
	if cpu < 0 || cpu >= len(rr.queues) {
		rr.nextMu.Lock()
		cpu = rr.next
		rr.next = (rr.next + 1) % len(rr.queues)
		rr.nextMu.Unlock()
	}
	rr.queues[cpu].push(t)
}

// Dequeue implements Scheduler.Dequeue.
func (rr *RoundRobin) Dequeue(cpu int) *Thread {
	if t := rr.queues[cpu].popFront(); t != nil {
		return t
	}
	rr.stealMu.Lock()
	defer rr.stealMu.Unlock()
	for i := 1; i < len(rr.queues); i++ {
		if t := rr.queues[(cpu+i)%len(rr.queues)].popBack(); t != nil {
			return t
		}
	}
	return nil
}

// Len implements Scheduler.Len.
func (rr *RoundRobin) Len() int {
	n := 0
	for i := range rr.queues {
		n += rr.queues[i].len()
	}
	return n
}
