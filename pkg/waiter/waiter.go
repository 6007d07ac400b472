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


// Package waiter implements the wait queues blocking resource operations
// sleep on.
//
// A provider that may block embeds a Queue and implements Waitable. The
// kernel turns its non-blocking operation into a blocking one by registering
// an entry, retrying the operation, and sleeping on the entry's channel
// until the provider calls Notify:
//
//	e, ch := waiter.NewChannelEntry(nil)
//	p.EventRegister(&e, waiter.EventIn)
//	defer p.EventUnregister(&e)
//	for n, err := op(); err == kerr.ErrWouldBlock; n, err = op() {
//		<-ch // or the thread's interrupt or deadline
//	}
//
// The retry after registration closes the window in which the provider
// became ready between the first attempt and EventRegister.
package waiter

import (
	"slices"
	"sync"
)

// EventMask is a set of readiness events.
type EventMask uint16

// Events that waiters can wait on.
const (
	// EventIn means the object has data to read, or a lock or count to
	// take.
	EventIn EventMask = 0x01

	// EventOut means the object has room to write.
	EventOut EventMask = 0x04

	// EventHUp means the object was torn down.
	EventHUp EventMask = 0x10
)

// Waitable is implemented by providers whose operations can block.
type Waitable interface {
	// Readiness returns the subset of mask the object is ready for now.
	Readiness(mask EventMask) EventMask

	// EventRegister arranges for e to be notified of events in mask.
	EventRegister(e *Entry, mask EventMask)

	// EventUnregister undoes EventRegister.
	EventUnregister(e *Entry)
}

// Entry is a registered waiter. An Entry is in at most one queue.
type Entry struct {
	// ch receives a token when a matching event is delivered. Tokens do not
	// accumulate beyond the channel's buffer.
	ch   chan struct{}
	mask EventMask
}

// NewChannelEntry returns an Entry notifying c, allocating c with a buffer
// of one if it is nil.
func NewChannelEntry(c chan struct{}) (Entry, chan struct{}) {
	if c == nil {
		c = make(chan struct{}, 1)
	}
	return Entry{ch: c}, c
}

func (e *Entry) notify() {
	select {
	case e.ch <- struct{}{}:
	default:
	}
}

// Queue is a wait queue. Waiters are notified in registration order. The
// zero value is an empty queue.
type Queue struct {
	mu      sync.Mutex
	waiters []*Entry
}

// EventRegister adds e to the queue, waiting for events in mask. Registering
// an entry again updates its mask and keeps its place.
func (q *Queue) EventRegister(e *Entry, mask EventMask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e.mask = mask
	if !slices.Contains(q.waiters, e) {
		q.waiters = append(q.waiters, e)
	}
}

// EventUnregister removes e from the queue.
func (q *Queue) EventUnregister(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := slices.Index(q.waiters, e); i >= 0 {
		q.waiters = slices.Delete(q.waiters, i, i+1)
	}
}

// Notify wakes every waiter interested in an event of mask and returns how
// many were woken.
func (q *Queue) Notify(mask EventMask) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.waiters {
		if e.mask&mask != 0 {
			e.notify()
			n++
		}
	}
	return n
}

// Events returns the union of the masks of all registered entries.
func (q *Queue) Events() EventMask {
	q.mu.Lock()
	defer q.mu.Unlock()
	var m EventMask
	for _, e := range q.waiters {
		m |= e.mask
	}
	return m
}

// IsEmpty returns true if no entry is registered.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters) == 0
}
