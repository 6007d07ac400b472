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

// Package msgqueue implements message channels: bounded FIFO queues of
// whole messages.
package msgqueue

import (
	"sync"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/resource"
	"karnal.dev/karnal64/pkg/waiter"
)

// DefaultCapacity is the byte capacity of a channel.
const DefaultCapacity = 4096

// Prefix is the name prefix of channels. Acquiring a name under it with
// CREATE creates a channel.
const Prefix = resource.SysPrefix + "ipc/"

// Channel is a message queue. Writers append whole messages and readers
// remove them in order. Readers wait on EventIn and writers on EventOut.
type Channel struct {
	resource.NoSeek
	resource.Modes
	waiter.Queue

	// capacity is the maximum number of queued message bytes. Immutable.
	capacity uint64

	// mu protects the fields below.
	mu sync.Mutex

	// messages is the list of sent messages, oldest first.
	messages [][]byte

	// byteCount is the current number of message bytes in the queue.
	byteCount uint64
}

var _ resource.Provider = (*Channel)(nil)

// New returns an empty channel holding up to capacity bytes. A capacity of
// zero means DefaultCapacity.
func New(capacity uint64) *Channel {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	return &Channel{
		Modes:    resource.Modes(karnal.ModeRead | karnal.ModeWrite),
		capacity: capacity,
	}
}

// Factory returns a resource.Factory creating channels of the given
// capacity.
func Factory(capacity uint64) resource.Factory {
	return func(ctx context.Context, name string) (resource.Provider, karnal.Mode, error) {
		ctx.Debugf("Creating channel %q with capacity %d", name, capacity)
		return New(capacity), karnal.ModeRead | karnal.ModeWrite, nil
	}
}

// Register installs the channel factory in r.
func Register(r *resource.Registry, capacity uint64) error {
	return r.RegisterFactory(Prefix, Factory(capacity))
}

// Capacity returns the channel's byte capacity.
func (c *Channel) Capacity() uint64 { return c.capacity }

// Pending returns the number of queued messages.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Write implements resource.Provider.Write. It enqueues src as one message,
// or nothing if there is no room for all of it.
func (c *Channel) Write(ctx context.Context, src []byte, offset uint64) (uint64, error) {
	n := uint64(len(src))
	if n > c.capacity {
		return 0, kerr.ErrInvalidArgument
	}
	c.mu.Lock()
	if c.byteCount+n > c.capacity {
		c.mu.Unlock()
		return 0, kerr.ErrWouldBlock
	}
	c.messages = append(c.messages, append([]byte(nil), src...))
	c.byteCount += n
	c.mu.Unlock()

	c.Notify(waiter.EventIn)
	return n, nil
}

// Read implements resource.Provider.Read. It dequeues the oldest message
// into dst. If dst is too small the message stays queued.
func (c *Channel) Read(ctx context.Context, dst []byte, offset uint64) (uint64, error) {
	c.mu.Lock()
	if len(c.messages) == 0 {
		c.mu.Unlock()
		return 0, kerr.ErrWouldBlockEmpty
	}
	msg := c.messages[0]
	if len(msg) > len(dst) {
		c.mu.Unlock()
		return 0, kerr.ErrInvalidArgument
	}
	c.messages[0] = nil
	c.messages = c.messages[1:]
	c.byteCount -= uint64(len(msg))
	c.mu.Unlock()

	c.Notify(waiter.EventOut)
	return uint64(copy(dst, msg)), nil
}

// Control implements resource.Provider.Control.
func (c *Channel) Control(ctx context.Context, request, arg uint64) (uint64, error) {
	switch request {
	case karnal.ChannelPending:
		return uint64(c.Pending()), nil
	case karnal.ChannelCapacity:
		return c.capacity, nil
	default:
		return 0, kerr.ErrNotSupported
	}
}

// Status implements resource.Provider.Status. The size is the length of the
// oldest message.
func (c *Channel) Status(context.Context) resource.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := resource.Status{Readable: true, Writable: true, HasSize: true}
	if len(c.messages) > 0 {
		st.Size = uint64(len(c.messages[0]))
	}
	return st
}

// Readiness implements waiter.Waitable.Readiness.
func (c *Channel) Readiness(mask waiter.EventMask) waiter.EventMask {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ready waiter.EventMask
	if len(c.messages) > 0 {
		ready |= waiter.EventIn
	}
	if c.byteCount < c.capacity {
		ready |= waiter.EventOut
	}
	return mask & ready
}
