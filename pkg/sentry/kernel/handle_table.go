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
	"bytes"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/bitmap"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// Handle table sizes.
const (
	// DefaultHandleTableSize is the initial capacity of a handle table.
	DefaultHandleTableSize = 1024

	// DefaultMaxHandles is the default hard cap on handles per task.
	DefaultMaxHandles = 65536
)

// HandleEntry is a snapshot of a live handle. It holds its own reference to
// the provider, so it stays usable after the table lock is dropped.
type HandleEntry struct {
	// Provider is the resource behind the handle.
	Provider resource.Provider

	// Mode is the mode mask granted at acquisition.
	Mode karnal.Mode

	// Cursor is the handle's position for cursor transfers.
	Cursor uint64

	// Timeout bounds blocking operations through the handle. Zero means
	// no timeout.
	Timeout time.Duration

	entry *resource.Entry
}

// Resource returns the registry entry the handle was acquired from.
func (e *HandleEntry) Resource() *resource.Entry { return e.entry }

// slot is one handle table slot.
type slot struct {
	HandleEntry

	// gen is the slot's generation. It is bumped on every allocation, so
	// a released slot keeps the generation of its last handle.
	gen uint32

	// seq orders allocations for FlushAll.
	seq uint64
}

// HandleTable maps a task's handles to resources. It is safe for concurrent
// use; each table has its own lock, which is never held across provider
// calls.
type HandleTable struct {
	// mu protects below.
	mu sync.Mutex

	// slots holds one entry per index. len(slots) == used.Size().
	slots []slot

	// used has a bit set for every live slot.
	used bitmap.Bitmap

	// max is the hard cap on len(slots).
	max uint32

	// seq is the allocation counter.
	seq uint64
}

// NewHandleTable returns an empty table with the given initial capacity,
// which grows in powers of two up to max.
func NewHandleTable(size, max int) *HandleTable {
	if max <= 0 {
		max = DefaultMaxHandles
	}
	if max > math.MaxInt32 {
		max = math.MaxInt32
	}
	if size <= 0 {
		size = DefaultHandleTableSize
	}
	size = min(size, max)
	return &HandleTable{
		slots: make([]slot, size),
		used:  bitmap.New(uint32(size)),
		max:   uint32(max),
	}
}

// growLocked doubles the capacity, up to the cap.
//
// Preconditions: ht.mu must be locked.
func (ht *HandleTable) growLocked() bool {
	cur := uint32(len(ht.slots))
	if cur >= ht.max {
		return false
	}
	next := min(cur*2, ht.max)
	ht.slots = append(ht.slots, make([]slot, next-cur)...)
	if err := ht.used.Grow(next); err != nil {
		panic(fmt.Sprintf("growing handle bitmap: %v", err))
	}
	return true
}

// Allocate installs a new handle to e with mode at the lowest free index.
// It fails with OutOfMemory if the table is full at its cap. The caller's
// reference on e (from Registry.Acquire or Entry.Dup) passes to the table.
func (ht *HandleTable) Allocate(e *resource.Entry, mode karnal.Mode) (Handle, error) {
	return ht.install(HandleEntry{Provider: e.Provider(), Mode: mode, entry: e})
}

func (ht *HandleTable) install(he HandleEntry) (Handle, error) {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	idx, ok := ht.used.FirstZero(0)
	if !ok {
		if !ht.growLocked() {
			return 0, kerr.ErrOutOfMemory
		}
		idx, _ = ht.used.FirstZero(0)
	}
	s := &ht.slots[idx]
	s.gen++
	if s.gen == 0 {
		// Skip the invalid generation when a slot wraps.
		s.gen = 1
	}
	ht.seq++
	s.seq = ht.seq
	s.HandleEntry = he
	ht.used.Add(idx)
	return newHandle(idx, s.gen), nil
}

// getLocked returns the slot named by h.
//
// Preconditions: ht.mu must be locked.
func (ht *HandleTable) getLocked(h Handle) (*slot, error) {
	idx := h.Index()
	if !h.Valid() || idx >= uint32(len(ht.slots)) || !ht.used.Contains(idx) {
		return nil, kerr.ErrBadHandle
	}
	s := &ht.slots[idx]
	if s.gen != h.Generation() {
		return nil, kerr.ErrBadHandle
	}
	if s.entry == nil || s.Provider == nil {
		panic(fatalError{fmt.Errorf("handle %v is live without a resource", h)})
	}
	return s, nil
}

// Get returns a snapshot of h. Handles to revoked resources are stale and
// report BadHandle.
func (ht *HandleTable) Get(h Handle) (HandleEntry, error) {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	s, err := ht.getLocked(h)
	if err != nil {
		return HandleEntry{}, err
	}
	if s.entry.Revoked() {
		return HandleEntry{}, kerr.ErrBadHandle
	}
	return s.HandleEntry, nil
}

// Release invalidates h and drops its resource reference. A second release
// of the same handle fails with BadHandle.
func (ht *HandleTable) Release(h Handle) error {
	ht.mu.Lock()
	s, err := ht.getLocked(h)
	if err != nil {
		ht.mu.Unlock()
		return err
	}
	e := s.entry
	s.HandleEntry = HandleEntry{}
	ht.used.Remove(h.Index())
	ht.mu.Unlock()

	e.Close()
	return nil
}

// SetCursor sets the cursor of h.
func (ht *HandleTable) SetCursor(h Handle, cursor uint64) error {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	s, err := ht.getLocked(h)
	if err != nil {
		return err
	}
	s.Cursor = cursor
	return nil
}

// AdvanceCursor adds n to the cursor of h if it still equals from. It
// returns false if the handle moved or was released in between.
func (ht *HandleTable) AdvanceCursor(h Handle, from, n uint64) bool {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	s, err := ht.getLocked(h)
	if err != nil || s.Cursor != from {
		return false
	}
	s.Cursor = from + n
	return true
}

// SetTimeout sets the blocking timeout of h. Zero clears it.
func (ht *HandleTable) SetTimeout(h Handle, d time.Duration) error {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	s, err := ht.getLocked(h)
	if err != nil {
		return err
	}
	s.Timeout = d
	return nil
}

// Install adds a duplicate of he, for example one obtained from another
// task's table, and returns its handle in ht. The duplicate has its own
// cursor and timeout.
func (ht *HandleTable) Install(he HandleEntry) (Handle, error) {
	if he.entry == nil {
		return 0, kerr.ErrBadHandle
	}
	he.entry.Dup()
	h, err := ht.install(he)
	if err != nil {
		he.entry.Close()
	}
	return h, err
}

// liveLocked returns the indices of live slots, most recent allocation
// first.
//
// Preconditions: ht.mu must be locked.
func (ht *HandleTable) liveLocked() []uint32 {
	live := ht.used.ToSlice()
	slices.SortFunc(live, func(a, b uint32) int {
		switch sa, sb := ht.slots[a].seq, ht.slots[b].seq; {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		}
		return 0
	})
	return live
}

// FlushAll releases every handle, most recently allocated first.
func (ht *HandleTable) FlushAll() {
	ht.mu.Lock()
	var entries []*resource.Entry
	for _, idx := range ht.liveLocked() {
		s := &ht.slots[idx]
		entries = append(entries, s.entry)
		s.HandleEntry = HandleEntry{}
		ht.used.Remove(idx)
	}
	ht.mu.Unlock()

	for _, e := range entries {
		e.Close()
	}
}

// Fork returns an independent copy of ht for a new task. Every handle keeps
// its value; the copies reference the same resources.
func (ht *HandleTable) Fork() *HandleTable {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	clone := &HandleTable{
		slots: make([]slot, len(ht.slots)),
		max:   ht.max,
		seq:   ht.seq,
	}
	clone.used = bitmap.New(uint32(len(ht.slots)))
	for i := range ht.slots {
		// Generations are copied for free slots too, so that handles
		// released in the parent stay stale in the child.
		clone.slots[i].gen = ht.slots[i].gen
	}
	for _, idx := range ht.used.ToSlice() {
		s := ht.slots[idx]
		s.entry.Dup()
		clone.slots[idx] = s
		clone.used.Add(idx)
	}
	return clone
}

// Len returns the number of live handles.
func (ht *HandleTable) Len() int {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	return int(ht.used.Count())
}

// Cap returns the current capacity.
func (ht *HandleTable) Cap() int {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	return len(ht.slots)
}

// Handles returns the live handles in index order.
func (ht *HandleTable) Handles() []Handle {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	var hs []Handle
	for _, idx := range ht.used.ToSlice() {
		hs = append(hs, newHandle(idx, ht.slots[idx].gen))
	}
	return hs
}

// String is a stringer for HandleTable.
func (ht *HandleTable) String() string {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	var b bytes.Buffer
	for _, idx := range ht.used.ToSlice() {
		s := &ht.slots[idx]
		fmt.Fprintf(&b, "\thandle:%v => name %s mode %#x\n", newHandle(idx, s.gen), s.entry.Name(), s.Mode)
	}
	return b.String()
}
