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

// Package pgalloc contains the physical frame allocator.
//
// Frames are page-sized blocks of platform memory tracked by a bitmap.
// Allocation always returns the lowest free frame, zeroed.
package pgalloc

import (
	"fmt"
	"sync"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/bitmap"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/log"
	"karnal.dev/karnal64/pkg/sentry/platform"
)

// Allocator hands out physical frames.
type Allocator struct {
	mem platform.Memory

	// mu protects frames.
	mu sync.Mutex

	// frames has a bit set for every frame in use.
	frames bitmap.Bitmap
}

// New returns an allocator over all of mem.
func New(mem platform.Memory) (*Allocator, error) {
	n := mem.Size() / hostarch.PageSize
	if n == 0 || n > 1<<32-1 {
		return nil, fmt.Errorf("unsupported physical memory size %d", mem.Size())
	}
	return &Allocator{
		mem:    mem,
		frames: bitmap.New(uint32(n)),
	}, nil
}

// Memory returns the memory frames are allocated from.
func (a *Allocator) Memory() platform.Memory {
	return a.mem
}

// Allocate returns a zeroed frame.
func (a *Allocator) Allocate() (platform.PhysAddr, error) {
	a.mu.Lock()
	i, ok := a.frames.FirstZero(0)
	if !ok {
		a.mu.Unlock()
		log.Debugf("pgalloc: out of frames")
		return 0, kerr.ErrOutOfMemory
	}
	a.frames.Add(i)
	a.mu.Unlock()

	pa := platform.PhysAddr(uint64(i) * hostarch.PageSize)
	clear(a.Frame(pa))
	return pa, nil
}

// AllocateN returns n frames, or none if fewer than n are free.
func (a *Allocator) AllocateN(n int) ([]platform.PhysAddr, error) {
	pas := make([]platform.PhysAddr, 0, n)
	for len(pas) < n {
		pa, err := a.Allocate()
		if err != nil {
			for _, pa := range pas {
				a.Free(pa)
			}
			return nil, err
		}
		pas = append(pas, pa)
	}
	return pas, nil
}

// Free returns the frame at pa to the allocator. Freeing a free frame is an
// invariant violation.
func (a *Allocator) Free(pa platform.PhysAddr) {
	i := uint32(uint64(pa) / hostarch.PageSize)
	a.mu.Lock()
	defer a.mu.Unlock()
	if uint64(pa)%hostarch.PageSize != 0 || !a.frames.Contains(i) {
		panic(fmt.Sprintf("pgalloc: freeing frame %#x that is not allocated", pa))
	}
	a.frames.Remove(i)
}

// Frame returns the kernel's view of the frame at pa.
func (a *Allocator) Frame(pa platform.PhysAddr) []byte {
	return a.mem.Slice(pa, hostarch.PageSize)
}

// Info returns the usage of physical memory.
func (a *Allocator) Info() karnal.MemoryInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := uint64(a.frames.Size()) * hostarch.PageSize
	used := uint64(a.frames.Count()) * hostarch.PageSize
	return karnal.MemoryInfo{
		Total:            total,
		Free:             total - used,
		Used:             used,
		LargestFreeBlock: uint64(a.frames.LongestZeroRun()) * hostarch.PageSize,
	}
}
