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

// Package mm provides the memory manager: per-task address spaces made of
// regions that are populated page by page on demand.
//
// Regions (vmas) are kept in a B-tree ordered by start address. Pages are
// populated on the first fault or kernel access: anonymous pages with a
// zeroed frame, SHARED pages of a shared memory object with the object's own
// frame, and every other file-backed page with a private frame filled by
// reading the backing provider. Writes to PRIVATE mappings therefore never
// reach the backing, and SHARED file-backed pages are written back when they
// are unmapped.
//
// Lock order:
//
//	mm.MemoryManager.mu
//		provider locks
//		pgalloc.Allocator.mu
//		platform MMU locks
package mm

import (
	"sync"

	"github.com/google/btree"
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/pgalloc"
	"karnal.dev/karnal64/pkg/sentry/platform"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// btreeDegree is the degree of the region tree.
const btreeDegree = 8

// MemoryManager implements a virtual address space for one task.
//
// A task exclusively owns its MemoryManager.
type MemoryManager struct {
	// frames allocates the physical memory behind populated pages.
	frames *pgalloc.Allocator

	// mmu mirrors every populated page.
	mmu platform.MMU

	// asid is the MMU address space. It is immutable.
	asid platform.ASID

	// mu is the address space lock. It protects all fields below, and MMU
	// calls for asid are made with it held.
	mu sync.RWMutex

	// vmas is the set of regions, ordered by start address. Regions never
	// overlap and always lie within the user address range.
	vmas *btree.BTreeG[*vma]

	// pages holds the populated pages, keyed by page address. Every entry
	// lies within a region and is mapped in the MMU.
	pages map[hostarch.Addr]*page

	// released is set by Release.
	released bool
}

// New returns an empty address space.
func New(frames *pgalloc.Allocator, mmu platform.MMU) (*MemoryManager, error) {
	asid, err := mmu.NewAddressSpace()
	if err != nil {
		return nil, err
	}
	return &MemoryManager{
		frames: frames,
		mmu:    mmu,
		asid:   asid,
		vmas:   btree.NewG[*vma](btreeDegree, vmaLess),
		pages:  make(map[hostarch.Addr]*page),
	}, nil
}

// ASID returns the MMU address space of mm.
func (mm *MemoryManager) ASID() platform.ASID {
	return mm.asid
}

// Region describes a region of the address space.
type Region struct {
	Start    hostarch.Addr
	End      hostarch.Addr
	Perms    hostarch.AccessType
	MaxPerms hostarch.AccessType
	Private  bool

	// Backing is nil for anonymous regions.
	Backing resource.Provider
	Offset  uint64
}

// Regions returns a snapshot of the address space in address order.
func (mm *MemoryManager) Regions() []Region {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	rs := make([]Region, 0, mm.vmas.Len())
	mm.vmas.Ascend(func(v *vma) bool {
		rs = append(rs, Region{
			Start:    v.start,
			End:      v.end,
			Perms:    v.perms,
			MaxPerms: v.maxPerms,
			Private:  v.private,
			Backing:  v.backing,
			Offset:   v.offset,
		})
		return true
	})
	return rs
}

// ResidentPages returns the number of populated pages.
func (mm *MemoryManager) ResidentPages() int {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return len(mm.pages)
}

// Info returns the usage of the physical memory the address space draws on.
func (mm *MemoryManager) Info() karnal.MemoryInfo {
	return mm.frames.Info()
}

// Release tears down the address space: every region is unmapped, SHARED
// file-backed pages are written back, and the MMU address space is
// destroyed. Later operations fail with BadAddress.
func (mm *MemoryManager) Release(ctx context.Context) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.released {
		return
	}
	mm.unmapLocked(ctx, hostarch.AddrRange{Start: hostarch.MinUserAddress, End: hostarch.MaxUserAddress})
	mm.released = true
	mm.mmu.InvalidateTLB(mm.asid, nil)
	mm.mmu.ReleaseAddressSpace(mm.asid)
}
