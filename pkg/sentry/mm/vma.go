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

package mm

import (
	"fmt"

	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// A vma represents a region of the address space.
type vma struct {
	start hostarch.Addr
	end   hostarch.Addr

	// perms are the permissions of every page in the region.
	perms hostarch.AccessType

	// maxPerms bounds perms. Protect may not raise perms above it.
	maxPerms hostarch.AccessType

	// private is true for PRIVATE mappings and false for SHARED ones.
	private bool

	// backing is the provider the region reads through, or nil for an
	// anonymous region. offset is the backing offset of start.
	backing resource.Provider
	offset  uint64
}

func vmaLess(a, b *vma) bool {
	return a.start < b.start
}

func (v *vma) String() string {
	return fmt.Sprintf("[%v, %v) %v/%v private=%t backed=%t", v.start, v.end, v.perms, v.maxPerms, v.private, v.backing != nil)
}

func (v *vma) addrRange() hostarch.AddrRange {
	return hostarch.AddrRange{Start: v.start, End: v.end}
}

// backingOffset returns the backing offset of addr.
//
// Preconditions: v contains addr.
func (v *vma) backingOffset(addr hostarch.Addr) uint64 {
	return v.offset + uint64(addr-v.start)
}

// findVMALocked returns the region containing addr, or nil.
//
// Preconditions: mm.mu must be locked.
func (mm *MemoryManager) findVMALocked(addr hostarch.Addr) *vma {
	var found *vma
	mm.vmas.DescendLessOrEqual(&vma{start: addr}, func(v *vma) bool {
		found = v
		return false
	})
	if found == nil || found.end <= addr {
		return nil
	}
	return found
}

// forEachVMALocked calls fn for every region overlapping ar in address order
// until fn returns false.
//
// Preconditions: mm.mu must be locked. fn must not insert or delete regions.
func (mm *MemoryManager) forEachVMALocked(ar hostarch.AddrRange, fn func(v *vma) bool) {
	first := mm.findVMALocked(ar.Start)
	pivot := &vma{start: ar.Start}
	if first != nil {
		pivot = first
	}
	mm.vmas.AscendGreaterOrEqual(pivot, func(v *vma) bool {
		if v.start >= ar.End {
			return false
		}
		return fn(v)
	})
}

// overlapsLocked returns true if any region overlaps ar.
//
// Preconditions: mm.mu must be locked.
func (mm *MemoryManager) overlapsLocked(ar hostarch.AddrRange) bool {
	overlaps := false
	mm.forEachVMALocked(ar, func(*vma) bool {
		overlaps = true
		return false
	})
	return overlaps
}

// coveredLocked checks that ar is covered without holes by regions whose
// permissions include at.
//
// Preconditions: mm.mu must be locked.
func (mm *MemoryManager) coveredLocked(ar hostarch.AddrRange, at hostarch.AccessType) error {
	next := ar.Start
	mm.forEachVMALocked(ar, func(v *vma) bool {
		if v.start > next || !v.perms.SupersetOf(at) {
			return false
		}
		next = v.end
		return next < ar.End
	})
	if next < ar.End {
		return kerr.ErrBadAddress
	}
	return nil
}

// findAvailableLocked returns the start of a free range of length bytes. The
// hint is used if the range starting there is free; otherwise the lowest free
// range is chosen.
//
// Preconditions: mm.mu must be locked. length is page-aligned and non-zero.
func (mm *MemoryManager) findAvailableLocked(length uint64, hint hostarch.Addr) (hostarch.Addr, error) {
	if hint = hint.RoundDown(); hint >= hostarch.MinUserAddress {
		if ar, ok := hint.ToRange(length); ok && ar.IsUser() && !mm.overlapsLocked(ar) {
			return hint, nil
		}
	}

	gapStart := hostarch.Addr(hostarch.MinUserAddress)
	found := false
	mm.vmas.Ascend(func(v *vma) bool {
		if v.start > gapStart && uint64(v.start-gapStart) >= length {
			found = true
			return false
		}
		if v.end > gapStart {
			gapStart = v.end
		}
		return true
	})
	if found {
		return gapStart, nil
	}
	if end, ok := gapStart.AddLength(length); ok && end <= hostarch.MaxUserAddress {
		return gapStart, nil
	}
	return 0, kerr.ErrOutOfMemory
}

// splitLocked ensures that no region straddles addr.
//
// Preconditions: mm.mu must be locked for writing.
func (mm *MemoryManager) splitLocked(addr hostarch.Addr) {
	v := mm.findVMALocked(addr)
	if v == nil || v.start == addr {
		return
	}
	tail := *v
	tail.start = addr
	if v.backing != nil {
		tail.offset = v.backingOffset(addr)
	}
	v.end = addr
	mm.vmas.ReplaceOrInsert(&tail)
}

// isolateLocked splits regions so that every region overlapping ar lies
// within it, and returns those regions.
//
// Preconditions: mm.mu must be locked for writing.
func (mm *MemoryManager) isolateLocked(ar hostarch.AddrRange) []*vma {
	mm.splitLocked(ar.Start)
	mm.splitLocked(ar.End)
	var vs []*vma
	mm.forEachVMALocked(ar, func(v *vma) bool {
		vs = append(vs, v)
		return true
	})
	return vs
}
