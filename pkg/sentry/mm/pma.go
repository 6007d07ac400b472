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
	"slices"

	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/log"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/platform"
)

// FrameProvider is implemented by backings whose contents live in physical
// frames that every SHARED mapping maps directly, such as shared memory
// objects.
type FrameProvider interface {
	// FrameAt returns the frame holding the page at offset and takes a
	// reference on it for the mapping.
	FrameAt(offset uint64) (platform.PhysAddr, error)

	// PutFrame drops the reference taken by FrameAt.
	PutFrame(offset uint64)
}

// A page is a populated page of the address space.
type page struct {
	pa platform.PhysAddr

	// owned is true if the frame was allocated for this page and is freed
	// with it. Otherwise it belongs to a FrameProvider.
	owned bool

	// writeback is true for pages of SHARED file-backed writable regions.
	writeback bool
}

// getPageLocked returns the page at addr, populating it if necessary.
//
// Preconditions: mm.mu must be locked for writing. v contains addr, which is
// page-aligned.
func (mm *MemoryManager) getPageLocked(ctx context.Context, v *vma, addr hostarch.Addr) (*page, error) {
	if p, ok := mm.pages[addr]; ok {
		return p, nil
	}
	p, err := mm.populateLocked(ctx, v, addr)
	if err != nil {
		return nil, err
	}
	if err := mm.mmu.MapPage(mm.asid, addr, p.pa, v.perms); err != nil {
		mm.dropPageLocked(ctx, v, addr, p)
		log.Warningf("mm: MMU rejected mapping of %v: %v", addr, err)
		return nil, kerr.ErrInternal
	}
	mm.pages[addr] = p
	return p, nil
}

// populateLocked produces the frame for the page at addr.
//
// Preconditions: as for getPageLocked.
func (mm *MemoryManager) populateLocked(ctx context.Context, v *vma, addr hostarch.Addr) (*page, error) {
	if v.backing == nil {
		pa, err := mm.frames.Allocate()
		if err != nil {
			return nil, err
		}
		return &page{pa: pa, owned: true}, nil
	}

	off := v.backingOffset(addr)
	fp, isFrames := v.backing.(FrameProvider)
	if isFrames && !v.private {
		pa, err := fp.FrameAt(off)
		if err != nil {
			return nil, err
		}
		return &page{pa: pa}, nil
	}

	pa, err := mm.frames.Allocate()
	if err != nil {
		return nil, err
	}
	if err := mm.readBacking(ctx, v, off, mm.frames.Frame(pa)); err != nil {
		mm.frames.Free(pa)
		return nil, err
	}
	return &page{
		pa:        pa,
		owned:     true,
		writeback: !v.private && v.maxPerms.Write,
	}, nil
}

// readBacking fills dst from the region's backing at off. Bytes past the end
// of the backing read as zero.
func (mm *MemoryManager) readBacking(ctx context.Context, v *vma, off uint64, dst []byte) error {
	for done := 0; done < len(dst); {
		n, err := v.backing.Read(ctx, dst[done:], off+uint64(done))
		if err != nil {
			log.Debugf("mm: reading backing of %v at %#x: %v", v, off, err)
			return kerr.ErrBadAddress
		}
		if n == 0 {
			break
		}
		done += int(n)
	}
	return nil
}

// writeBack writes a SHARED file-backed page to its backing. Write errors
// are logged; the page contents are lost.
func (mm *MemoryManager) writeBack(ctx context.Context, v *vma, addr hostarch.Addr, p *page) {
	data := mm.frames.Frame(p.pa)
	off := v.backingOffset(addr)
	if st := v.backing.Status(ctx); st.HasSize {
		if off >= st.Size {
			return
		}
		data = data[:min(uint64(len(data)), st.Size-off)]
	}
	if _, err := v.backing.Write(ctx, data, off); err != nil {
		log.Warningf("mm: write back of %v at %#x failed: %v", addr, off, err)
	}
}

// dropPageLocked releases the frame of p.
//
// Preconditions: mm.mu must be locked for writing. p is no longer mapped.
func (mm *MemoryManager) dropPageLocked(ctx context.Context, v *vma, addr hostarch.Addr, p *page) {
	if p.writeback {
		mm.writeBack(ctx, v, addr, p)
	}
	if p.owned {
		mm.frames.Free(p.pa)
		return
	}
	v.backing.(FrameProvider).PutFrame(v.backingOffset(addr))
}

// populatedLocked returns the addresses of v's populated pages in ascending
// order.
//
// Preconditions: mm.mu must be locked.
func (mm *MemoryManager) populatedLocked(v *vma) []hostarch.Addr {
	var addrs []hostarch.Addr
	if uint64(v.end-v.start)/hostarch.PageSize <= uint64(len(mm.pages)) {
		for addr := v.start; addr < v.end; addr += hostarch.PageSize {
			if _, ok := mm.pages[addr]; ok {
				addrs = append(addrs, addr)
			}
		}
		return addrs
	}
	for addr := range mm.pages {
		if v.addrRange().Contains(addr) {
			addrs = append(addrs, addr)
		}
	}
	slices.Sort(addrs)
	return addrs
}

// unmapPagesLocked removes every populated page of vs from the MMU and drops
// it.
//
// Preconditions: mm.mu must be locked for writing.
func (mm *MemoryManager) unmapPagesLocked(ctx context.Context, vs []*vma) {
	for _, v := range vs {
		for _, addr := range mm.populatedLocked(v) {
			p := mm.pages[addr]
			mm.mmu.UnmapPage(mm.asid, addr)
			a := addr
			mm.mmu.InvalidateTLB(mm.asid, &a)
			delete(mm.pages, addr)
			mm.dropPageLocked(ctx, v, addr, p)
		}
	}
}

// remapPagesLocked re-establishes the MMU mappings of every populated page of
// v with its current permissions.
//
// Preconditions: mm.mu must be locked for writing.
func (mm *MemoryManager) remapPagesLocked(v *vma) error {
	for _, addr := range mm.populatedLocked(v) {
		p := mm.pages[addr]
		if err := mm.mmu.MapPage(mm.asid, addr, p.pa, v.perms); err != nil {
			return err
		}
		a := addr
		mm.mmu.InvalidateTLB(mm.asid, &a)
	}
	return nil
}
