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
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/log"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// MapOpts specifies a mapping.
type MapOpts struct {
	// Addr is the hint, or the exact address if Flags contains MapFixed.
	Addr hostarch.Addr

	// Length is the length of the mapping in bytes. It is rounded up to a
	// whole number of pages.
	Length uint64

	// Perms are the initial permissions.
	Perms hostarch.AccessType

	// MaxPerms bounds later Protect calls. The zero value means any
	// permissions.
	MaxPerms hostarch.AccessType

	// Flags must contain exactly one of MapShared and MapPrivate, and
	// MapAnonymous exactly when Backing is nil.
	Flags karnal.MapFlags

	// Backing is the provider the mapping reads through, and Offset the
	// page-aligned backing offset of the first page.
	Backing resource.Provider
	Offset  uint64

	// Precommit populates every page before Map returns.
	Precommit bool
}

// Map creates a mapping and returns its address.
func (mm *MemoryManager) Map(ctx context.Context, opts MapOpts) (hostarch.Addr, error) {
	if opts.Length == 0 || opts.Flags&^karnal.MapMask != 0 {
		return 0, kerr.ErrInvalidArgument
	}
	length, ok := hostarch.PageRoundUp(opts.Length)
	if !ok {
		return 0, kerr.ErrInvalidArgument
	}
	if opts.Flags.Has(karnal.MapShared) == opts.Flags.Has(karnal.MapPrivate) {
		return 0, kerr.ErrInvalidArgument
	}
	if opts.Flags.Has(karnal.MapAnonymous) != (opts.Backing == nil) {
		return 0, kerr.ErrInvalidArgument
	}
	if opts.MaxPerms == hostarch.NoAccess {
		opts.MaxPerms = hostarch.AnyAccess
	}
	if !opts.MaxPerms.SupersetOf(opts.Perms) {
		return 0, kerr.ErrPermissionDenied
	}
	if opts.Backing != nil {
		if err := checkBacking(ctx, opts, length); err != nil {
			return 0, err
		}
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.released {
		return 0, kerr.ErrBadAddress
	}

	var addr hostarch.Addr
	if opts.Flags.Has(karnal.MapFixed) {
		ar, ok := opts.Addr.ToRange(length)
		if !ok || !opts.Addr.IsPageAligned() || !ar.IsUser() {
			return 0, kerr.ErrInvalidArgument
		}
		if mm.overlapsLocked(ar) {
			return 0, kerr.ErrAlreadyExists
		}
		addr = opts.Addr
	} else {
		var err error
		if addr, err = mm.findAvailableLocked(length, opts.Addr); err != nil {
			return 0, err
		}
	}

	v := &vma{
		start:    addr,
		end:      addr + hostarch.Addr(length),
		perms:    opts.Perms,
		maxPerms: opts.MaxPerms,
		private:  opts.Flags.Has(karnal.MapPrivate),
		backing:  opts.Backing,
		offset:   opts.Offset,
	}
	mm.vmas.ReplaceOrInsert(v)

	if opts.Precommit {
		for a := v.start; a < v.end; a += hostarch.PageSize {
			if _, err := mm.getPageLocked(ctx, v, a); err != nil {
				mm.unmapLocked(ctx, v.addrRange())
				return 0, err
			}
		}
	}
	log.Debugf("mm: mapped %v", v)
	return addr, nil
}

// checkBacking verifies that opts.Backing can back a mapping of length bytes.
func checkBacking(ctx context.Context, opts MapOpts, length uint64) error {
	if opts.Offset%hostarch.PageSize != 0 {
		return kerr.ErrInvalidArgument
	}
	if _, ok := hostarch.Addr(opts.Offset).AddLength(length); !ok {
		return kerr.ErrInvalidArgument
	}
	st := opts.Backing.Status(ctx)
	if !st.Readable {
		return kerr.ErrPermissionDenied
	}
	// Pages are filled by positional reads; a stream would lose data to
	// every fault.
	if _, ok := opts.Backing.(FrameProvider); !ok && !st.Seekable {
		return kerr.ErrNotSupported
	}
	if !opts.Flags.Has(karnal.MapPrivate) && opts.Perms.Write && !st.Writable {
		return kerr.ErrPermissionDenied
	}
	if _, ok := opts.Backing.(FrameProvider); ok && opts.Flags.Has(karnal.MapShared) {
		if !st.HasSize || opts.Offset+length > st.Size {
			return kerr.ErrInvalidArgument
		}
	}
	return nil
}

// Allocate maps size bytes of committed, zero-filled private memory.
func (mm *MemoryManager) Allocate(ctx context.Context, size uint64, perms hostarch.AccessType) (hostarch.Addr, error) {
	return mm.Map(ctx, MapOpts{
		Length:    size,
		Perms:     perms,
		Flags:     karnal.MapPrivate | karnal.MapAnonymous,
		Precommit: true,
	})
}

// Free releases memory returned by Allocate.
func (mm *MemoryManager) Free(ctx context.Context, addr hostarch.Addr, size uint64) error {
	return mm.Unmap(ctx, addr, size)
}

// Unmap removes the mappings of [addr, addr+length). Parts of the range that
// are not mapped are ignored.
func (mm *MemoryManager) Unmap(ctx context.Context, addr hostarch.Addr, length uint64) error {
	ar, err := pageRange(addr, length)
	if err != nil {
		return err
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.released {
		return kerr.ErrBadAddress
	}
	mm.unmapLocked(ctx, ar)
	return nil
}

// Preconditions: mm.mu must be locked for writing.
func (mm *MemoryManager) unmapLocked(ctx context.Context, ar hostarch.AddrRange) {
	vs := mm.isolateLocked(ar)
	mm.unmapPagesLocked(ctx, vs)
	for _, v := range vs {
		mm.vmas.Delete(v)
	}
}

// Protect changes the permissions of [addr, addr+length). The range must be
// mapped without holes. Every page switches at once: concurrent accesses see
// either the old or the new permissions of the whole range.
func (mm *MemoryManager) Protect(ctx context.Context, addr hostarch.Addr, length uint64, perms hostarch.AccessType) error {
	ar, err := pageRange(addr, length)
	if err != nil {
		return err
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.released {
		return kerr.ErrBadAddress
	}
	if err := mm.coveredLocked(ar, hostarch.NoAccess); err != nil {
		return err
	}
	permitted := true
	mm.forEachVMALocked(ar, func(v *vma) bool {
		permitted = v.maxPerms.SupersetOf(perms)
		return permitted
	})
	if !permitted {
		return kerr.ErrPermissionDenied
	}

	for _, v := range mm.isolateLocked(ar) {
		v.perms = perms
		if err := mm.remapPagesLocked(v); err != nil {
			// The MMU accepted these pages before; failing now
			// leaves the page tables inconsistent with the regions.
			panic("mm: MMU rejected a remap: " + err.Error())
		}
	}
	return nil
}

// HandleFault handles a page fault by a user thread at addr. It populates the
// page if a region permits the access, and fails with BadAddress otherwise.
func (mm *MemoryManager) HandleFault(ctx context.Context, addr hostarch.Addr, at hostarch.AccessType) error {
	if !addr.IsUser() {
		return kerr.ErrBadAddress
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.released {
		return kerr.ErrBadAddress
	}
	v := mm.findVMALocked(addr)
	if v == nil || !v.perms.SupersetOf(at) {
		return kerr.ErrBadAddress
	}
	pageAddr := addr.RoundDown()
	if p, ok := mm.pages[pageAddr]; ok {
		// A stale translation; refresh it.
		if err := mm.mmu.MapPage(mm.asid, pageAddr, p.pa, v.perms); err != nil {
			return kerr.ErrInternal
		}
		mm.mmu.InvalidateTLB(mm.asid, &pageAddr)
		return nil
	}
	_, err := mm.getPageLocked(ctx, v, pageAddr)
	return err
}

// pageRange checks that addr is page-aligned and length non-zero, and returns
// the user range they describe with length rounded up.
func pageRange(addr hostarch.Addr, length uint64) (hostarch.AddrRange, error) {
	if length == 0 || !addr.IsPageAligned() {
		return hostarch.AddrRange{}, kerr.ErrInvalidArgument
	}
	length, ok := hostarch.PageRoundUp(length)
	if !ok {
		return hostarch.AddrRange{}, kerr.ErrInvalidArgument
	}
	ar, ok := addr.ToRange(length)
	if !ok || !ar.IsUser() {
		return hostarch.AddrRange{}, kerr.ErrInvalidArgument
	}
	return ar, nil
}
