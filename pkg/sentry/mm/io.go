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
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/usermem"
)

var _ usermem.IO = (*MemoryManager)(nil)

// Validate implements usermem.IO.Validate.
func (mm *MemoryManager) Validate(addr hostarch.Addr, length uint64, at hostarch.AccessType) error {
	if length == 0 {
		return nil
	}
	ar, ok := addr.ToRange(length)
	if !ok {
		return kerr.ErrInvalidArgument
	}
	if !ar.IsUser() {
		return kerr.ErrBadAddress
	}
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	if mm.released {
		return kerr.ErrBadAddress
	}
	return mm.coveredLocked(ar, at)
}

// CopyOut implements usermem.IO.CopyOut.
func (mm *MemoryManager) CopyOut(ctx context.Context, addr hostarch.Addr, src []byte) (int, error) {
	return mm.withPages(ctx, addr, len(src), hostarch.Write, func(done int, frame []byte) int {
		return copy(frame, src[done:])
	})
}

// CopyIn implements usermem.IO.CopyIn.
func (mm *MemoryManager) CopyIn(ctx context.Context, addr hostarch.Addr, dst []byte) (int, error) {
	return mm.withPages(ctx, addr, len(dst), hostarch.Read, func(done int, frame []byte) int {
		return copy(dst[done:], frame)
	})
}

// ZeroOut zeroes length bytes at addr.
func (mm *MemoryManager) ZeroOut(ctx context.Context, addr hostarch.Addr, length int) (int, error) {
	return mm.withPages(ctx, addr, length, hostarch.Write, func(_ int, frame []byte) int {
		clear(frame)
		return len(frame)
	})
}

// withPages calls fn with the kernel view of each page piece of
// [addr, addr+length), populating pages as needed. fn receives the number of
// bytes done so far and returns the number of bytes it consumed. At the first
// piece that is not mapped with at, withPages stops and reports BadAddress
// with the number of bytes done.
func (mm *MemoryManager) withPages(ctx context.Context, addr hostarch.Addr, length int, at hostarch.AccessType, fn func(done int, frame []byte) int) (int, error) {
	if length == 0 {
		return 0, nil
	}
	if _, ok := addr.AddLength(uint64(length)); !ok {
		return 0, kerr.ErrBadAddress
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.released {
		return 0, kerr.ErrBadAddress
	}
	done := 0
	for done < length {
		cur := addr + hostarch.Addr(done)
		if !cur.IsUser() {
			return done, kerr.ErrBadAddress
		}
		v := mm.findVMALocked(cur)
		if v == nil || !v.perms.SupersetOf(at) {
			return done, kerr.ErrBadAddress
		}
		p, err := mm.getPageLocked(ctx, v, cur.RoundDown())
		if err != nil {
			return done, err
		}
		off := cur.PageOffset()
		n := min(uint64(length-done), hostarch.PageSize-off)
		frame := mm.frames.Frame(p.pa)[off : off+n]
		done += fn(done, frame)
	}
	return done, nil
}
