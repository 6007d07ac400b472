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
	"sync"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/log"
	"karnal.dev/karnal64/pkg/refs"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/pgalloc"
	"karnal.dev/karnal64/pkg/sentry/platform"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// SharedMemoryPrefix is the name prefix of shared memory objects.
const SharedMemoryPrefix = resource.SysPrefix + "shm/"

// MaxSharedMemorySize bounds the size of a shared memory object.
const MaxSharedMemorySize = 1 << 30

// SharedMemory is a resizable block of physical memory. SHARED mappings of it
// map its frames directly, so every task mapping it sees the same bytes.
//
// The object holds one reference for the registry and one per mapped page.
// Its frames are freed when the last reference is dropped.
type SharedMemory struct {
	refs.AtomicRefCount
	resource.Modes

	frames *pgalloc.Allocator

	// mu protects the fields below.
	mu sync.Mutex

	// pages holds the frames, one per page of size.
	pages []platform.PhysAddr

	size uint64

	// released is set when the registry drops the object.
	released bool
}

var (
	_ resource.Provider = (*SharedMemory)(nil)
	_ resource.Releaser = (*SharedMemory)(nil)
	_ FrameProvider     = (*SharedMemory)(nil)
)

// NewSharedMemory returns an empty shared memory object.
func NewSharedMemory(frames *pgalloc.Allocator) *SharedMemory {
	return &SharedMemory{
		Modes:  resource.Modes(karnal.ModeRead | karnal.ModeWrite),
		frames: frames,
	}
}

// SharedMemoryFactory returns a factory creating shared memory objects under
// SharedMemoryPrefix.
func SharedMemoryFactory(frames *pgalloc.Allocator) resource.Factory {
	return func(ctx context.Context, name string) (resource.Provider, karnal.Mode, error) {
		ctx.Debugf("Creating shared memory object %q", name)
		return NewSharedMemory(frames), karnal.ModeRead | karnal.ModeWrite, nil
	}
}

// Size returns the size of the object in bytes.
func (s *SharedMemory) Size() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Resize grows the object to size bytes, rounded up to whole pages. New pages
// read as zero. Shrinking is not supported.
func (s *SharedMemory) Resize(size uint64) error {
	rounded, ok := hostarch.PageRoundUp(size)
	if !ok || rounded > MaxSharedMemorySize {
		return kerr.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return kerr.ErrBadHandle
	}
	if rounded < s.size {
		return kerr.ErrInvalidArgument
	}
	want := int(rounded / hostarch.PageSize)
	pas, err := s.frames.AllocateN(want - len(s.pages))
	if err != nil {
		return err
	}
	s.pages = append(s.pages, pas...)
	s.size = rounded
	return nil
}

// FrameAt implements FrameProvider.FrameAt.
func (s *SharedMemory) FrameAt(offset uint64) (platform.PhysAddr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset >= s.size {
		return 0, kerr.ErrBadAddress
	}
	s.IncRef()
	return s.pages[offset/hostarch.PageSize], nil
}

// PutFrame implements FrameProvider.PutFrame.
func (s *SharedMemory) PutFrame(uint64) {
	s.DecRefWithDestructor(s.destroy)
}

// Release implements resource.Releaser.Release.
func (s *SharedMemory) Release() {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
	s.DecRefWithDestructor(s.destroy)
}

func (s *SharedMemory) destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pa := range s.pages {
		s.frames.Free(pa)
	}
	log.Debugf("mm: freed %d shared memory pages", len(s.pages))
	s.pages = nil
	s.size = 0
}

// transfer calls fn for each page piece of [offset, offset+length) clipped
// to the object's size.
func (s *SharedMemory) transfer(offset uint64, length int, fn func(done int, frame []byte) int) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	done := 0
	for done < length {
		cur := offset + uint64(done)
		if cur >= s.size {
			break
		}
		off := cur % hostarch.PageSize
		n := min(uint64(length-done), hostarch.PageSize-off, s.size-cur)
		frame := s.frames.Frame(s.pages[cur/hostarch.PageSize])[off : off+n]
		done += fn(done, frame)
	}
	return uint64(done)
}

// Read implements resource.Provider.Read.
func (s *SharedMemory) Read(ctx context.Context, dst []byte, offset uint64) (uint64, error) {
	return s.transfer(offset, len(dst), func(done int, frame []byte) int {
		return copy(dst[done:], frame)
	}), nil
}

// Write implements resource.Provider.Write. Writes do not grow the object.
func (s *SharedMemory) Write(ctx context.Context, src []byte, offset uint64) (uint64, error) {
	if len(src) > 0 && offset >= s.Size() {
		return 0, kerr.ErrInvalidArgument
	}
	return s.transfer(offset, len(src), func(done int, frame []byte) int {
		return copy(frame, src[done:])
	}), nil
}

// Control implements resource.Provider.Control.
func (s *SharedMemory) Control(ctx context.Context, request, arg uint64) (uint64, error) {
	switch request {
	case karnal.SharedMemoryResize:
		return 0, s.Resize(arg)
	case karnal.SharedMemorySize:
		return s.Size(), nil
	default:
		return 0, kerr.ErrNotSupported
	}
}

// Seek implements resource.Provider.Seek.
func (s *SharedMemory) Seek(ctx context.Context, current uint64, whence karnal.SeekWhence, offset int64) (uint64, error) {
	return resource.SeekWithin(current, s.Size(), whence, offset)
}

// Status implements resource.Provider.Status.
func (s *SharedMemory) Status(ctx context.Context) resource.Status {
	return resource.Status{Readable: true, Writable: true, Seekable: true, Size: s.Size(), HasSize: true}
}
