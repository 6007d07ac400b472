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

// Package loader loads executable images into an address space.
package loader

import (
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/cleanup"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/mm"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// Address space layout of a new task.
const (
	// ImageBase is where the image is mapped.
	ImageBase hostarch.Addr = 0x400000

	// ArgsBase is the preferred address of the argument region.
	ArgsBase hostarch.Addr = 0x1000_0000

	// StackTop is the preferred end of the stack.
	StackTop hostarch.Addr = 0x7fff_0000_0000
)

// ImageInfo describes a loaded image.
type ImageInfo struct {
	// Entry is the address of the first instruction.
	Entry hostarch.Addr

	// Stack is the region holding the stack. The initial stack pointer is
	// Stack.End.
	Stack hostarch.AddrRange

	// Args is the region holding the argument bytes. It is empty if there
	// were none.
	Args hostarch.AddrRange

	// ArgsLen is the number of argument bytes.
	ArgsLen uint64
}

// readFull reads until dst is full or the provider reports the end.
func readFull(ctx context.Context, p resource.Provider, dst []byte, offset uint64) (int, error) {
	done := 0
	for done < len(dst) {
		n, err := p.Read(ctx, dst[done:], offset+uint64(done))
		if err != nil {
			return done, err
		}
		if n == 0 {
			break
		}
		done += int(n)
	}
	return done, nil
}

// Load maps the image read from img into m: the image itself file-backed,
// read-execute and private at ImageBase, a writable region holding args, and
// a stack.
//
// A provider that does not contain a valid image fails with InvalidArgument.
// On failure nothing stays mapped.
func Load(ctx context.Context, m *mm.MemoryManager, img resource.Provider, args []byte) (ImageInfo, error) {
	hdr := make([]byte, HeaderSize)
	if n, err := readFull(ctx, img, hdr, 0); err != nil || n < HeaderSize {
		ctx.Debugf("Image header unreadable: %d bytes, %v", n, err)
		return ImageInfo{}, kerr.ErrInvalidArgument
	}
	h, err := ParseHeader(hdr)
	if err != nil {
		ctx.Debugf("Bad image: %v", err)
		return ImageInfo{}, kerr.ErrInvalidArgument
	}
	if st := img.Status(ctx); st.HasSize && st.Size < h.Size {
		ctx.Debugf("Image truncated: %d of %d bytes", st.Size, h.Size)
		return ImageInfo{}, kerr.ErrInvalidArgument
	}

	cu := cleanup.Make(nil)
	defer func() {
		if err := cu.Clean(); err != nil {
			ctx.Warningf("Undoing partial image load: %v", err)
		}
	}()

	rx := hostarch.AccessType{Read: true, Execute: true}
	base, err := m.Map(ctx, mm.MapOpts{
		Addr:     ImageBase,
		Length:   h.Size,
		Perms:    rx,
		MaxPerms: rx,
		Flags:    karnal.MapPrivate | karnal.MapFixed,
		Backing:  img,
	})
	if err != nil {
		return ImageInfo{}, err
	}
	imageLen, _ := hostarch.PageRoundUp(h.Size)
	cu.AddErr(func() error { return m.Unmap(ctx, base, imageLen) })

	info := ImageInfo{
		Entry:   base + hostarch.Addr(h.Entry),
		ArgsLen: uint64(len(args)),
	}
	if len(args) > 0 {
		argsLen, _ := hostarch.PageRoundUp(uint64(len(args)))
		addr, err := m.Map(ctx, mm.MapOpts{
			Addr:   ArgsBase,
			Length: argsLen,
			Perms:  hostarch.ReadWrite,
			Flags:  karnal.MapPrivate | karnal.MapAnonymous,
		})
		if err != nil {
			return ImageInfo{}, err
		}
		cu.AddErr(func() error { return m.Unmap(ctx, addr, argsLen) })
		if _, err := m.CopyOut(ctx, addr, args); err != nil {
			return ImageInfo{}, err
		}
		info.Args = hostarch.AddrRange{Start: addr, End: addr + hostarch.Addr(argsLen)}
	}

	stack, err := m.Map(ctx, mm.MapOpts{
		Addr:     StackTop - hostarch.Addr(h.StackSize),
		Length:   h.StackSize,
		Perms:    hostarch.ReadWrite,
		MaxPerms: hostarch.ReadWrite,
		Flags:    karnal.MapPrivate | karnal.MapAnonymous,
	})
	if err != nil {
		return ImageInfo{}, err
	}
	info.Stack = hostarch.AddrRange{Start: stack, End: stack + hostarch.Addr(h.StackSize)}

	cu.Release()
	ctx.Debugf("Loaded image: entry %v, stack %v, args %v", info.Entry, info.Stack, info.Args)
	return info, nil
}
