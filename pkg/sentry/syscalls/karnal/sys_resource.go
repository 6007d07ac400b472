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

package karnal

import (
	"errors"
	"math"
	"time"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/sentry/arch"
	"karnal.dev/karnal64/pkg/sentry/kernel"
	"karnal.dev/karnal64/pkg/sentry/resource"
	"karnal.dev/karnal64/pkg/waiter"
)

// maxRWCount is the largest transfer a single read or write performs.
// Longer requests are short.
const maxRWCount = 1 << 20

const (
	// EventMaskRead contains the events readers wait for.
	EventMaskRead = waiter.EventIn | waiter.EventHUp

	// EventMaskWrite contains the events writers wait for.
	EventMaskWrite = waiter.EventOut | waiter.EventHUp
)

// wait runs op on behalf of the holder of he, blocking as the handle's mode
// and timeout allow while op reports that it would block.
func wait(t *kernel.Thread, he kernel.HandleEntry, mask waiter.EventMask, op func() (uint64, error)) (uint64, error) {
	w, _ := he.Provider.(waiter.Waitable)
	return t.Wait(w, mask, he.Mode.Has(karnal.ModeNonblock), he.Timeout, op)
}

// Acquire implements resource_acquire.
func Acquire(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
	addr := args[0].Pointer()
	size := args[1].SizeT()
	mode := args[2].Uint64()

	if size == 0 || size > resource.MaxNameLength {
		return 0, kerr.ErrInvalidArgument
	}
	if mode > math.MaxUint32 {
		return 0, kerr.ErrInvalidArgument
	}
	name := make([]byte, size)
	if _, err := t.CopyInBytes(addr, name); err != nil {
		return 0, err
	}
	h, err := t.Kernel().Acquire(t, t.Task(), string(name), karnal.Mode(mode))
	if err != nil {
		return 0, err
	}
	return uint64(h), nil
}

// Release implements resource_release.
func Release(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
	h := kernel.Handle(args[0].Uint64())
	return 0, t.Task().Handles().Release(h)
}

// Read implements resource_read.
func Read(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
	h := kernel.Handle(args[0].Uint64())
	addr := args[1].Pointer()
	size := args[2].SizeT()
	offset := args[3].Uint64()

	he, err := t.Task().Handles().Get(h)
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, nil
	}
	if !he.Mode.Has(karnal.ModeRead) {
		return 0, kerr.ErrPermissionDenied
	}

	cursor := offset == karnal.OffsetCursor
	if cursor {
		offset = he.Cursor
	}
	buf := make([]byte, min(size, maxRWCount))
	n, err := wait(t, he, EventMaskRead, func() (uint64, error) {
		return he.Provider.Read(t, buf, offset)
	})
	if err != nil {
		return 0, err
	}

	// The data is consumed; report what reached user memory.
	c, err := t.CopyOutBytes(addr, buf[:n])
	if err != nil && (c == 0 || errors.Is(err, kerr.ErrOutOfMemory)) {
		return 0, err
	}
	if cursor {
		t.Task().Handles().AdvanceCursor(h, offset, uint64(c))
	}
	return uint64(c), nil
}

// Write implements resource_write.
func Write(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
	h := kernel.Handle(args[0].Uint64())
	addr := args[1].Pointer()
	size := args[2].SizeT()
	offset := args[3].Uint64()

	he, err := t.Task().Handles().Get(h)
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, nil
	}
	if !he.Mode.Has(karnal.ModeWrite) {
		return 0, kerr.ErrPermissionDenied
	}

	buf := make([]byte, min(size, maxRWCount))
	if _, err := t.CopyInBytes(addr, buf); err != nil {
		return 0, err
	}
	cursor := offset == karnal.OffsetCursor
	if cursor {
		offset = he.Cursor
	}
	n, err := wait(t, he, EventMaskWrite, func() (uint64, error) {
		return he.Provider.Write(t, buf, offset)
	})
	if err != nil {
		return 0, err
	}
	if cursor {
		t.Task().Handles().AdvanceCursor(h, offset, n)
	}
	return n, nil
}

// Control implements resource_control. Requests at or above
// karnal.ControlGlobalBase act on the handle and are answered here; all
// others go to the provider.
func Control(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
	h := kernel.Handle(args[0].Uint64())
	request := args[1].Uint64()
	arg := args[2].Uint64()

	he, err := t.Task().Handles().Get(h)
	if err != nil {
		return 0, err
	}
	if request >= karnal.ControlGlobalBase {
		return globalControl(t, h, he, request, arg)
	}
	return wait(t, he, EventMaskRead, func() (uint64, error) {
		return he.Provider.Control(t, request, arg)
	})
}

func globalControl(t *kernel.Thread, h kernel.Handle, he kernel.HandleEntry, request, arg uint64) (uint64, error) {
	switch request {
	case karnal.CtrlQueryModes:
		return uint64(he.Mode), nil

	case karnal.CtrlDuplicate:
		dup, err := t.Kernel().DuplicateHandle(t.Task(), h, kernel.TaskID(arg))
		if err != nil {
			return 0, err
		}
		return uint64(dup), nil

	case karnal.CtrlSetTimeout:
		if arg > math.MaxInt64 {
			return 0, kerr.ErrInvalidArgument
		}
		return 0, t.Task().Handles().SetTimeout(h, time.Duration(arg))

	default:
		return 0, kerr.ErrNotSupported
	}
}

// Seek implements resource_seek.
func Seek(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
	h := kernel.Handle(args[0].Uint64())
	whence := args[1].Uint64()
	offset := args[2].Int64()

	he, err := t.Task().Handles().Get(h)
	if err != nil {
		return 0, err
	}
	if whence > math.MaxUint32 {
		return 0, kerr.ErrInvalidArgument
	}
	pos, err := he.Provider.Seek(t, he.Cursor, karnal.SeekWhence(whence), offset)
	if err != nil {
		return 0, err
	}
	if err := t.Task().Handles().SetCursor(h, pos); err != nil {
		return 0, err
	}
	return pos, nil
}

// Status implements resource_status.
func Status(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
	h := kernel.Handle(args[0].Uint64())
	addr := args[1].Pointer()

	he, err := t.Task().Handles().Get(h)
	if err != nil {
		return 0, err
	}
	st := he.Provider.Status(t).ABI()
	buf := make([]byte, karnal.SizeofResourceStatus)
	st.MarshalBytes(buf)
	if _, err := t.CopyOutBytes(addr, buf); err != nil {
		return 0, err
	}
	return 0, nil
}
