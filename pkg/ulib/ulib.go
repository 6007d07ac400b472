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

// Package ulib is the user-side system call library of simulated programs.
// It wraps the raw trap interface of sim.User with typed stubs and manages
// the scratch memory that buffer arguments are staged in.
package ulib

import (
	"fmt"
	"time"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/platform/sim"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// Handle is a handle value as seen by user code.
type Handle uint64

// Standard handles installed in the init task. Handle values carry the slot
// generation in the high word; the first handle in a slot has generation 1.
const (
	Stdin  Handle = 1<<32 | 0
	Stdout Handle = 1<<32 | 1
	Stderr Handle = 1<<32 | 2
)

// scratchMin is the smallest scratch region mapped.
const scratchMin = hostarch.PageSize

// Proc is one simulated thread's view of the kernel.
type Proc struct {
	u *sim.User

	// scratch is a private read-write region used to pass buffers.
	scratch    hostarch.Addr
	scratchLen uint64

	// control is the task control handle, acquired on first use.
	control Handle
}

// New returns a Proc for u.
func New(u *sim.User) *Proc {
	return &Proc{u: u}
}

// User returns the underlying machine.
func (p *Proc) User() *sim.User { return p.u }

func (p *Proc) syscall(no uint64, args ...uint64) (uint64, error) {
	return kerr.FromReturn(p.u.Syscall(no, args...))
}

// Args returns the argument bytes the task was spawned with. Only the first
// thread of a task has them.
func (p *Proc) Args() []byte {
	addr, n := p.u.EntryArg(0), p.u.EntryArg(1)
	if n == 0 {
		return nil
	}
	return p.u.Load(hostarch.Addr(addr), int(n))
}

// buffer returns a scratch address with room for n bytes.
func (p *Proc) buffer(n uint64) (hostarch.Addr, error) {
	if n <= p.scratchLen {
		return p.scratch, nil
	}
	size, ok := hostarch.PageRoundUp(max(n, scratchMin))
	if !ok {
		return 0, kerr.ErrInvalidArgument
	}
	addr, err := p.Map(0, size, karnal.PermRead|karnal.PermWrite, karnal.MapPrivate|karnal.MapAnonymous, 0)
	if err != nil {
		return 0, err
	}
	if p.scratchLen != 0 {
		p.Unmap(p.scratch, p.scratchLen)
	}
	p.scratch, p.scratchLen = addr, size
	return addr, nil
}

// stage copies data into scratch memory.
func (p *Proc) stage(data []byte) (hostarch.Addr, error) {
	if len(data) == 0 {
		return 0, nil
	}
	addr, err := p.buffer(uint64(len(data)))
	if err != nil {
		return 0, err
	}
	p.u.Store(addr, data)
	return addr, nil
}

// Acquire opens name with mode.
func (p *Proc) Acquire(name string, mode karnal.Mode) (Handle, error) {
	addr, err := p.stage([]byte(name))
	if err != nil {
		return 0, err
	}
	v, err := p.syscall(karnal.SysResourceAcquire, uint64(addr), uint64(len(name)), uint64(mode))
	return Handle(v), err
}

// Release closes h.
func (p *Proc) Release(h Handle) error {
	_, err := p.syscall(karnal.SysResourceRelease, uint64(h))
	return err
}

// Read reads up to n bytes from h at offset, which may be
// karnal.OffsetCursor.
func (p *Proc) Read(h Handle, n int, offset uint64) ([]byte, error) {
	var addr hostarch.Addr
	if n > 0 {
		var err error
		if addr, err = p.buffer(uint64(n)); err != nil {
			return nil, err
		}
	}
	v, err := p.syscall(karnal.SysResourceRead, uint64(h), uint64(addr), uint64(n), offset)
	if err != nil {
		return nil, err
	}
	return p.u.Load(addr, int(v)), nil
}

// Write writes data to h at offset, which may be karnal.OffsetCursor.
func (p *Proc) Write(h Handle, data []byte, offset uint64) (uint64, error) {
	addr, err := p.stage(data)
	if err != nil {
		return 0, err
	}
	return p.syscall(karnal.SysResourceWrite, uint64(h), uint64(addr), uint64(len(data)), offset)
}

// Control issues request on h.
func (p *Proc) Control(h Handle, request, arg uint64) (uint64, error) {
	return p.syscall(karnal.SysResourceControl, uint64(h), request, arg)
}

// Seek moves the cursor of h and returns the new position.
func (p *Proc) Seek(h Handle, whence karnal.SeekWhence, offset int64) (uint64, error) {
	return p.syscall(karnal.SysResourceSeek, uint64(h), uint64(whence), uint64(offset))
}

// Status returns the status record of h.
func (p *Proc) Status(h Handle) (karnal.ResourceStatus, error) {
	var st karnal.ResourceStatus
	addr, err := p.buffer(karnal.SizeofResourceStatus)
	if err != nil {
		return st, err
	}
	if _, err := p.syscall(karnal.SysResourceStatus, uint64(h), uint64(addr)); err != nil {
		return st, err
	}
	err = st.UnmarshalBytes(p.u.Load(addr, karnal.SizeofResourceStatus))
	return st, err
}

// Spawn starts a task from the image behind code and returns its ID.
func (p *Proc) Spawn(code Handle, args []byte) (uint64, error) {
	addr, err := p.stage(args)
	if err != nil {
		return 0, err
	}
	return p.syscall(karnal.SysTaskSpawn, uint64(code), uint64(addr), uint64(len(args)))
}

// Run acquires the image karnal://bin/<name> and spawns it.
func (p *Proc) Run(name string, args []byte) (uint64, error) {
	h, err := p.Acquire(resource.BinPrefix+name, karnal.ModeExecute)
	if err != nil {
		return 0, err
	}
	defer p.Release(h)
	return p.Spawn(h, args)
}

// Exit ends the task with code. It does not return.
func (p *Proc) Exit(code int32) {
	p.u.Syscall(karnal.SysTaskExit, uint64(int64(code)))
	panic("task_exit returned")
}

// ID returns the task ID.
func (p *Proc) ID() uint64 {
	v, _ := p.syscall(karnal.SysTaskID)
	return v
}

// Sleep sleeps for d.
func (p *Proc) Sleep(d time.Duration) error {
	_, err := p.syscall(karnal.SysTaskSleep, uint64(d.Nanoseconds()))
	return err
}

// Yield gives up the CPU.
func (p *Proc) Yield() {
	p.u.Syscall(karnal.SysTaskYield)
}

// Map creates a mapping. backing is 0 for anonymous mappings.
func (p *Proc) Map(addr hostarch.Addr, size uint64, perms karnal.Perms, flags karnal.MapFlags, backing Handle) (hostarch.Addr, error) {
	v, err := p.syscall(karnal.SysMemoryMap, uint64(addr), size, uint64(perms), uint64(flags), uint64(backing))
	return hostarch.Addr(v), err
}

// Unmap removes mappings in [addr, addr+size).
func (p *Proc) Unmap(addr hostarch.Addr, size uint64) error {
	_, err := p.syscall(karnal.SysMemoryUnmap, uint64(addr), size)
	return err
}

// Protect changes the permissions of [addr, addr+size).
func (p *Proc) Protect(addr hostarch.Addr, size uint64, perms karnal.Perms) error {
	_, err := p.syscall(karnal.SysMemoryProtect, uint64(addr), size, uint64(perms))
	return err
}

// Printf formats to standard output.
func (p *Proc) Printf(format string, v ...any) error {
	_, err := p.Write(Stdout, fmt.Appendf(nil, format, v...), karnal.OffsetCursor)
	return err
}

func (p *Proc) taskControl(request, arg uint64) (uint64, error) {
	if p.control == 0 {
		h, err := p.Acquire(resource.TaskSelfPrefix+"control", karnal.ModeRead|karnal.ModeWrite)
		if err != nil {
			return 0, err
		}
		p.control = h
	}
	return p.Control(p.control, request, arg)
}

// Wait waits for the task with the given ID to exit and returns its code.
func (p *Proc) Wait(task uint64) (int32, error) {
	v, err := p.taskControl(karnal.TaskControlWait, task)
	return int32(uint32(v)), err
}

// Signal interrupts the thread with the given ID.
func (p *Proc) Signal(thread uint64) error {
	_, err := p.taskControl(karnal.TaskControlSignal, thread)
	return err
}

// Parent returns the ID of the spawning task.
func (p *Proc) Parent() (uint64, error) {
	return p.taskControl(karnal.TaskControlParent, 0)
}

// NewThread starts a thread in this task running the registered program
// called name and returns its ID. The new thread's first entry argument is
// the creator's thread ID.
func (p *Proc) NewThread(name string) (uint64, error) {
	code := sim.Code(name)
	addr, err := p.Map(0, uint64(len(code)), karnal.PermRead|karnal.PermWrite|karnal.PermExecute, karnal.MapPrivate|karnal.MapAnonymous, 0)
	if err != nil {
		return 0, err
	}
	p.u.Store(addr, code)
	return p.taskControl(karnal.TaskControlThreadCreate, uint64(addr))
}
