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

package kernel

import (
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/cleanup"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/loader"
	"karnal.dev/karnal64/pkg/sentry/mm"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// SpawnArgs holds arguments to Kernel.Spawn.
type SpawnArgs struct {
	// Parent is the spawning task, or nil.
	Parent *Task

	// Name names the task in logs.
	Name string

	// Image is the executable image.
	Image resource.Provider

	// Args is copied into the new task's address space.
	Args []byte

	// Handles is the new task's handle table. If nil, the parent's table
	// is forked, or an empty table is created if there is no parent.
	// Spawn takes ownership of Handles even if it fails.
	Handles *HandleTable
}

// Spawn creates a task from an executable image and makes its first thread
// runnable. The thread starts at the image's entry point with the address
// and length of the argument bytes as its entry arguments.
func (k *Kernel) Spawn(ctx context.Context, args SpawnArgs) (*Task, error) {
	handles := args.Handles
	switch {
	case handles != nil:
	case args.Parent != nil:
		handles = args.Parent.handles.Fork()
	default:
		handles = k.NewHandleTable()
	}
	cu := cleanup.Make(handles.FlushAll)
	defer cu.Clean()

	if args.Image == nil {
		return nil, kerr.ErrInvalidArgument
	}
	m, err := mm.New(k.frames, k.platform.MMU())
	if err != nil {
		return nil, err
	}
	cu.Add(func() { m.Release(ctx) })

	info, err := loader.Load(ctx, m, args.Image, args.Args)
	if err != nil {
		return nil, err
	}

	tk := &Task{
		k:       k,
		id:      TaskID(k.lastTaskID.Add(1)),
		name:    args.Name,
		mm:      m,
		handles: handles,
		self:    resource.NewRegistry(),
		image:   info,
		threads: make(map[ThreadID]*Thread),
		exited:  make(chan struct{}),
	}
	if args.Parent != nil {
		tk.parent = args.Parent.id
	}
	if _, err := tk.self.Register(TaskControlName, &taskControl{tk: tk}, karnal.ModeRead|karnal.ModeWrite); err != nil {
		return nil, err
	}

	t, err := k.newThread(tk, info.Entry, info.Stack.End, uint64(info.Args.Start), info.ArgsLen)
	if err != nil {
		return nil, err
	}
	cu.Release()

	k.mu.Lock()
	k.tasks[tk.id] = tk
	k.mu.Unlock()
	t.start()
	ctx.Infof("Spawned %v with parent %d, entry %v", tk, tk.parent, info.Entry)
	return tk, nil
}

// CreateInitArgs holds arguments to CreateInit.
type CreateInitArgs struct {
	// Name is the image name under karnal://bin/.
	Name string

	// Args is passed to the init task.
	Args []byte

	// Console is the resource behind the standard handles. If empty, init
	// starts with no handles.
	Console string
}

// CreateInit spawns the first task. Its handles 0, 1 and 2 name the
// console: handle 0 is readable (or writable if the console cannot be read)
// and handles 1 and 2 are writable.
func (k *Kernel) CreateInit(ctx context.Context, args CreateInitArgs) (*Task, error) {
	img, err := k.registry.Acquire(ctx, resource.BinPrefix+args.Name, karnal.ModeExecute)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	handles := k.NewHandleTable()
	if args.Console != "" {
		if err := k.installStandardHandles(ctx, handles, args.Console); err != nil {
			handles.FlushAll()
			return nil, err
		}
	}
	return k.Spawn(ctx, SpawnArgs{
		Name:    args.Name,
		Image:   img.Provider(),
		Args:    args.Args,
		Handles: handles,
	})
}

func (k *Kernel) installStandardHandles(ctx context.Context, handles *HandleTable, console string) error {
	for _, mode := range []karnal.Mode{karnal.ModeRead, karnal.ModeWrite, karnal.ModeWrite} {
		e, err := k.registry.Acquire(ctx, console, mode)
		if err == kerr.ErrPermissionDenied && mode == karnal.ModeRead {
			mode = karnal.ModeWrite
			e, err = k.registry.Acquire(ctx, console, mode)
		}
		if err != nil {
			return err
		}
		if _, err := handles.Allocate(e, mode); err != nil {
			e.Close()
			return err
		}
	}
	return nil
}

// newThread creates a thread in tk that starts at entry with the given stack
// pointer and entry arguments. The thread is Ready but not started.
func (k *Kernel) newThread(tk *Task, entry, stack hostarch.Addr, args ...uint64) (*Thread, error) {
	kstack, err := k.frames.AllocateN(KernelStackSize / hostarch.PageSize)
	if err != nil {
		return nil, err
	}
	ac := k.platform.NewArchContext()
	ac.SetupEntry(entry, stack, args...)
	t := &Thread{
		k:         k,
		tk:        tk,
		id:        ThreadID(k.lastThreadID.Add(1)),
		ac:        ac,
		pc:        k.platform.NewContext(),
		kstack:    kstack,
		state:     ThreadReady,
		grant:     make(chan int, 1),
		cpu:       -1,
		lastCPU:   -1,
		interrupt: make(chan struct{}, 1),
		killed:    make(chan struct{}),
	}

	tk.mu.Lock()
	if tk.exiting {
		tk.mu.Unlock()
		for _, pa := range kstack {
			k.frames.Free(pa)
		}
		return nil, kerr.ErrInterrupted
	}
	tk.threads[t.id] = t
	tk.mu.Unlock()
	k.addThread(t)
	return t, nil
}

// NewThread starts a thread in tk at entry, with a fresh stack and arg as
// its first entry argument, and returns its ID.
func (tk *Task) NewThread(ctx context.Context, entry hostarch.Addr, arg uint64) (ThreadID, error) {
	if !entry.IsUser() {
		return 0, kerr.ErrBadAddress
	}
	stack, err := tk.mm.Allocate(ctx, loader.DefaultStackSize, hostarch.ReadWrite)
	if err != nil {
		return 0, err
	}
	t, err := tk.k.newThread(tk, entry, stack+loader.DefaultStackSize, arg)
	if err != nil {
		tk.mm.Free(ctx, stack, loader.DefaultStackSize)
		return 0, err
	}
	t.start()
	ctx.Debugf("Started thread %d at %v", t.id, entry)
	return t.id, nil
}
