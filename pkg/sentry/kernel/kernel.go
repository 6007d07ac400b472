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

// Package kernel provides an emulation of the Karnal64 kernel core: tasks
// and threads, handle tables, the scheduler and the system call dispatcher.
//
// Lock order:
//
//	resource.Registry.mu
//		HandleTable.mu
//			mm.MemoryManager.mu
//
//	Kernel.mu
//		Task.mu
//			Thread.mu
//
// No system call handler holds two locks of the first chain at once.
package kernel

import (
	"cmp"
	gocontext "context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/log"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/pgalloc"
	"karnal.dev/karnal64/pkg/sentry/platform"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// contextID is the kernel package's type for context.Context.Value keys.
type contextID int

const (
	// CtxKernel is a Context.Value key for a Kernel.
	CtxKernel contextID = iota

	// CtxThread is a Context.Value key for the current Thread.
	CtxThread
)

// KernelFromContext returns the Kernel in which ctx is executing, or nil if
// there is no such Kernel.
func KernelFromContext(ctx gocontext.Context) *Kernel {
	if v := ctx.Value(CtxKernel); v != nil {
		return v.(*Kernel)
	}
	return nil
}

// ThreadFromContext returns the Thread associated with ctx, or nil if ctx
// has no associated Thread.
func ThreadFromContext(ctx gocontext.Context) *Thread {
	if v := ctx.Value(CtxThread); v != nil {
		return v.(*Thread)
	}
	return nil
}

// DefaultQuantum is the time slice of a thread before it is preempted at its
// next trap.
const DefaultQuantum = 10 * time.Millisecond

// InitKernelArgs holds arguments to Init.
type InitKernelArgs struct {
	// Platform is the architecture port.
	Platform platform.Platform

	// Frames allocates physical memory. It must manage Platform.Memory().
	Frames *pgalloc.Allocator

	// Registry is the global resource namespace.
	Registry *resource.Registry

	// Scheduler picks threads to run. nil means a RoundRobin over CPUs.
	Scheduler Scheduler

	// CPUs is the number of CPU loops. Zero means one.
	CPUs int

	// Quantum is the time slice. Zero means DefaultQuantum.
	Quantum time.Duration

	// HandleTableSize and MaxHandles size new handle tables.
	HandleTableSize int
	MaxHandles      int

	// Syscalls is the system call table. nil selects the table registered
	// for the platform's architecture.
	Syscalls *SyscallTable
}

// Kernel represents an emulated Karnal64 kernel core.
type Kernel struct {
	// The fields below are immutable after Init.
	platform        platform.Platform
	frames          *pgalloc.Allocator
	registry        *resource.Registry
	sched           Scheduler
	syscalls        *SyscallTable
	quantum         time.Duration
	handleTableSize int
	maxHandles      int
	bootTime        time.Time

	// cpus holds one entry per CPU loop.
	cpus []*cpu

	// kick wakes idle CPU loops.
	kick chan struct{}

	lastTaskID   atomic.Uint64
	lastThreadID atomic.Uint64

	// liveThreads counts thread goroutines.
	liveThreads sync.WaitGroup

	// mu protects below.
	mu sync.Mutex

	// tasks holds every task ever spawned, so that exit codes can be
	// collected.
	tasks map[TaskID]*Task

	// threads holds the live threads.
	threads map[ThreadID]*Thread

	started bool
	cancel  gocontext.CancelFunc
	eg      *errgroup.Group
}

// Init initialize the Kernel with no tasks.
//
// Callers must call Start before any thread can run.
func (k *Kernel) Init(args InitKernelArgs) error {
	if args.Platform == nil {
		return fmt.Errorf("args.Platform is nil")
	}
	if args.Frames == nil {
		return fmt.Errorf("args.Frames is nil")
	}
	if args.Registry == nil {
		return fmt.Errorf("args.Registry is nil")
	}
	ncpus := max(args.CPUs, 1)
	k.platform = args.Platform
	k.frames = args.Frames
	k.registry = args.Registry
	k.sched = args.Scheduler
	if k.sched == nil {
		k.sched = NewRoundRobin(ncpus)
	}
	k.syscalls = args.Syscalls
	if k.syscalls == nil {
		s, ok := LookupSyscallTable(args.Platform.Arch())
		if !ok {
			return fmt.Errorf("no syscall table for architecture %v", args.Platform.Arch())
		}
		k.syscalls = s
	}
	k.quantum = args.Quantum
	if k.quantum <= 0 {
		k.quantum = DefaultQuantum
	}
	k.handleTableSize = args.HandleTableSize
	k.maxHandles = args.MaxHandles
	k.bootTime = time.Now()
	k.cpus = make([]*cpu, ncpus)
	for i := range k.cpus {
		k.cpus[i] = &cpu{id: i, released: make(chan struct{}, 1)}
	}
	k.kick = make(chan struct{}, ncpus)
	k.tasks = make(map[TaskID]*Task)
	k.threads = make(map[ThreadID]*Thread)
	return nil
}

// Platform returns the architecture port.
func (k *Kernel) Platform() platform.Platform { return k.platform }

// Frames returns the physical frame allocator.
func (k *Kernel) Frames() *pgalloc.Allocator { return k.frames }

// Registry returns the global resource registry.
func (k *Kernel) Registry() *resource.Registry { return k.registry }

// SyscallTable returns the system call table.
func (k *Kernel) SyscallTable() *SyscallTable { return k.syscalls }

// CPUs returns the number of CPUs.
func (k *Kernel) CPUs() int { return len(k.cpus) }

// Uptime returns the time since Init.
func (k *Kernel) Uptime() time.Duration { return time.Since(k.bootTime) }

// NewHandleTable returns an empty handle table sized by the kernel's
// configuration.
func (k *Kernel) NewHandleTable() *HandleTable {
	return NewHandleTable(k.handleTableSize, k.maxHandles)
}

// SupervisorContext returns a Context with the kernel in it, for work done
// outside of any thread.
func (k *Kernel) SupervisorContext() context.Context {
	return context.WithValue(context.Background(), CtxKernel, k)
}

// Start starts the CPU loops. Threads only run after Start.
func (k *Kernel) Start(ctx gocontext.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.started {
		return fmt.Errorf("kernel already started")
	}
	k.started = true
	ctx, k.cancel = gocontext.WithCancel(ctx)
	k.eg, ctx = errgroup.WithContext(ctx)
	for _, c := range k.cpus {
		k.eg.Go(func() error {
			k.runCPU(ctx, c)
			return nil
		})
	}
	log.Infof("Kernel started with %d CPUs", len(k.cpus))
	return nil
}

// Stop terminates every task, waits for all threads to exit and stops the
// CPU loops. Tasks still running are given the Interrupted exit code.
func (k *Kernel) Stop() error {
	k.mu.Lock()
	if !k.started {
		k.mu.Unlock()
		return fmt.Errorf("kernel not started")
	}
	k.mu.Unlock()

	for _, tk := range k.Tasks() {
		tk.Exit(int32(karnal.CodeInterrupted))
	}
	k.liveThreads.Wait()
	k.cancel()
	err := k.eg.Wait()
	log.Infof("Kernel stopped")
	return err
}

// Task returns the task with the given ID, or nil.
func (k *Kernel) Task(id TaskID) *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tasks[id]
}

// Thread returns the live thread with the given ID, or nil.
func (k *Kernel) Thread(id ThreadID) *Thread {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.threads[id]
}

// Tasks returns all tasks, including exited ones, in ID order.
func (k *Kernel) Tasks() []*Task {
	k.mu.Lock()
	tasks := make([]*Task, 0, len(k.tasks))
	for _, tk := range k.tasks {
		tasks = append(tasks, tk)
	}
	k.mu.Unlock()
	slices.SortFunc(tasks, func(a, b *Task) int { return cmp.Compare(a.id, b.id) })
	return tasks
}

// Acquire resolves name with mode on behalf of tk and installs a handle to
// it in tk's table. Names under karnal://task/self/ resolve in tk's private
// namespace.
func (k *Kernel) Acquire(ctx context.Context, tk *Task, name string, mode karnal.Mode) (Handle, error) {
	r := k.registry
	if strings.HasPrefix(name, resource.TaskSelfPrefix) {
		r = tk.self
	}
	e, err := r.Acquire(ctx, name, mode)
	if err != nil {
		return 0, err
	}
	h, err := tk.handles.Allocate(e, mode)
	if err != nil {
		e.Close()
		return 0, err
	}
	ctx.Debugf("Acquired %q mode %#x as %v", name, mode, h)
	return h, nil
}

// DuplicateHandle installs a copy of h from the table of tk into the table
// of the task with ID to, and returns the new handle.
func (k *Kernel) DuplicateHandle(tk *Task, h Handle, to TaskID) (Handle, error) {
	he, err := tk.handles.Get(h)
	if err != nil {
		return 0, err
	}
	target := k.Task(to)
	if target == nil || target.Exiting() {
		return 0, kerr.ErrNotFound
	}
	he.Cursor = 0
	he.Timeout = 0
	return target.handles.Install(he)
}

// Signal interrupts the thread with the given ID. A blocked thread's wait
// fails with Interrupted; otherwise the interrupt stays pending.
func (k *Kernel) Signal(id ThreadID) error {
	t := k.Thread(id)
	if t == nil {
		return kerr.ErrNotFound
	}
	t.Interrupt()
	return nil
}

// WaitTask waits for the task with the given ID to exit and returns its exit
// code. It is for callers outside of any thread; threads wait through the
// task control resource.
func (k *Kernel) WaitTask(ctx gocontext.Context, id TaskID) (int32, error) {
	tk := k.Task(id)
	if tk == nil {
		return 0, kerr.ErrNotFound
	}
	select {
	case <-tk.exited:
	case <-ctx.Done():
		return 0, kerr.Translate(ctx.Err())
	}
	code, _ := tk.ExitCode()
	return code, nil
}

// addThread publishes t.
func (k *Kernel) addThread(t *Thread) {
	k.mu.Lock()
	k.threads[t.id] = t
	k.mu.Unlock()
}

// removeThread unpublishes t.
func (k *Kernel) removeThread(t *Thread) {
	k.mu.Lock()
	delete(k.threads, t.id)
	k.mu.Unlock()
}
