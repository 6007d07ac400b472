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

// Package boot brings up a kernel: it builds the machine, the kernel core
// and the resource namespace in a fixed order of stages and then runs the
// init task.
package boot

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mohae/deepcopy"
	"karnal.dev/karnal64/karnal/config"
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/log"
	"karnal.dev/karnal64/pkg/sentry/devices/memdev"
	"karnal.dev/karnal64/pkg/sentry/devices/ramdisk"
	"karnal.dev/karnal64/pkg/sentry/devices/sysdev"
	"karnal.dev/karnal64/pkg/sentry/devices/ttydev"
	"karnal.dev/karnal64/pkg/sentry/kernel"
	"karnal.dev/karnal64/pkg/sentry/kernel/ksync"
	"karnal.dev/karnal64/pkg/sentry/kernel/msgqueue"
	"karnal.dev/karnal64/pkg/sentry/mm"
	"karnal.dev/karnal64/pkg/sentry/pgalloc"
	"karnal.dev/karnal64/pkg/sentry/platform"
	"karnal.dev/karnal64/pkg/sentry/platform/sim"
	"karnal.dev/karnal64/pkg/sentry/resource"

	// Register the system call table.
	_ "karnal.dev/karnal64/pkg/sentry/syscalls/karnal"
)

// Stage names a step of boot.
type Stage string

// Boot stages, in the order they run.
const (
	StageErrors   Stage = "errors"
	StageMemory   Stage = "memory"
	StageRegistry Stage = "registry"
	StageHandles  Stage = "handles"
	StageTasks    Stage = "tasks"
	StageSyscalls Stage = "syscalls"
	StageDevices  Stage = "devices"
	StageSystem   Stage = "system"

	// StageInit and later stages are reached by Run.
	StageInit    Stage = "init"
	StageRunning Stage = "running"
	StageExited  Stage = "exited"
)

// Error is a boot failure.
type Error struct {
	Stage  Stage
	Reason error
}

// Error implements error.Error.
func (e *Error) Error() string {
	return fmt.Sprintf("boot failed at stage %q: %v", e.Stage, e.Reason)
}

// Unwrap returns the reason.
func (e *Error) Unwrap() error { return e.Reason }

// Option customizes a Loader.
type Option func(*Loader)

// WithConsole makes c the console device instead of a host console built
// from the configuration.
func WithConsole(c *ttydev.Console) Option {
	return func(l *Loader) { l.console = c }
}

// Loader keeps state needed to start the kernel and run init.
type Loader struct {
	// conf is a private snapshot of the configuration.
	conf *config.Config

	platform platform.Platform
	frames   *pgalloc.Allocator
	registry *resource.Registry
	k        *kernel.Kernel
	console  *ttydev.Console

	// mu protects the fields below.
	mu      sync.Mutex
	record  Record
	init    *kernel.Task
	started bool
}

type stage struct {
	name Stage
	fn   func(*Loader) error
}

// stages lists the boot stages in order.
var stages = []stage{
	{StageErrors, (*Loader).checkErrors},
	{StageMemory, (*Loader).createMemory},
	{StageRegistry, (*Loader).createRegistry},
	{StageHandles, (*Loader).checkHandleLimits},
	{StageTasks, (*Loader).createKernel},
	{StageSyscalls, (*Loader).checkSyscalls},
	{StageDevices, (*Loader).registerDevices},
	{StageSystem, (*Loader).registerSystem},
}

// New boots a kernel configured by conf on p. If p is nil, a simulated
// machine is built from the configuration. The kernel does not run any task
// until Run is called.
func New(conf *config.Config, p platform.Platform, opts ...Option) (*Loader, error) {
	l := &Loader{
		conf:     deepcopy.Copy(conf).(*config.Config),
		platform: p,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.record = Record{
		PID:     os.Getpid(),
		Started: time.Now(),
		Flags:   l.conf.ToFlags(),
	}
	for _, s := range stages {
		l.record.Stage = s.name
		log.Debugf("Boot stage %q", s.name)
		if err := s.fn(l); err != nil {
			return nil, l.fail(s.name, err)
		}
	}
	if err := l.save(); err != nil {
		return nil, l.fail(StageSystem, err)
	}
	log.Infof("Boot complete: %d resources registered", len(l.registry.Names()))
	return l, nil
}

// fail records a boot error.
func (l *Loader) fail(s Stage, reason error) *Error {
	e := &Error{Stage: s, Reason: reason}
	log.Warningf("%v", e)
	l.mu.Lock()
	l.record.Stage = s
	l.record.Error = e.Error()
	l.mu.Unlock()
	if err := l.save(); err != nil {
		log.Warningf("Failed to save boot record: %v", err)
	}
	return e
}

func (l *Loader) save() error {
	l.mu.Lock()
	r := l.record
	l.mu.Unlock()
	return saveRecord(l.conf.RootDir, &r)
}

// checkErrors verifies that every error code round-trips through the
// return register encoding.
func (l *Loader) checkErrors() error {
	seen := make(map[karnal.Code]bool)
	for _, e := range kerr.All() {
		c := e.Code()
		if c >= 0 || seen[c] {
			return fmt.Errorf("error %q has invalid or duplicate code %d", e, c)
		}
		seen[c] = true
		if _, err := kerr.FromReturn(kerr.ToReturn(0, e)); err != e {
			return fmt.Errorf("error %q does not round-trip, got %v", e, err)
		}
	}
	return nil
}

func (l *Loader) createMemory() error {
	if l.platform == nil {
		p, err := sim.New(sim.Options{MemorySize: l.conf.MemorySize, CPUs: l.conf.CPUs})
		if err != nil {
			return fmt.Errorf("creating platform: %w", err)
		}
		l.platform = p
	}
	log.Infof("Platform: %s (%v)", l.platform.Name(), l.platform.Arch())
	frames, err := pgalloc.New(l.platform.Memory())
	if err != nil {
		return fmt.Errorf("creating frame allocator: %w", err)
	}
	l.frames = frames
	return nil
}

func (l *Loader) createRegistry() error {
	l.registry = resource.NewRegistry()
	return nil
}

func (l *Loader) checkHandleLimits() error {
	if l.conf.MaxHandles <= 0 || l.conf.HandleTableSize <= 0 || l.conf.HandleTableSize > l.conf.MaxHandles {
		return fmt.Errorf("invalid handle limits: table size %d, max %d", l.conf.HandleTableSize, l.conf.MaxHandles)
	}
	return nil
}

func (l *Loader) createKernel() error {
	k := &kernel.Kernel{}
	if err := k.Init(kernel.InitKernelArgs{
		Platform:        l.platform,
		Frames:          l.frames,
		Registry:        l.registry,
		Scheduler:       kernel.NewRoundRobin(l.conf.CPUs),
		CPUs:            l.conf.CPUs,
		Quantum:         l.conf.Quantum,
		HandleTableSize: l.conf.HandleTableSize,
		MaxHandles:      l.conf.MaxHandles,
	}); err != nil {
		return fmt.Errorf("initializing kernel: %w", err)
	}
	l.k = k
	return nil
}

func (l *Loader) checkSyscalls() error {
	t := l.k.SyscallTable()
	for no := uint64(karnal.SysResourceAcquire); no <= karnal.SysMemoryProtect; no++ {
		if _, ok := t.Lookup(no); !ok {
			return fmt.Errorf("system call %d has no handler", no)
		}
	}
	return nil
}

// registerDevices registers the console first so that a broken console
// fails boot before anything else is visible.
func (l *Loader) registerDevices() error {
	if l.console == nil {
		in, out := 0, 1
		if fd := l.conf.ConsoleFD; fd >= 0 {
			in, out = fd, fd
		}
		l.console = ttydev.NewHostConsole(in, out)
	}
	if err := ttydev.Register(l.registry, l.console); err != nil {
		return fmt.Errorf("registering console: %w", err)
	}
	if err := memdev.Register(l.registry); err != nil {
		return fmt.Errorf("registering memory devices: %w", err)
	}
	if err := ramdisk.Register(l.registry, l.conf.Ramdisks, l.conf.RamdiskSize); err != nil {
		return fmt.Errorf("registering ramdisks: %w", err)
	}
	return nil
}

func (l *Loader) registerSystem() error {
	if err := sysdev.Register(l.registry, l.frames, l.k); err != nil {
		return fmt.Errorf("registering system providers: %w", err)
	}
	if err := l.registry.RegisterFactory(mm.SharedMemoryPrefix, mm.SharedMemoryFactory(l.frames)); err != nil {
		return fmt.Errorf("registering shared memory: %w", err)
	}
	if err := ksync.Register(l.registry); err != nil {
		return fmt.Errorf("registering synchronization objects: %w", err)
	}
	if err := msgqueue.Register(l.registry, l.conf.ChannelCapacity); err != nil {
		return fmt.Errorf("registering channels: %w", err)
	}
	if err := registerImages(l.registry); err != nil {
		return fmt.Errorf("registering images: %w", err)
	}
	return nil
}

// Kernel returns the booted kernel.
func (l *Loader) Kernel() *kernel.Kernel { return l.k }

// Registry returns the resource namespace.
func (l *Loader) Registry() *resource.Registry { return l.registry }

// Run starts the CPUs and the init task.
func (l *Loader) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return fmt.Errorf("kernel already running")
	}
	l.started = true
	l.mu.Unlock()

	if err := l.k.Start(ctx); err != nil {
		return l.fail(StageInit, err)
	}
	tk, err := l.k.CreateInit(l.k.SupervisorContext(), kernel.CreateInitArgs{
		Name:    l.conf.Init,
		Args:    []byte(l.conf.InitArgs),
		Console: ttydev.ConsoleName,
	})
	if err != nil {
		return l.fail(StageInit, fmt.Errorf("creating init task %q: %w", l.conf.Init, err))
	}
	l.mu.Lock()
	l.init = tk
	l.record.Stage = StageRunning
	l.mu.Unlock()
	if err := l.save(); err != nil {
		log.Warningf("Failed to save boot record: %v", err)
	}
	log.Infof("Init task %v running", tk)
	return nil
}

// WaitExit waits for the init task to exit and returns its exit code.
func (l *Loader) WaitExit(ctx context.Context) (int32, error) {
	l.mu.Lock()
	tk := l.init
	l.mu.Unlock()
	if tk == nil {
		return 0, fmt.Errorf("init task not running")
	}
	code, err := l.k.WaitTask(ctx, tk.ID())
	if err != nil {
		return 0, err
	}
	l.mu.Lock()
	l.record.Stage = StageExited
	l.record.ExitCode = &code
	l.mu.Unlock()
	if err := l.save(); err != nil {
		log.Warningf("Failed to save boot record: %v", err)
	}
	return code, nil
}

// Destroy stops the kernel. Tasks still running are interrupted.
func (l *Loader) Destroy() error {
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if !started {
		return nil
	}
	return l.k.Stop()
}
