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

// Package kerneltest provides utilities for testing the kernel on the
// simulation platform.
package kerneltest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"karnal.dev/karnal64/pkg/sentry/kernel"
	"karnal.dev/karnal64/pkg/sentry/loader"
	"karnal.dev/karnal64/pkg/sentry/pgalloc"
	"karnal.dev/karnal64/pkg/sentry/platform/sim"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// ExitTimeout bounds how long helpers wait for a task.
const ExitTimeout = 30 * time.Second

// Options configure a test kernel.
type Options struct {
	CPUs            int
	MemorySize      uint64
	Quantum         time.Duration
	HandleTableSize int
	MaxHandles      int

	// Syscalls overrides the registered table.
	Syscalls *kernel.SyscallTable
}

// New returns a started kernel on a fresh simulated machine. It is stopped
// when the test ends.
func New(tb testing.TB, opts Options) *kernel.Kernel {
	tb.Helper()
	p, err := sim.New(sim.Options{MemorySize: opts.MemorySize, CPUs: opts.CPUs})
	if err != nil {
		tb.Fatalf("sim.New: %v", err)
	}
	frames, err := pgalloc.New(p.Memory())
	if err != nil {
		tb.Fatalf("pgalloc.New: %v", err)
	}
	if opts.Syscalls != nil {
		opts.Syscalls.Init()
	}
	k := &kernel.Kernel{}
	if err := k.Init(kernel.InitKernelArgs{
		Platform:        p,
		Frames:          frames,
		Registry:        resource.NewRegistry(),
		CPUs:            opts.CPUs,
		Quantum:         opts.Quantum,
		HandleTableSize: opts.HandleTableSize,
		MaxHandles:      opts.MaxHandles,
		Syscalls:        opts.Syscalls,
	}); err != nil {
		tb.Fatalf("Init: %v", err)
	}
	if err := k.Start(context.Background()); err != nil {
		tb.Fatalf("Start: %v", err)
	}
	tb.Cleanup(func() {
		if err := k.Stop(); err != nil {
			tb.Errorf("Stop: %v", err)
		}
	})
	return k
}

var programSeq atomic.Uint64

// Program makes prog available as the executable image karnal://bin/<name>
// in k's registry and returns that resource name.
func Program(tb testing.TB, k *kernel.Kernel, name string, prog sim.Program) string {
	tb.Helper()
	simName := fmt.Sprintf("%s/%s#%d", tb.Name(), name, programSeq.Add(1))
	sim.RegisterProgram(simName, prog)
	img := loader.BuildImage(sim.Code(simName), 0)
	if err := loader.RegisterImage(k.Registry(), name, img); err != nil {
		tb.Fatalf("RegisterImage(%q): %v", name, err)
	}
	return resource.BinPrefix + name
}

// Spawn starts the image registered under name as a task with no parent.
func Spawn(tb testing.TB, k *kernel.Kernel, name string, args []byte) *kernel.Task {
	tb.Helper()
	ctx := k.SupervisorContext()
	e, err := k.Registry().Lookup(resource.BinPrefix + name)
	if err != nil {
		tb.Fatalf("Lookup(%q): %v", name, err)
	}
	tk, err := k.Spawn(ctx, kernel.SpawnArgs{Name: name, Image: e.Provider(), Args: args})
	if err != nil {
		tb.Fatalf("Spawn(%q): %v", name, err)
	}
	return tk
}

// WaitExit waits for tk to exit and returns its exit code.
func WaitExit(tb testing.TB, k *kernel.Kernel, tk *kernel.Task) int32 {
	tb.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), ExitTimeout)
	defer cancel()
	code, err := k.WaitTask(ctx, tk.ID())
	if err != nil {
		tb.Fatalf("%v did not exit: %v", tk, err)
	}
	return code
}

// Run spawns the image registered under name and waits for it to exit.
func Run(tb testing.TB, k *kernel.Kernel, name string, args []byte) int32 {
	tb.Helper()
	return WaitExit(tb, k, Spawn(tb, k, name, args))
}
