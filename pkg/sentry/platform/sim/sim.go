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

// Package sim is a host simulation port of the Karnal64 kernel.
//
// Physical memory is a host byte slice, page tables live in a software MMU
// with a TLB, and user programs are Go functions that run on their own
// goroutines and interact with the machine only through User: loads and
// stores are translated by the MMU and fault into the kernel, and system
// calls trap with a populated TrapFrame. Exactly one of the kernel side and
// the user side of a thread runs at a time.
package sim

import (
	"fmt"

	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/arch"
	"karnal.dev/karnal64/pkg/sentry/platform"
)

// DefaultMemorySize is the physical memory of a platform created with a zero
// MemorySize.
const DefaultMemorySize = 64 << 20

// Options configure a Platform.
type Options struct {
	// MemorySize is the size of physical memory in bytes, rounded down to
	// a whole number of pages.
	MemorySize uint64

	// CPUs is the number of CPUs. Zero means one.
	CPUs int
}

// Platform implements platform.Platform.
type Platform struct {
	mem *memory
	mmu *MMU
}

var _ platform.Platform = (*Platform)(nil)

// New creates a simulated machine.
func New(opts Options) (*Platform, error) {
	size := opts.MemorySize
	if size == 0 {
		size = DefaultMemorySize
	}
	size = hostarch.PageRoundDown(size)
	if size == 0 {
		return nil, fmt.Errorf("memory size %d is smaller than a page", opts.MemorySize)
	}
	cpus := opts.CPUs
	if cpus <= 0 {
		cpus = 1
	}
	return &Platform{
		mem: newMemory(size),
		mmu: newMMU(cpus),
	}, nil
}

// Name implements platform.Platform.Name.
func (*Platform) Name() string { return "sim" }

// Arch implements platform.Platform.Arch.
func (*Platform) Arch() arch.Arch { return arch.Sim }

// MMU implements platform.Platform.MMU.
func (p *Platform) MMU() platform.MMU { return p.mmu }

// Memory implements platform.Platform.Memory.
func (p *Platform) Memory() platform.Memory { return p.mem }

// NewArchContext implements platform.Platform.NewArchContext.
func (*Platform) NewArchContext() arch.Context { return &archContext{} }

// NewContext implements platform.Platform.NewContext.
func (p *Platform) NewContext() platform.Context {
	return &execContext{
		p:        p,
		toUser:   make(chan bool),
		toKernel: make(chan *trapFrame),
	}
}

// SimMMU returns the concrete MMU, for inspection in tests.
func (p *Platform) SimMMU() *MMU { return p.mmu }
