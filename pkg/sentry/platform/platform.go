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

// Package platform provides a Platform abstraction: the architecture port the
// portable kernel runs on.
//
// See Platform for more information.
package platform

import (
	"context"
	"fmt"

	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/arch"
)

// Platform provides abstractions for execution contexts (Context), the
// memory management unit (MMU) and physical memory.
type Platform interface {
	// Name returns the port's name.
	Name() string

	// Arch returns the architecture of contexts created by this platform.
	Arch() arch.Arch

	// MMU returns the memory management unit.
	MMU() MMU

	// Memory returns physical memory.
	Memory() Memory

	// NewArchContext returns a fresh saved user context.
	NewArchContext() arch.Context

	// NewContext returns a new execution context for one thread.
	NewContext() Context
}

// ASID identifies an address space to the MMU.
type ASID uint64

// PhysAddr is a physical address.
type PhysAddr uint64

// MMU is the memory management unit collaborator of the memory manager.
//
// The memory manager calls MapPage, UnmapPage and InvalidateTLB with its
// address-space lock held. TLB shootdown across CPUs is the MMU's
// responsibility.
type MMU interface {
	// NewAddressSpace creates an empty page table.
	NewAddressSpace() (ASID, error)

	// ReleaseAddressSpace destroys a page table. The ASID must not be
	// active on any CPU.
	ReleaseAddressSpace(as ASID)

	// Activate makes as current on cpu.
	Activate(cpu int, as ASID)

	// MapPage maps the page at vaddr to the frame at paddr with the given
	// permissions, replacing any existing mapping.
	//
	// Preconditions: vaddr and paddr are page-aligned.
	MapPage(as ASID, vaddr hostarch.Addr, paddr PhysAddr, at hostarch.AccessType) error

	// UnmapPage removes the mapping of the page at vaddr, if any.
	UnmapPage(as ASID, vaddr hostarch.Addr)

	// InvalidateTLB drops cached translations for the page at *vaddr, or
	// for the whole address space if vaddr is nil.
	InvalidateTLB(as ASID, vaddr *hostarch.Addr)
}

// Memory is physical memory.
type Memory interface {
	// Size returns the number of bytes of physical memory.
	Size() uint64

	// Slice returns the kernel's view of [pa, pa+length).
	//
	// Preconditions: the range lies within a single page.
	Slice(pa PhysAddr, length uint64) []byte
}

// Context represents the execution context for a single thread.
type Context interface {
	// Switch resumes execution of the thread specified by the arch.Context
	// in the provided address space on cpu. This call blocks while the
	// thread executes in user mode and returns at its next trap.
	//
	// For system call traps the returned frame's SetReturn writes the
	// result register of ac.
	Switch(ctx context.Context, cpu int, as ASID, ac arch.Context) (arch.TrapFrame, error)

	// Release discards the context. The thread never returns to user mode
	// afterwards.
	Release()
}

var (
	// ErrContextReleased is returned by Context.Switch() after Release.
	ErrContextReleased = fmt.Errorf("context released")
)
