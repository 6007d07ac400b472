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

// Package arch defines the boundary between the portable kernel and an
// architecture port: the saved user context of a thread and the trap frame
// presented on every entry into the kernel.
package arch

import (
	"fmt"

	"karnal.dev/karnal64/pkg/hostarch"
)

// Arch describes an architecture.
type Arch int

const (
	// Sim is the host simulation port.
	Sim Arch = iota
)

// String implements fmt.Stringer.
func (a Arch) String() string {
	switch a {
	case Sim:
		return "sim64"
	default:
		return fmt.Sprintf("Arch(%d)", a)
	}
}

// Context provides architecture-dependent information for a specific thread:
// its saved registers. The portable kernel never indexes registers directly;
// it only uses the accessors below.
type Context interface {
	// Arch returns the architecture for this Context.
	Arch() Arch

	// Fork creates a clone of the context.
	Fork() Context

	// IP returns the current instruction pointer.
	IP() hostarch.Addr

	// SetIP sets the current instruction pointer.
	SetIP(value hostarch.Addr)

	// Stack returns the current stack pointer.
	Stack() hostarch.Addr

	// SetStack sets the current stack pointer.
	SetStack(value hostarch.Addr)

	// Return returns the value of the result register.
	Return() int64

	// SetReturn sets the result register.
	SetReturn(value int64)

	// SetupEntry arranges for the context to begin executing at entry
	// with the given stack and entry arguments.
	SetupEntry(entry, stack hostarch.Addr, args ...uint64)

	// EntryArg returns entry argument i.
	EntryArg(i int) uint64

	// StateData returns the opaque saved state. Its length is the port's
	// context size.
	StateData() []byte
}
