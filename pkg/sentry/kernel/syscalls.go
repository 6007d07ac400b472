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
	"fmt"
	"sort"
	"sync"
	"time"

	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/log"
	"karnal.dev/karnal64/pkg/sentry/arch"
)

// SyscallFn is a system call implementation. It returns the success value
// or an error; the dispatcher encodes both for the return register.
type SyscallFn func(t *Thread, args arch.SyscallArguments) (uint64, error)

// PointerArg declares a user buffer argument of a system call. The
// dispatcher validates it against the caller's address space before the
// handler runs.
type PointerArg struct {
	// Ptr is the index of the argument holding the address.
	Ptr int

	// Len is the index of the argument holding the length, or -1 if the
	// length is fixed.
	Len int

	// Size is the fixed length when Len is -1.
	Size uint64

	// Access is the access the system call performs.
	Access hostarch.AccessType
}

// length returns the buffer length described by p in args.
func (p PointerArg) length(args arch.SyscallArguments) uint64 {
	if p.Len < 0 {
		return p.Size
	}
	return args[p.Len].SizeT()
}

// Syscall includes the syscall implementation and the metadata the
// dispatcher needs.
type Syscall struct {
	// Name is the syscall name.
	Name string

	// Fn is the implementation.
	Fn SyscallFn

	// Pointers are the buffers validated before Fn runs. Buffers of zero
	// length are not validated.
	Pointers []PointerArg
}

// SyscallTable is a system call table for one architecture.
type SyscallTable struct {
	// Arch is the architecture this table applies to.
	Arch arch.Arch

	// Table is the collection of functions.
	Table map[uint64]Syscall

	// unimplemented logs unknown system calls.
	unimplemented log.Logger
}

// allSyscallTables contains all known tables.
var (
	tablesMu         sync.Mutex
	allSyscallTables []*SyscallTable
)

// RegisterSyscallTable registers a new syscall table for use by a Kernel.
func RegisterSyscallTable(s *SyscallTable) {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	for _, t := range allSyscallTables {
		if t.Arch == s.Arch {
			panic(fmt.Sprintf("duplicate syscall table for %v", s.Arch))
		}
	}
	s.Init()
	allSyscallTables = append(allSyscallTables, s)
}

// LookupSyscallTable returns the syscall table registered for the architecture.
func LookupSyscallTable(a arch.Arch) (*SyscallTable, bool) {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	for _, s := range allSyscallTables {
		if s.Arch == a {
			return s, true
		}
	}
	return nil, false
}

// SyscallTables returns a read-only slice of registered SyscallTables.
func SyscallTables() []*SyscallTable {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	return append([]*SyscallTable(nil), allSyscallTables...)
}

// Init initializes the table's logger. Tables used without registration
// must call it before Dispatch.
func (s *SyscallTable) Init() {
	if s.unimplemented == nil {
		s.unimplemented = log.BasicRateLimitedLogger(time.Second)
	}
}

// Lookup returns the syscall implementation, if one exists.
func (s *SyscallTable) Lookup(no uint64) (Syscall, bool) {
	sc, ok := s.Table[no]
	if !ok || sc.Fn == nil {
		return Syscall{}, false
	}
	return sc, true
}

// Numbers returns the implemented system call numbers in ascending order.
func (s *SyscallTable) Numbers() []uint64 {
	nos := make([]uint64, 0, len(s.Table))
	for no, sc := range s.Table {
		if sc.Fn != nil {
			nos = append(nos, no)
		}
	}
	sort.Slice(nos, func(i, j int) bool { return nos[i] < nos[j] })
	return nos
}

// Call validates the declared buffers of system call no and invokes it.
// Unknown numbers fail with NotSupported.
func (s *SyscallTable) Call(t *Thread, no uint64, args arch.SyscallArguments) (uint64, error) {
	sc, ok := s.Lookup(no)
	if !ok {
		if s.unimplemented != nil {
			s.unimplemented.Warningf("%v: unimplemented system call %d", t, no)
		}
		return 0, kerr.ErrNotSupported
	}
	for _, p := range sc.Pointers {
		n := p.length(args)
		if n == 0 {
			continue
		}
		if err := t.MemoryManager().Validate(args[p.Ptr].Pointer(), n, p.Access); err != nil {
			return 0, err
		}
	}
	return sc.Fn(t, args)
}

// Dispatch handles the system call trap tf: it reads the number and
// arguments, calls the handler and stores the encoded result.
func (s *SyscallTable) Dispatch(t *Thread, tf arch.TrapFrame) {
	no := tf.SyscallNumber()
	args := arch.Arguments(tf)
	v, err := s.Call(t, no, args)
	if t.IsLogging(log.Debug) {
		name := "unknown"
		if sc, ok := s.Lookup(no); ok {
			name = sc.Name
		}
		t.Debugf("%s(%v, %v, %v, %v, %v) = %d, %v", name, args[0], args[1], args[2], args[3], args[4], v, err)
	}
	tf.SetReturn(kerr.ToReturn(v, err))
}
