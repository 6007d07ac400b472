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

package arch

import (
	"fmt"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/hostarch"
)

// SyscallArgument is an argument supplied to a syscall implementation. The
// methods used to access the arguments are named after the ***C type name***
// and they convert to the closest Go type available.
type SyscallArgument struct {
	// Prefer to use accessor methods instead of 'Value' directly.
	Value uint64
}

// SyscallArguments represents the set of arguments passed to a syscall.
type SyscallArguments [karnal.MaxSyscallArgs]SyscallArgument

// Pointer returns the hostarch.Addr representation of a pointer argument.
func (a SyscallArgument) Pointer() hostarch.Addr {
	return hostarch.Addr(a.Value)
}

// Int64 returns the int64 representation of a 64-bit signed integer argument.
func (a SyscallArgument) Int64() int64 {
	return int64(a.Value)
}

// Uint64 returns the uint64 representation of a 64-bit unsigned integer argument.
func (a SyscallArgument) Uint64() uint64 {
	return a.Value
}

// Uint returns the uint32 representation of a 32-bit unsigned integer
// argument.
func (a SyscallArgument) Uint() uint32 {
	return uint32(a.Value)
}

// SizeT returns a length argument.
func (a SyscallArgument) SizeT() uint64 {
	return a.Value
}

// String implements fmt.Stringer.String.
func (a SyscallArgument) String() string {
	return fmt.Sprintf("%#x", a.Value)
}

// Cause is the reason a thread entered the kernel.
type Cause int

// Trap causes.
const (
	// CauseSyscall is a system call trap instruction.
	CauseSyscall Cause = iota

	// CausePageFault is a failed translation or a permission violation.
	CausePageFault

	// CauseIllegal is an instruction the port cannot execute.
	CauseIllegal

	// CauseHalt means the thread's user code finished without calling
	// task_exit.
	CauseHalt
)

// String implements fmt.Stringer.
func (c Cause) String() string {
	switch c {
	case CauseSyscall:
		return "syscall"
	case CausePageFault:
		return "page fault"
	case CauseIllegal:
		return "illegal instruction"
	case CauseHalt:
		return "halt"
	default:
		return fmt.Sprintf("Cause(%d)", c)
	}
}

// Privilege is the privilege level at trap entry.
type Privilege int

// Privilege levels.
const (
	User Privilege = iota
	Kernel
)

// TrapFrame is the portable view of a trap. A port populates it fully before
// returning from platform.Context.Switch. For system calls the instruction
// pointer in the thread's Context has already been advanced past the trap
// instruction; for faults it has not, so the access is retried.
type TrapFrame interface {
	// SyscallNumber returns the system call number.
	SyscallNumber() uint64

	// Arg returns argument word i, 0 <= i < karnal.MaxSyscallArgs.
	Arg(i int) uint64

	// SetReturn stores the value placed in the user's result register
	// when the thread resumes.
	SetReturn(v int64)

	// FaultingIP returns the address of the trapping instruction.
	FaultingIP() hostarch.Addr

	// FaultAddress returns the faulting data address for page faults.
	FaultAddress() hostarch.Addr

	// AccessType returns the attempted access for page faults.
	AccessType() hostarch.AccessType

	// Cause returns why the thread trapped.
	Cause() Cause

	// Privilege returns the privilege level at entry.
	Privilege() Privilege
}

// Arguments returns the argument words of f.
func Arguments(f TrapFrame) SyscallArguments {
	var args SyscallArguments
	for i := range args {
		args[i].Value = f.Arg(i)
	}
	return args
}
