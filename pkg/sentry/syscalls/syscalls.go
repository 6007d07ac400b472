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

// Package syscalls is the interface from the application to the kernel.
// Applications request every kernel service through a small, closed set of
// system calls; this package provides the helpers used to build the tables
// of those calls, one subpackage per ABI.
package syscalls

import (
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/arch"
	"karnal.dev/karnal64/pkg/sentry/kernel"
)

// Supported returns a syscall that is fully supported. ptrs declare the
// user buffers the dispatcher validates before fn runs.
func Supported(name string, fn kernel.SyscallFn, ptrs ...kernel.PointerArg) kernel.Syscall {
	return kernel.Syscall{
		Name:     name,
		Fn:       fn,
		Pointers: ptrs,
	}
}

// Error returns a syscall handler that will always give the passed error.
func Error(name string, err error) kernel.Syscall {
	return kernel.Syscall{
		Name: name,
		Fn: func(*kernel.Thread, arch.SyscallArguments) (uint64, error) {
			return 0, err
		},
	}
}

// In declares a buffer the system call reads: argument ptr holds its address
// and argument length its size.
func In(ptr, length int) kernel.PointerArg {
	return kernel.PointerArg{Ptr: ptr, Len: length, Access: hostarch.Read}
}

// Out declares a buffer the system call writes.
func Out(ptr, length int) kernel.PointerArg {
	return kernel.PointerArg{Ptr: ptr, Len: length, Access: hostarch.Write}
}

// OutFixed declares a buffer of a fixed size the system call writes.
func OutFixed(ptr int, size uint64) kernel.PointerArg {
	return kernel.PointerArg{Ptr: ptr, Len: -1, Size: size, Access: hostarch.Write}
}
