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

// Package karnal provides the Karnal64 system call table and its handlers.
//
// Every handler runs on the calling thread's goroutine with the thread
// holding a CPU. Buffer arguments declared in the table are validated by
// the dispatcher before a handler runs; handlers still report BadAddress if
// a copy faults later.
package karnal

import (
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/sentry/arch"
	"karnal.dev/karnal64/pkg/sentry/kernel"
	"karnal.dev/karnal64/pkg/sentry/syscalls"
)

// Sim is the system call table of the simulation platform. The numbering is
// the same on every architecture.
var Sim = &kernel.SyscallTable{
	Arch: arch.Sim,
	Table: map[uint64]kernel.Syscall{
		karnal.SysResourceAcquire: syscalls.Supported("resource_acquire", Acquire),
		karnal.SysResourceRelease: syscalls.Supported("resource_release", Release),
		karnal.SysResourceRead:    syscalls.Supported("resource_read", Read, syscalls.Out(1, 2)),
		karnal.SysResourceWrite:   syscalls.Supported("resource_write", Write, syscalls.In(1, 2)),
		karnal.SysResourceControl: syscalls.Supported("resource_control", Control),
		karnal.SysResourceSeek:    syscalls.Supported("resource_seek", Seek),
		karnal.SysResourceStatus:  syscalls.Supported("resource_status", Status, syscalls.OutFixed(1, karnal.SizeofResourceStatus)),
		karnal.SysTaskSpawn:       syscalls.Supported("task_spawn", Spawn, syscalls.In(1, 2)),
		karnal.SysTaskExit:        syscalls.Supported("task_exit", Exit),
		karnal.SysTaskID:          syscalls.Supported("task_id", TaskID),
		karnal.SysTaskSleep:       syscalls.Supported("task_sleep", Sleep),
		karnal.SysTaskYield:       syscalls.Supported("task_yield", Yield),
		karnal.SysMemoryMap:       syscalls.Supported("memory_map", MemoryMap),
		karnal.SysMemoryUnmap:     syscalls.Supported("memory_unmap", MemoryUnmap),
		karnal.SysMemoryProtect:   syscalls.Supported("memory_protect", MemoryProtect),
	},
}

func init() {
	kernel.RegisterSyscallTable(Sim)
}
