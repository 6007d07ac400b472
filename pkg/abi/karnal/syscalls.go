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

package karnal

// System call numbers. The set is closed; unknown numbers return
// CodeNotSupported.
const (
	SysResourceAcquire = 1
	SysResourceRelease = 2
	SysResourceRead    = 3
	SysResourceWrite   = 4
	SysResourceControl = 5
	SysResourceSeek    = 6
	SysResourceStatus  = 7
	SysTaskSpawn       = 8
	SysTaskExit        = 9
	SysTaskID          = 10
	SysTaskSleep       = 11
	SysTaskYield       = 12
	SysMemoryMap       = 13
	SysMemoryUnmap     = 14
	SysMemoryProtect   = 15
)

// MaxSyscallArgs is the number of argument registers a system call may use.
const MaxSyscallArgs = 5

// Control requests at or above ControlGlobalBase are interpreted by the
// kernel for every handle. Requests below it are passed to the provider.
const ControlGlobalBase = 1 << 32

// Global control requests.
const (
	// CtrlQueryModes returns the handle's mode mask.
	CtrlQueryModes = ControlGlobalBase + iota

	// CtrlDuplicate installs a copy of the handle in the task whose id is
	// the argument and returns the new handle value.
	CtrlDuplicate

	// CtrlSetTimeout sets the handle's timeout for blocking operations in
	// nanoseconds. Zero clears it.
	CtrlSetTimeout
)

// Synchronization object requests.
const (
	LockAcquire = 1
	LockRelease = 2

	SemaphoreWait   = 1
	SemaphoreSignal = 2
	SemaphoreValue  = 3
)

// Shared memory object requests.
const (
	SharedMemoryResize = 1
	SharedMemorySize   = 2
)

// Channel requests.
const (
	ChannelPending  = 1
	ChannelCapacity = 2
)

// Requests served by karnal://task/self/control.
const (
	TaskControlThreadCreate = 1
	TaskControlWait         = 2
	TaskControlSignal       = 3
	TaskControlParent       = 4
)

// Requests served by karnal://sys/kernel.
const (
	KernelInfoVersion  = 1
	KernelInfoCPUs     = 2
	KernelInfoPageSize = 3
	KernelInfoUptime   = 4
)

// Requests served by console devices.
const (
	ConsoleIsTerminal = 1
	ConsoleFlush      = 2
)
