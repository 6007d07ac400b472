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

package kernel_test

import (
	"testing"
	"time"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/arch"
	"karnal.dev/karnal64/pkg/sentry/kernel"
	"karnal.dev/karnal64/pkg/sentry/kernel/kerneltest"
	"karnal.dev/karnal64/pkg/sentry/platform/sim"
)

// testSyscalls is a minimal table for exercising the task model.
func testSyscalls() *kernel.SyscallTable {
	return &kernel.SyscallTable{
		Arch: arch.Sim,
		Table: map[uint64]kernel.Syscall{
			karnal.SysTaskExit: {
				Name: "task_exit",
				Fn: func(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
					t.Task().Exit(int32(args[0].Int64()))
					return 0, nil
				},
			},
			karnal.SysTaskID: {
				Name: "task_id",
				Fn: func(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
					return uint64(t.Task().ID()), nil
				},
			},
			karnal.SysTaskSleep: {
				Name: "task_sleep",
				Fn: func(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
					return 0, t.Sleep(time.Duration(args[0].Int64()))
				},
			},
			karnal.SysTaskYield: {
				Name: "task_yield",
				Fn: func(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
					t.Yield()
					return 0, nil
				},
			},
		},
	}
}

func newKernel(t *testing.T, cpus int) *kernel.Kernel {
	return kerneltest.New(t, kerneltest.Options{CPUs: cpus, Syscalls: testSyscalls()})
}

func exit(u *sim.User, code int64) {
	u.Syscall(karnal.SysTaskExit, uint64(code))
}

// waitState polls until the only thread of tk is in state want.
func waitState(t *testing.T, k *kernel.Kernel, tk *kernel.Task, want kernel.ThreadState) *kernel.Thread {
	t.Helper()
	deadline := time.Now().Add(kerneltest.ExitTimeout)
	for time.Now().Before(deadline) {
		if ids := tk.Threads(); len(ids) == 1 {
			if th := k.Thread(ids[0]); th != nil && th.State() == want {
				return th
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("%v never reached state %v", tk, want)
	return nil
}

func TestExitCode(t *testing.T) {
	k := newKernel(t, 1)
	kerneltest.Program(t, k, "exit7", func(u *sim.User) {
		exit(u, 7)
		panic("task_exit returned")
	})
	tk := kerneltest.Spawn(t, k, "exit7", nil)
	if code := kerneltest.WaitExit(t, k, tk); code != 7 {
		t.Errorf("exit code = %d, want 7", code)
	}
	if ids := tk.Threads(); len(ids) != 0 {
		t.Errorf("threads after exit = %v, want none", ids)
	}
	if n := tk.Handles().Len(); n != 0 {
		t.Errorf("live handles after exit = %d, want 0", n)
	}
	if n := tk.MemoryManager().ResidentPages(); n != 0 {
		t.Errorf("resident pages after exit = %d, want 0", n)
	}
}

func TestHaltExitsWithZero(t *testing.T) {
	k := newKernel(t, 1)
	kerneltest.Program(t, k, "halt", func(u *sim.User) {})
	if code := kerneltest.Run(t, k, "halt", nil); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestEntryArguments(t *testing.T) {
	k := newKernel(t, 1)
	kerneltest.Program(t, k, "args", func(u *sim.User) {
		ptr, n := u.EntryArg(0), u.EntryArg(1)
		if string(u.Load(hostarch.Addr(ptr), int(n))) != "hello" {
			exit(u, 1)
		}
		exit(u, int64(n))
	})
	if code := kerneltest.Run(t, k, "args", []byte("hello")); code != 5 {
		t.Errorf("exit code = %d, want 5", code)
	}
}

func TestBadAccessKillsTask(t *testing.T) {
	k := newKernel(t, 1)
	kerneltest.Program(t, k, "wild", func(u *sim.User) {
		u.Store(hostarch.MaxUserAddress+hostarch.PageSize, []byte{1})
		exit(u, 0)
	})
	if code := kerneltest.Run(t, k, "wild", nil); code != int32(karnal.CodeBadAddress) {
		t.Errorf("exit code = %d, want %d", code, karnal.CodeBadAddress)
	}
}

func TestUnknownSyscall(t *testing.T) {
	k := newKernel(t, 1)
	kerneltest.Program(t, k, "unknown", func(u *sim.User) {
		exit(u, u.Syscall(9999))
	})
	if code := kerneltest.Run(t, k, "unknown", nil); code != int32(karnal.CodeNotSupported) {
		t.Errorf("exit code = %d, want %d", code, karnal.CodeNotSupported)
	}
}

func TestSleepInterrupted(t *testing.T) {
	k := newKernel(t, 1)
	kerneltest.Program(t, k, "sleeper", func(u *sim.User) {
		exit(u, u.Syscall(karnal.SysTaskSleep, uint64(time.Hour)))
	})
	tk := kerneltest.Spawn(t, k, "sleeper", nil)
	th := waitState(t, k, tk, kernel.ThreadSleeping)
	if got := th.WaitReason(); got != "sleep" {
		t.Errorf("WaitReason() = %q, want %q", got, "sleep")
	}
	if err := k.Signal(th.ID()); err != nil {
		t.Fatalf("Signal(%d): %v", th.ID(), err)
	}
	if code := kerneltest.WaitExit(t, k, tk); code != int32(karnal.CodeInterrupted) {
		t.Errorf("exit code = %d, want %d", code, karnal.CodeInterrupted)
	}
	if err := k.Signal(th.ID()); err != kerr.ErrNotFound {
		t.Errorf("Signal of exited thread: got %v, want %v", err, kerr.ErrNotFound)
	}
}

func TestSleepCompletes(t *testing.T) {
	k := newKernel(t, 1)
	kerneltest.Program(t, k, "nap", func(u *sim.User) {
		exit(u, u.Syscall(karnal.SysTaskSleep, uint64(time.Millisecond)))
	})
	if code := kerneltest.Run(t, k, "nap", nil); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestExitWakesSleeper(t *testing.T) {
	k := newKernel(t, 1)
	kerneltest.Program(t, k, "forever", func(u *sim.User) {
		u.Syscall(karnal.SysTaskSleep, uint64(time.Hour))
		exit(u, 1)
	})
	tk := kerneltest.Spawn(t, k, "forever", nil)
	waitState(t, k, tk, kernel.ThreadSleeping)
	tk.Exit(3)
	if code := kerneltest.WaitExit(t, k, tk); code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestManyTasksShareCPUs(t *testing.T) {
	k := newKernel(t, 2)
	kerneltest.Program(t, k, "yielder", func(u *sim.User) {
		for i := 0; i < 20; i++ {
			u.Syscall(karnal.SysTaskYield)
		}
		exit(u, u.Syscall(karnal.SysTaskID))
	})
	var tasks []*kernel.Task
	for i := 0; i < 8; i++ {
		tasks = append(tasks, kerneltest.Spawn(t, k, "yielder", nil))
	}
	for _, tk := range tasks {
		if code := kerneltest.WaitExit(t, k, tk); code != int32(tk.ID()) {
			t.Errorf("%v exit code = %d, want its ID %d", tk, code, tk.ID())
		}
	}
}

func TestWaitTaskUnknown(t *testing.T) {
	k := newKernel(t, 1)
	if _, err := k.WaitTask(t.Context(), 12345); err != kerr.ErrNotFound {
		t.Errorf("WaitTask(12345): got %v, want %v", err, kerr.ErrNotFound)
	}
}
