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

import (
	"strings"
	"time"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/sentry/arch"
	"karnal.dev/karnal64/pkg/sentry/kernel"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// maxSpawnArgs bounds the argument bytes passed to a new task.
const maxSpawnArgs = 64 << 10

// Spawn implements task_spawn. The child's handle table is a copy of the
// caller's; handles acquired by either task later are not shared.
func Spawn(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
	h := kernel.Handle(args[0].Uint64())
	addr := args[1].Pointer()
	size := args[2].SizeT()

	he, err := t.Task().Handles().Get(h)
	if err != nil {
		return 0, err
	}
	if !he.Mode.Has(karnal.ModeExecute) {
		return 0, kerr.ErrPermissionDenied
	}
	if size > maxSpawnArgs {
		return 0, kerr.ErrInvalidArgument
	}
	var argv []byte
	if size > 0 {
		argv = make([]byte, size)
		if _, err := t.CopyInBytes(addr, argv); err != nil {
			return 0, err
		}
	}

	name := "task"
	if e := he.Resource(); e != nil {
		name = strings.TrimPrefix(e.Name(), resource.BinPrefix)
	}
	tk, err := t.Kernel().Spawn(t, kernel.SpawnArgs{
		Parent: t.Task(),
		Name:   name,
		Image:  he.Provider,
		Args:   argv,
	})
	if err != nil {
		return 0, err
	}
	return uint64(tk.ID()), nil
}

// Exit implements task_exit. The calling thread does not return to user
// mode.
func Exit(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
	t.Task().Exit(int32(args[0].Int64()))
	return 0, nil
}

// TaskID implements task_id.
func TaskID(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
	return uint64(t.Task().ID()), nil
}

// Sleep implements task_sleep.
func Sleep(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
	ns := args[0].Int64()
	if ns < 0 {
		return 0, kerr.ErrInvalidArgument
	}
	return 0, t.Sleep(time.Duration(ns))
}

// Yield implements task_yield.
func Yield(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
	t.Yield()
	return 0, nil
}
