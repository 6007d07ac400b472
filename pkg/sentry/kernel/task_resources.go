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
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// TaskControlName is the name of the task control resource in every task's
// private namespace.
const TaskControlName = resource.TaskSelfPrefix + "control"

// taskControl is the provider behind karnal://task/self/control. Requests
// act on the task that owns the namespace and must be made by one of the
// kernel's threads.
type taskControl struct {
	resource.NoRead
	resource.NoWrite
	resource.NoSeek

	tk *Task
}

// SupportsMode implements resource.Provider.SupportsMode.
func (*taskControl) SupportsMode(mode karnal.Mode) bool {
	return mode&karnal.ModeExecute == 0
}

// Status implements resource.Provider.Status.
func (*taskControl) Status(context.Context) resource.Status {
	return resource.Status{}
}

// Control implements resource.Provider.Control.
func (tc *taskControl) Control(ctx context.Context, request, arg uint64) (uint64, error) {
	t := ThreadFromContext(ctx)
	if t == nil || t.k != tc.tk.k {
		return 0, kerr.ErrPermissionDenied
	}
	switch request {
	case karnal.TaskControlThreadCreate:
		if t.tk != tc.tk {
			return 0, kerr.ErrPermissionDenied
		}
		id, err := tc.tk.NewThread(ctx, hostarch.Addr(arg), uint64(t.id))
		return uint64(id), err

	case karnal.TaskControlWait:
		id := TaskID(arg)
		if id == tc.tk.id {
			return 0, kerr.ErrInvalidArgument
		}
		target := tc.tk.k.Task(id)
		if target == nil {
			return 0, kerr.ErrNotFound
		}
		if err := t.BlockOn("task wait", target.exited); err != nil {
			return 0, err
		}
		code, _ := target.ExitCode()
		return uint64(uint32(code)), nil

	case karnal.TaskControlSignal:
		return 0, tc.tk.k.Signal(ThreadID(arg))

	case karnal.TaskControlParent:
		return uint64(tc.tk.parent), nil

	default:
		return 0, kerr.ErrNotSupported
	}
}
