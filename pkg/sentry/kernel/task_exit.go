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
	gocontext "context"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/sentry/context"
)

// fatalError is the panic value for an invariant violation confined to one
// task. The thread run loop recovers it and the task exits with
// InternalError; the rest of the kernel keeps running.
type fatalError struct {
	err error
}

// Error implements error.Error.
func (fe fatalError) Error() string {
	return "task fatal: " + fe.err.Error()
}

// Exit starts the exit of tk with the given code. Every thread is killed:
// blocked threads wake with Interrupted and no thread re-enters user mode.
// The task's handles and address space are released by its last thread.
//
// The first exit code recorded wins.
func (tk *Task) Exit(code int32) {
	tk.mu.Lock()
	if !tk.exiting {
		tk.exiting = true
		tk.exitCode = code
	}
	threads := make([]*Thread, 0, len(tk.threads))
	for _, t := range tk.threads {
		threads = append(threads, t)
	}
	tk.mu.Unlock()

	for _, t := range threads {
		t.kill()
	}
}

// exitWithError exits tk with the code of err.
func (tk *Task) exitWithError(err error) {
	tk.Exit(int32(kerr.Code(err)))
}

// threadExited removes t from tk. If t was the last thread, the task is torn
// down: its handles are released most recent first, its address space is
// destroyed and waiters are woken.
func (tk *Task) threadExited(t *Thread) {
	tk.mu.Lock()
	delete(tk.threads, t.id)
	last := len(tk.threads) == 0
	if last && !tk.exiting {
		// The last thread halted without task_exit.
		tk.exiting = true
		tk.exitCode = 0
	}
	code := tk.exitCode
	tk.mu.Unlock()
	if !last {
		return
	}

	ctx := context.WithLogger(gocontext.WithoutCancel(t), t)
	tk.handles.FlushAll()
	tk.mm.Release(ctx)
	close(tk.exited)
	ctx.Infof("Task %v exited with code %d (%v)", tk, code, karnal.Code(code))
}
