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
	"slices"
	"sync"

	"karnal.dev/karnal64/pkg/sentry/loader"
	"karnal.dev/karnal64/pkg/sentry/mm"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// TaskID identifies a task. Task IDs are unique across the kernel and never
// reused; 0 means "no task".
type TaskID uint64

// Task is a unit of isolation: an address space, a handle table and the
// threads running in them.
//
// A task's lifetime ends when its last thread exits. At that point its
// handles are released, most recent first, and its address space is torn
// down. The Task itself stays reachable through Kernel.Task so that its exit
// code can be collected.
type Task struct {
	k *Kernel

	// id and parent are immutable.
	id     TaskID
	parent TaskID

	// name is the image the task was spawned from, for logging.
	name string

	// mm is the task's address space. The task exclusively owns it.
	mm *mm.MemoryManager

	// handles is the task's handle table.
	handles *HandleTable

	// self is the task's private namespace, karnal://task/self/*.
	self *resource.Registry

	// image describes the loaded image.
	image loader.ImageInfo

	// mu protects below.
	mu sync.Mutex

	// threads holds the live threads.
	threads map[ThreadID]*Thread

	// exiting is set once the task starts exiting. exitCode is valid once
	// exiting is set.
	exiting  bool
	exitCode int32

	// exited is closed when the last thread has exited and the task's
	// resources are released.
	exited chan struct{}
}

// ID returns the task's ID.
func (tk *Task) ID() TaskID { return tk.id }

// Parent returns the ID of the task that spawned tk, or 0.
func (tk *Task) Parent() TaskID { return tk.parent }

// Name returns the name of the image the task runs.
func (tk *Task) Name() string { return tk.name }

// MemoryManager returns the task's address space.
func (tk *Task) MemoryManager() *mm.MemoryManager { return tk.mm }

// Handles returns the task's handle table.
func (tk *Task) Handles() *HandleTable { return tk.handles }

// Image returns the layout of the task's loaded image.
func (tk *Task) Image() loader.ImageInfo { return tk.image }

// Threads returns the IDs of the live threads in ascending order.
func (tk *Task) Threads() []ThreadID {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	ids := make([]ThreadID, 0, len(tk.threads))
	for id := range tk.threads {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Exiting returns true once the task has started exiting.
func (tk *Task) Exiting() bool {
	tk.mu.Lock()
	defer tk.mu.Unlock()
	return tk.exiting
}

// Exited returns a channel that is closed once the task is gone.
func (tk *Task) Exited() <-chan struct{} { return tk.exited }

// ExitCode returns the task's exit code. ok is false until the task is
// gone.
func (tk *Task) ExitCode() (code int32, ok bool) {
	select {
	case <-tk.exited:
	default:
		return 0, false
	}
	tk.mu.Lock()
	defer tk.mu.Unlock()
	return tk.exitCode, true
}

// String implements fmt.Stringer.String.
func (tk *Task) String() string {
	return fmt.Sprintf("task %d (%s)", tk.id, tk.name)
}
