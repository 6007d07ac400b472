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


// Package refs counts references to kernel objects shared between tasks and
// address spaces.
package refs

import (
	"fmt"
	"sync/atomic"
)

// RefCounter is implemented by reference-counted objects.
type RefCounter interface {
	// IncRef takes a reference. The caller must already hold one.
	IncRef()

	// DecRef drops a reference.
	DecRef()

	// TryIncRef takes a reference unless the object is already dead.
	TryIncRef() bool
}

// AtomicRefCount is an atomic reference count. The zero value holds one
// reference, so an embedding object is born referenced by its creator. When
// the last reference is dropped the object is dead: TryIncRef fails and
// IncRef panics.
type AtomicRefCount struct {
	// refs is the reference count minus one. -1 means dead.
	refs atomic.Int64
}

// ReadRefs returns the current number of references. The value is stale as
// soon as it is returned unless the caller synchronizes otherwise.
func (r *AtomicRefCount) ReadRefs() int64 {
	return r.refs.Load() + 1
}

// IncRef implements RefCounter.IncRef.
func (r *AtomicRefCount) IncRef() {
	if v := r.refs.Add(1); v <= 0 {
		panic(fmt.Sprintf("IncRef on a dead object (count %d)", v))
	}
}

// TryIncRef implements RefCounter.TryIncRef.
func (r *AtomicRefCount) TryIncRef() bool {
	for {
		v := r.refs.Load()
		if v < 0 {
			return false
		}
		if r.refs.CompareAndSwap(v, v+1) {
			return true
		}
	}
}

// DecRefWithDestructor drops a reference and calls destroy, if not nil, when
// it was the last one.
func (r *AtomicRefCount) DecRefWithDestructor(destroy func()) {
	v := r.refs.Add(-1)
	switch {
	case v < -1:
		panic(fmt.Sprintf("DecRef on a dead object (count %d)", v+1))
	case v == -1 && destroy != nil:
		destroy()
	}
}

// DecRef implements RefCounter.DecRef.
func (r *AtomicRefCount) DecRef() {
	r.DecRefWithDestructor(nil)
}
