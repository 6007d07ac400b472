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


package refs

import (
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestZeroValueHoldsOneReference(t *testing.T) {
	var r AtomicRefCount
	if got := r.ReadRefs(); got != 1 {
		t.Fatalf("ReadRefs() = %d, want 1", got)
	}
	destroyed := 0
	destroy := func() { destroyed++ }
	r.IncRef()
	r.DecRefWithDestructor(destroy)
	if destroyed != 0 {
		t.Fatalf("destroyed with a reference outstanding")
	}
	r.DecRefWithDestructor(destroy)
	if destroyed != 1 {
		t.Fatalf("destroyed %d times after last DecRef, want 1", destroyed)
	}
	if r.TryIncRef() {
		t.Errorf("TryIncRef succeeded on a dead object")
	}
	if got := r.ReadRefs(); got != 0 {
		t.Errorf("ReadRefs() = %d after death, want 0", got)
	}
}

func TestDeadObjectPanics(t *testing.T) {
	for name, use := range map[string]func(*AtomicRefCount){
		"IncRef": (*AtomicRefCount).IncRef,
		"DecRef": (*AtomicRefCount).DecRef,
	} {
		t.Run(name, func(t *testing.T) {
			var r AtomicRefCount
			r.DecRef()
			defer func() {
				if recover() == nil {
					t.Errorf("%s on a dead object did not panic", name)
				}
			}()
			use(&r)
		})
	}
}

func TestConcurrentIncDec(t *testing.T) {
	var r AtomicRefCount
	var g errgroup.Group
	for i := 0; i < 64; i++ {
		g.Go(func() error {
			if !r.TryIncRef() {
				t.Errorf("TryIncRef failed on a live object")
				return nil
			}
			r.DecRef()
			return nil
		})
	}
	g.Wait()
	if got := r.ReadRefs(); got != 1 {
		t.Errorf("ReadRefs() = %d, want 1", got)
	}
}
