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

package pgalloc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/platform"
	"karnal.dev/karnal64/pkg/sentry/platform/sim"
)

const page = hostarch.PageSize

func newAllocator(t *testing.T, frames uint64) *Allocator {
	t.Helper()
	p, err := sim.New(sim.Options{MemorySize: frames * page})
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	a, err := New(p.Memory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestAllocateLowestAndZeroed(t *testing.T) {
	a := newAllocator(t, 4)
	pa0, err := a.Allocate()
	if err != nil || pa0 != 0 {
		t.Fatalf("Allocate = (%#x, %v), want (0, nil)", pa0, err)
	}
	copy(a.Frame(pa0), "dirty")
	pa1, _ := a.Allocate()
	if pa1 != page {
		t.Errorf("second frame at %#x, want %#x", pa1, page)
	}
	a.Free(pa0)
	again, _ := a.Allocate()
	if again != pa0 {
		t.Errorf("reallocated %#x, want lowest free %#x", again, pa0)
	}
	if a.Frame(again)[0] != 0 {
		t.Errorf("reallocated frame not zeroed")
	}
}

func TestOutOfMemory(t *testing.T) {
	a := newAllocator(t, 2)
	if _, err := a.AllocateN(3); err != kerr.ErrOutOfMemory {
		t.Fatalf("AllocateN(3) = %v, want OutOfMemory", err)
	}
	if got := a.Info().Used; got != 0 {
		t.Errorf("failed AllocateN leaked %d bytes", got)
	}
	pas, err := a.AllocateN(2)
	if err != nil {
		t.Fatalf("AllocateN(2): %v", err)
	}
	if diff := cmp.Diff([]platform.PhysAddr{0, page}, pas); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	if _, err := a.Allocate(); err != kerr.ErrOutOfMemory {
		t.Errorf("Allocate on a full allocator = %v", err)
	}
}

func TestInfo(t *testing.T) {
	a := newAllocator(t, 8)
	pas, _ := a.AllocateN(4)
	a.Free(pas[1])
	want := karnal.MemoryInfo{
		Total:            8 * page,
		Free:             5 * page,
		Used:             3 * page,
		LargestFreeBlock: 4 * page,
	}
	if diff := cmp.Diff(want, a.Info()); diff != "" {
		t.Errorf("Info mismatch (-want +got):\n%s", diff)
	}
}

func TestDoubleFreePanics(t *testing.T) {
	a := newAllocator(t, 2)
	pa, _ := a.Allocate()
	a.Free(pa)
	defer func() {
		if recover() == nil {
			t.Errorf("double free did not panic")
		}
	}()
	a.Free(pa)
}
