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

package bitmap

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFirstZeroIsLowest(t *testing.T) {
	b := New(130)
	b.AddRange(0, 70)
	if got, ok := b.FirstZero(0); !ok || got != 70 {
		t.Fatalf("FirstZero(0) = %d, %v, want 70", got, ok)
	}
	b.Remove(3)
	if got, ok := b.FirstZero(0); !ok || got != 3 {
		t.Fatalf("FirstZero(0) = %d, %v, want 3", got, ok)
	}
	b.Add(3)
	b.AddRange(70, 130)
	if _, ok := b.FirstZero(0); ok {
		t.Fatalf("FirstZero on a full bitmap succeeded")
	}
	if got := b.Count(); got != 130 {
		t.Errorf("Count() = %d, want 130", got)
	}
}

func TestGrow(t *testing.T) {
	b := New(64)
	b.AddRange(0, 64)
	if _, ok := b.FirstZero(0); ok {
		t.Fatalf("FirstZero on a full bitmap succeeded")
	}
	if err := b.Grow(128); err != nil {
		t.Fatalf("Grow: %v", err)
	}
	if got, ok := b.FirstZero(0); !ok || got != 64 {
		t.Errorf("FirstZero after Grow = %d, %v, want 64", got, ok)
	}
	if err := b.Grow(10); err == nil {
		t.Errorf("shrinking Grow succeeded")
	}
}

func TestZeroRuns(t *testing.T) {
	b := New(32)
	b.AddRange(0, 4)
	b.AddRange(6, 10)
	b.Add(20)
	// Free runs: [4,6) [10,20) [21,32).
	if got, ok := b.FirstZeroRun(2); !ok || got != 4 {
		t.Errorf("FirstZeroRun(2) = %d, %v, want 4", got, ok)
	}
	if got, ok := b.FirstZeroRun(10); !ok || got != 10 {
		t.Errorf("FirstZeroRun(10) = %d, %v, want 10", got, ok)
	}
	if got, ok := b.FirstZeroRun(11); !ok || got != 21 {
		t.Errorf("FirstZeroRun(11) = %d, %v, want 21", got, ok)
	}
	if _, ok := b.FirstZeroRun(12); ok {
		t.Errorf("FirstZeroRun(12) succeeded")
	}
	if got := b.LongestZeroRun(); got != 11 {
		t.Errorf("LongestZeroRun() = %d, want 11", got)
	}
	if diff := cmp.Diff([]uint32{0, 1, 2, 3, 6, 7, 8, 9, 20}, b.ToSlice()); diff != "" {
		t.Errorf("ToSlice mismatch (-want +got):\n%s", diff)
	}
}
