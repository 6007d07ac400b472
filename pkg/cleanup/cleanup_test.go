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


package cleanup

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCleanOrder(t *testing.T) {
	var order []int
	cu := Make(func() { order = append(order, 1) })
	cu.Add(nil)
	cu.AddErr(nil)
	cu.Add(func() { order = append(order, 2) })
	cu.AddErr(func() error {
		order = append(order, 3)
		return nil
	})
	if err := cu.Clean(); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if err := cu.Clean(); err != nil {
		t.Fatalf("second Clean: %v", err)
	}
	if diff := cmp.Diff([]int{3, 2, 1}, order); diff != "" {
		t.Errorf("cleanup order mismatch (-want +got):\n%s", diff)
	}
}

func TestCleanJoinsErrors(t *testing.T) {
	errA := errors.New("unmap failed")
	errB := errors.New("release failed")
	ran := false
	cu := Make(func() { ran = true })
	cu.AddErr(func() error { return errA })
	cu.AddErr(func() error { return errB })

	err := cu.Clean()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Clean() = %v, want both errors", err)
	}
	if !ran {
		t.Errorf("cleaner after a failing one did not run")
	}
}

func TestRelease(t *testing.T) {
	ran := 0
	undo := func() error {
		ran++
		return nil
	}
	release := func() func() error {
		cu := Make(nil)
		cu.AddErr(undo)
		cu.AddErr(undo)
		defer cu.Clean()
		return cu.Release()
	}
	cleaner := release()
	if ran != 0 {
		t.Fatalf("%d cleanup functions ran after Release", ran)
	}
	if err := cleaner(); err != nil {
		t.Fatalf("released cleaner: %v", err)
	}
	if ran != 2 {
		t.Errorf("released cleaner ran %d functions, want 2", ran)
	}
}
