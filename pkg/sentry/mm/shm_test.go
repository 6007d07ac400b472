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

package mm

import (
	"testing"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/context/contexttest"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

func TestSharedMemoryIsShared(t *testing.T) {
	ctx := contexttest.Context(t)
	m := newMachine(t, 32)
	a, b := m.newMM(t), m.newMM(t)

	shm := NewSharedMemory(m.frames)
	if _, err := shm.Control(ctx, karnal.SharedMemoryResize, 2*pageSize-1); err != nil {
		t.Fatalf("resize: %v", err)
	}
	if size, _ := shm.Control(ctx, karnal.SharedMemorySize, 0); size != 2*pageSize {
		t.Errorf("size = %d, want %d", size, 2*pageSize)
	}

	shared := MapOpts{Length: 2 * pageSize, Perms: hostarch.ReadWrite, Flags: karnal.MapShared, Backing: shm}
	addrA, err := a.Map(ctx, shared)
	if err != nil {
		t.Fatalf("Map in a: %v", err)
	}
	addrB, err := b.Map(ctx, shared)
	if err != nil {
		t.Fatalf("Map in b: %v", err)
	}
	if _, err := a.CopyOut(ctx, addrA+pageSize+1, []byte("ping")); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	got := make([]byte, 4)
	if _, err := b.CopyIn(ctx, addrB+pageSize+1, got); err != nil || string(got) != "ping" {
		t.Errorf("b reads (%q, %v), want ping", got, err)
	}
	if _, err := shm.Read(ctx, got, pageSize+1); err != nil || string(got) != "ping" {
		t.Errorf("object reads (%q, %v), want ping", got, err)
	}

	// A private mapping takes a copy.
	private := shared
	private.Flags = karnal.MapPrivate
	addrP, err := b.Map(ctx, private)
	if err != nil {
		t.Fatalf("private Map: %v", err)
	}
	if _, err := b.CopyOut(ctx, addrP+pageSize+1, []byte("pong")); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	if _, err := a.CopyIn(ctx, addrA+pageSize+1, got); err != nil || string(got) != "ping" {
		t.Errorf("private write leaked into the object: %q", got)
	}
}

func TestSharedMemoryMapBeyondSize(t *testing.T) {
	ctx := contexttest.Context(t)
	m := newMachine(t, 8)
	shm := NewSharedMemory(m.frames)
	if err := shm.Resize(pageSize); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	_, err := m.newMM(t).Map(ctx, MapOpts{Length: 2 * pageSize, Perms: hostarch.Read, Flags: karnal.MapShared, Backing: shm})
	if err != kerr.ErrInvalidArgument {
		t.Errorf("Map beyond the object = %v, want InvalidArgument", err)
	}
	if err := shm.Resize(0); err != kerr.ErrInvalidArgument {
		t.Errorf("shrinking Resize = %v, want InvalidArgument", err)
	}
}

func TestSharedMemoryFreedAfterLastMapping(t *testing.T) {
	ctx := contexttest.Context(t)
	m := newMachine(t, 16)
	r := resource.NewRegistry()
	if err := r.RegisterFactory(SharedMemoryPrefix, SharedMemoryFactory(m.frames)); err != nil {
		t.Fatalf("RegisterFactory: %v", err)
	}
	e, err := r.Acquire(ctx, SharedMemoryPrefix+"buf", karnal.ModeRead|karnal.ModeWrite|karnal.ModeCreate)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	shm := e.Provider().(*SharedMemory)
	if err := shm.Resize(3 * pageSize); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	mm := m.newMM(t)
	addr, err := mm.Map(ctx, MapOpts{Length: 3 * pageSize, Perms: hostarch.ReadWrite, Flags: karnal.MapShared, Backing: shm})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if _, err := mm.ZeroOut(ctx, addr, 3*pageSize); err != nil {
		t.Fatalf("ZeroOut: %v", err)
	}

	e.Close()
	if err := r.Deregister(SharedMemoryPrefix + "buf"); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if used := m.frames.Info().Used; used != 3*pageSize {
		t.Errorf("Used = %d while mapped, want %d", used, 3*pageSize)
	}
	if err := shm.Resize(4 * pageSize); err != kerr.ErrBadHandle {
		t.Errorf("Resize after release = %v, want BadHandle", err)
	}
	if err := mm.Unmap(ctx, addr, 3*pageSize); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if used := m.frames.Info().Used; used != 0 {
		t.Errorf("Used = %d after the last unmap, want 0", used)
	}
}
