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

package loader

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/context/contexttest"
	"karnal.dev/karnal64/pkg/sentry/mm"
	"karnal.dev/karnal64/pkg/sentry/pgalloc"
	"karnal.dev/karnal64/pkg/sentry/platform/sim"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

func newMM(t *testing.T) *mm.MemoryManager {
	t.Helper()
	p, err := sim.New(sim.Options{MemorySize: 1 << 20})
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	frames, err := pgalloc.New(p.Memory())
	if err != nil {
		t.Fatalf("pgalloc.New: %v", err)
	}
	m, err := mm.New(frames, p.MMU())
	if err != nil {
		t.Fatalf("mm.New: %v", err)
	}
	return m
}

func TestParseHeader(t *testing.T) {
	good := BuildImage([]byte("code"), 0)
	h, err := ParseHeader(good)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	want := Header{Version: Version, Entry: HeaderSize, Size: HeaderSize + 4, StackSize: DefaultStackSize}
	if diff := cmp.Diff(want, h); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}

	corrupt := func(off int, b byte) []byte {
		img := bytes.Clone(good)
		img[off] = b
		return img
	}
	for name, img := range map[string][]byte{
		"short":         good[:HeaderSize-1],
		"magic":         corrupt(0, 'E'),
		"version":       corrupt(4, 2),
		"entry outside": corrupt(8, 0xff),
		"size":          corrupt(16, 1),
		"stack":         corrupt(27, 0xff),
	} {
		if _, err := ParseHeader(img); err == nil {
			t.Errorf("%s: ParseHeader accepted a bad image", name)
		}
	}
}

func TestLoad(t *testing.T) {
	ctx := contexttest.Context(t)
	m := newMM(t)
	code := sim.Code("loader-test")
	img := NewImage(BuildImage(code, 2*hostarch.PageSize))
	args := []byte("arg0\x00arg1")

	info, err := Load(ctx, m, img, args)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if info.Entry != ImageBase+HeaderSize {
		t.Errorf("Entry = %v, want %v", info.Entry, ImageBase+HeaderSize)
	}
	if got := info.Stack.Length(); got != 2*hostarch.PageSize {
		t.Errorf("stack length = %d", got)
	}
	if err := m.Validate(info.Stack.Start, info.Stack.Length(), hostarch.ReadWrite); err != nil {
		t.Errorf("stack not writable: %v", err)
	}

	got := make([]byte, len(code))
	if _, err := m.CopyIn(ctx, info.Entry, got); err != nil || !bytes.Equal(got, code) {
		t.Errorf("code at entry = (%q, %v), want %q", got, err, code)
	}
	if err := m.Validate(ImageBase, hostarch.PageSize, hostarch.AccessType{Read: true, Execute: true}); err != nil {
		t.Errorf("image not executable: %v", err)
	}
	if err := m.Validate(ImageBase, 1, hostarch.Write); err != kerr.ErrBadAddress {
		t.Errorf("image writable: %v", err)
	}
	if err := m.Protect(ctx, ImageBase, hostarch.PageSize, hostarch.ReadWrite); err != kerr.ErrPermissionDenied {
		t.Errorf("Protect of the image to RW = %v, want PermissionDenied", err)
	}

	gotArgs := make([]byte, info.ArgsLen)
	if _, err := m.CopyIn(ctx, info.Args.Start, gotArgs); err != nil || !bytes.Equal(gotArgs, args) {
		t.Errorf("args = (%q, %v), want %q", gotArgs, err, args)
	}
}

func TestLoadRejectsBadImage(t *testing.T) {
	ctx := contexttest.Context(t)
	m := newMM(t)
	if _, err := Load(ctx, m, NewImage([]byte("#!/bin/sh\n")), nil); err != kerr.ErrInvalidArgument {
		t.Errorf("Load(script) = %v, want InvalidArgument", err)
	}
	if len(m.Regions()) != 0 {
		t.Errorf("failed Load left regions: %v", m.Regions())
	}
}

func TestLoadCleansUpOnFailure(t *testing.T) {
	ctx := contexttest.Context(t)
	m := newMM(t)
	img := NewImage(BuildImage(sim.Code("x"), 0))
	// The image base is taken, so mapping the image fails.
	if _, err := m.Map(ctx, mm.MapOpts{Addr: ImageBase, Length: hostarch.PageSize, Perms: hostarch.Read, Flags: karnal.MapPrivate | karnal.MapAnonymous | karnal.MapFixed}); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if _, err := Load(ctx, m, img, []byte("a")); err != kerr.ErrAlreadyExists {
		t.Errorf("Load over an occupied image base = %v, want AlreadyExists", err)
	}
	if n := len(m.Regions()); n != 1 {
		t.Errorf("failed Load left %d regions, want 1", n)
	}
}

func TestRegisterImage(t *testing.T) {
	r := resource.NewRegistry()
	if err := RegisterImage(r, "init", BuildImage(sim.Code("init"), 0)); err != nil {
		t.Fatalf("RegisterImage: %v", err)
	}
	e, err := r.Lookup("karnal://bin/init")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	p := e.Provider()
	if !p.SupportsMode(karnal.ModeExecute|karnal.ModeRead) || p.SupportsMode(karnal.ModeWrite) {
		t.Errorf("image modes wrong")
	}
	if err := RegisterImage(r, "junk", []byte("junk")); err != kerr.ErrInvalidArgument {
		t.Errorf("RegisterImage(junk) = %v, want InvalidArgument", err)
	}
}
