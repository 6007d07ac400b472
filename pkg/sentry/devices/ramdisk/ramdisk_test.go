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

package ramdisk

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/sentry/context/contexttest"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

func TestReadWrite(t *testing.T) {
	ctx := contexttest.Context(t)
	d, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if n, err := d.Write(ctx, []byte("hello"), 4); n != 5 || err != nil {
		t.Fatalf("Write = (%d, %v)", n, err)
	}
	if n, err := d.Write(ctx, []byte("0123456789"), 12); n != 4 || err != nil {
		t.Errorf("clipped Write = (%d, %v), want (4, nil)", n, err)
	}
	if _, err := d.Write(ctx, []byte("x"), 16); err != kerr.ErrOutOfMemory {
		t.Errorf("Write at end = %v, want OutOfMemory", err)
	}

	buf := make([]byte, 32)
	n, err := d.Read(ctx, buf, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []byte("\x00\x00\x00\x00hello\x00\x00\x000123")
	if diff := cmp.Diff(want, buf[:n]); diff != "" {
		t.Errorf("contents mismatch (-want +got):\n%s", diff)
	}
	if n, err := d.Read(ctx, buf, 100); n != 0 || err != nil {
		t.Errorf("Read past end = (%d, %v), want (0, nil)", n, err)
	}
}

func TestSeekAndStatus(t *testing.T) {
	ctx := contexttest.Context(t)
	d, _ := New(4096)
	for _, tc := range []struct {
		cur    uint64
		whence karnal.SeekWhence
		off    int64
		want   uint64
		err    error
	}{
		{0, karnal.SeekStart, 10, 10, nil},
		{10, karnal.SeekCurrent, -4, 6, nil},
		{10, karnal.SeekEnd, -96, 4000, nil},
		{10, karnal.SeekCurrent, -11, 0, kerr.ErrInvalidArgument},
		{0, 7, 0, 0, kerr.ErrInvalidArgument},
	} {
		got, err := d.Seek(ctx, tc.cur, tc.whence, tc.off)
		if got != tc.want || err != tc.err {
			t.Errorf("Seek(%d, %d, %d) = (%d, %v), want (%d, %v)", tc.cur, tc.whence, tc.off, got, err, tc.want, tc.err)
		}
	}
	want := resource.Status{Readable: true, Writable: true, Seekable: true, Size: 4096, HasSize: true}
	if diff := cmp.Diff(want, d.Status(ctx)); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestRegister(t *testing.T) {
	r := resource.NewRegistry()
	if err := Register(r, 2, 4096); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for _, name := range []string{"karnal://device/ramdisk0", "karnal://device/ramdisk1"} {
		if _, err := r.Lookup(name); err != nil {
			t.Errorf("Lookup(%q): %v", name, err)
		}
	}
	if _, err := New(0); err == nil {
		t.Errorf("New(0) succeeded")
	}
}
