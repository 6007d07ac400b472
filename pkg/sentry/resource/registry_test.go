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

package resource

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/context/contexttest"
)

// fakeProvider supports a fixed set of modes and does nothing else.
type fakeProvider struct {
	NoRead
	NoWrite
	NoControl
	NoSeek
	Modes
}

func (fakeProvider) Status(context.Context) Status { return Status{} }

func newFake(m karnal.Mode) Provider {
	return fakeProvider{Modes: Modes(m)}
}

func TestValidateName(t *testing.T) {
	for _, tc := range []struct {
		name string
		ok   bool
	}{
		{"karnal://device/console", true},
		{"", false},
		{strings.Repeat("a", MaxNameLength), true},
		{strings.Repeat("a", MaxNameLength+1), false},
		{"bad\xff", false},
	} {
		if err := ValidateName(tc.name); (err == nil) != tc.ok {
			t.Errorf("ValidateName(%.20q) = %v, want ok=%v", tc.name, err, tc.ok)
		}
	}
}

func TestRegisterLookupDeregister(t *testing.T) {
	r := NewRegistry()
	p := newFake(karnal.ModeRead | karnal.ModeWrite)
	if _, err := r.Register("karnal://device/console", p, karnal.ModeRead|karnal.ModeWrite); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := r.Register("karnal://device/console", p, 0); err != kerr.ErrAlreadyExists {
		t.Errorf("duplicate Register = %v, want AlreadyExists", err)
	}
	e, err := r.Lookup("karnal://device/console")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if e.Provider() != p {
		t.Errorf("Lookup returned a different provider")
	}
	if _, err := r.Lookup("karnal://device/missing"); err != kerr.ErrNotFound {
		t.Errorf("Lookup(missing) = %v, want NotFound", err)
	}
	if err := r.Deregister("karnal://device/console"); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if _, err := r.Lookup("karnal://device/console"); err != kerr.ErrNotFound {
		t.Errorf("Lookup after Deregister = %v, want NotFound", err)
	}
}

func TestDeregisterBusyWhileHandlesLive(t *testing.T) {
	ctx := contexttest.Context(t)
	r := NewRegistry()
	r.Register("karnal://device/console", newFake(karnal.ModeWrite), karnal.ModeWrite)

	e, err := r.Acquire(ctx, "karnal://device/console", karnal.ModeWrite)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := r.Deregister("karnal://device/console"); err != kerr.ErrBusy {
		t.Errorf("Deregister with live handle = %v, want Busy", err)
	}
	e.Close()
	if err := r.Deregister("karnal://device/console"); err != nil {
		t.Errorf("Deregister after Close = %v", err)
	}
}

func TestAcquireModes(t *testing.T) {
	ctx := contexttest.Context(t)
	r := NewRegistry()
	r.Register("karnal://device/console", newFake(karnal.ModeRead|karnal.ModeWrite), karnal.ModeRead|karnal.ModeWrite)

	for _, tc := range []struct {
		name string
		mode karnal.Mode
		want error
	}{
		{"karnal://device/console", karnal.ModeWrite, nil},
		{"karnal://device/console", karnal.ModeWrite | karnal.ModeNonblock, nil},
		{"karnal://device/console", karnal.ModeExecute, kerr.ErrPermissionDenied},
		{"karnal://device/missing", karnal.ModeRead, kerr.ErrNotFound},
		{"karnal://device/console", karnal.ModeCreate | karnal.ModeExclusive, kerr.ErrAlreadyExists},
		{"karnal://device/console", 1 << 10, kerr.ErrInvalidArgument},
		{"", karnal.ModeRead, kerr.ErrInvalidArgument},
	} {
		e, err := r.Acquire(ctx, tc.name, tc.mode)
		if err != tc.want {
			t.Errorf("Acquire(%q, %#x) = %v, want %v", tc.name, tc.mode, err, tc.want)
		}
		if err == nil {
			e.Close()
		}
	}
}

func TestExclusive(t *testing.T) {
	ctx := contexttest.Context(t)
	r := NewRegistry()
	r.Register("karnal://device/ramdisk0", newFake(karnal.ModeRead|karnal.ModeWrite), karnal.ModeRead|karnal.ModeWrite)

	shared, err := r.Acquire(ctx, "karnal://device/ramdisk0", karnal.ModeRead)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := r.Acquire(ctx, "karnal://device/ramdisk0", karnal.ModeRead|karnal.ModeExclusive); err != kerr.ErrBusy {
		t.Errorf("EXCLUSIVE with another handle live = %v, want Busy", err)
	}
	shared.Close()

	excl, err := r.Acquire(ctx, "karnal://device/ramdisk0", karnal.ModeRead|karnal.ModeExclusive)
	if err != nil {
		t.Fatalf("EXCLUSIVE Acquire: %v", err)
	}
	if _, err := r.Acquire(ctx, "karnal://device/ramdisk0", karnal.ModeRead); err != kerr.ErrBusy {
		t.Errorf("Acquire while exclusive = %v, want Busy", err)
	}
	excl.Close()
	if e, err := r.Acquire(ctx, "karnal://device/ramdisk0", karnal.ModeRead); err != nil {
		t.Errorf("Acquire after exclusive release = %v", err)
	} else {
		e.Close()
	}
}

func TestFactoryCreate(t *testing.T) {
	ctx := contexttest.Context(t)
	r := NewRegistry()
	created := 0
	r.RegisterFactory("karnal://sys/ipc/", func(ctx context.Context, name string) (Provider, karnal.Mode, error) {
		created++
		return newFake(karnal.ModeRead | karnal.ModeWrite), karnal.ModeRead | karnal.ModeWrite, nil
	})

	if _, err := r.Acquire(ctx, "karnal://sys/ipc/chan0", karnal.ModeRead); err != kerr.ErrNotFound {
		t.Errorf("Acquire without CREATE = %v, want NotFound", err)
	}
	e1, err := r.Acquire(ctx, "karnal://sys/ipc/chan0", karnal.ModeRead|karnal.ModeCreate)
	if err != nil {
		t.Fatalf("Acquire with CREATE: %v", err)
	}
	e2, err := r.Acquire(ctx, "karnal://sys/ipc/chan0", karnal.ModeWrite|karnal.ModeCreate)
	if err != nil {
		t.Fatalf("second Acquire with CREATE: %v", err)
	}
	if e1 != e2 || created != 1 {
		t.Errorf("CREATE on an existing name created a new resource (created=%d)", created)
	}
	if _, err := r.Acquire(ctx, "karnal://sys/ipc/", karnal.ModeRead|karnal.ModeCreate); err != kerr.ErrNotFound {
		t.Errorf("CREATE of the bare prefix = %v, want NotFound", err)
	}
	if diff := cmp.Diff([]string{"karnal://sys/ipc/chan0"}, r.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}

type releaseCounter struct {
	fakeProvider
	released *int
}

func (p releaseCounter) Release() { *p.released++ }

func TestFactoryCreateUnsupportedMode(t *testing.T) {
	ctx := contexttest.Context(t)
	r := NewRegistry()
	released := 0
	r.RegisterFactory("karnal://sys/ipc/", func(ctx context.Context, name string) (Provider, karnal.Mode, error) {
		p := releaseCounter{fakeProvider{Modes: Modes(karnal.ModeRead | karnal.ModeWrite)}, &released}
		return p, karnal.ModeRead | karnal.ModeWrite, nil
	})

	if _, err := r.Acquire(ctx, "karnal://sys/ipc/x", karnal.ModeCreate|karnal.ModeExecute); err != kerr.ErrPermissionDenied {
		t.Fatalf("Acquire(CREATE|EXECUTE) = %v, want PermissionDenied", err)
	}
	if _, err := r.Lookup("karnal://sys/ipc/x"); err != kerr.ErrNotFound {
		t.Errorf("Lookup after failed create = %v, want NotFound", err)
	}
	if len(r.Names()) != 0 {
		t.Errorf("Names = %v, want none", r.Names())
	}
	if released != 1 {
		t.Errorf("provider released %d times, want 1", released)
	}

	// The name is still free for a later, valid creation.
	if _, err := r.Acquire(ctx, "karnal://sys/ipc/x", karnal.ModeCreate|karnal.ModeExclusive|karnal.ModeRead); err != nil {
		t.Errorf("Acquire(CREATE|EXCLUSIVE|READ) after failed create: %v", err)
	}
}

func TestRevoke(t *testing.T) {
	ctx := contexttest.Context(t)
	r := NewRegistry()
	r.Register("karnal://device/null", newFake(karnal.ModeRead), karnal.ModeRead)
	e, err := r.Acquire(ctx, "karnal://device/null", karnal.ModeRead)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := r.Revoke("karnal://device/null"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if !e.Revoked() {
		t.Errorf("entry not marked revoked")
	}
	if _, err := r.Lookup("karnal://device/null"); err != kerr.ErrNotFound {
		t.Errorf("Lookup after Revoke = %v, want NotFound", err)
	}
}

func TestConcurrentAcquireRelease(t *testing.T) {
	ctx := contexttest.Context(t)
	r := NewRegistry()
	r.Register("karnal://device/null", newFake(karnal.ModeRead), karnal.ModeRead)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				e, err := r.Acquire(ctx, "karnal://device/null", karnal.ModeRead)
				if err != nil {
					t.Errorf("Acquire: %v", err)
					return
				}
				e.Close()
			}
		}()
	}
	wg.Wait()
	e, _ := r.Lookup("karnal://device/null")
	if got := e.Handles(); got != 0 {
		t.Errorf("Handles() = %d after all releases", got)
	}
}

func TestSeekWithin(t *testing.T) {
	for _, tc := range []struct {
		current uint64
		whence  karnal.SeekWhence
		offset  int64
		want    uint64
		err     error
	}{
		{10, karnal.SeekStart, 4, 4, nil},
		{10, karnal.SeekCurrent, -4, 6, nil},
		{10, karnal.SeekEnd, -1, 99, nil},
		{10, karnal.SeekCurrent, -11, 0, kerr.ErrInvalidArgument},
		{10, 7, 0, 0, kerr.ErrInvalidArgument},
	} {
		got, err := SeekWithin(tc.current, 100, tc.whence, tc.offset)
		if got != tc.want || err != tc.err {
			t.Errorf("SeekWithin(%d, 100, %d, %d) = %d, %v, want %d, %v", tc.current, tc.whence, tc.offset, got, err, tc.want, tc.err)
		}
	}
}
