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
	"testing"

	"github.com/google/go-cmp/cmp"
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/arch"
)

func sum(_ *Thread, args arch.SyscallArguments) (uint64, error) {
	return args[0].Uint64() + args[1].Uint64(), nil
}

func newTestTable() *SyscallTable {
	s := &SyscallTable{
		Arch: arch.Sim,
		Table: map[uint64]Syscall{
			karnal.SysResourceAcquire: {Name: "sum", Fn: sum},
			karnal.SysResourceRead: {
				Name: "huge",
				Fn: func(*Thread, arch.SyscallArguments) (uint64, error) {
					return karnal.MaxReturn + 1, nil
				},
			},
			karnal.SysResourceWrite: {Name: "fails", Fn: func(*Thread, arch.SyscallArguments) (uint64, error) {
				return 0, kerr.ErrBusy
			}},
			karnal.SysResourceSeek: {Name: "declared-only"},
		},
	}
	s.Init()
	return s
}

func TestTableLookup(t *testing.T) {
	table := newTestTable()
	if sc, ok := table.Lookup(karnal.SysResourceAcquire); !ok || sc.Name != "sum" {
		t.Errorf("Lookup(acquire) = %+v, %t", sc, ok)
	}
	// Entries without an implementation are unknown.
	if _, ok := table.Lookup(karnal.SysResourceSeek); ok {
		t.Errorf("Lookup found an entry without Fn")
	}
	if _, ok := table.Lookup(0); ok {
		t.Errorf("Lookup(0) found an entry")
	}
	want := []uint64{karnal.SysResourceAcquire, karnal.SysResourceRead, karnal.SysResourceWrite}
	if diff := cmp.Diff(want, table.Numbers()); diff != "" {
		t.Errorf("Numbers() mismatch (-want +got):\n%s", diff)
	}
}

func TestTableCall(t *testing.T) {
	table := newTestTable()
	var args arch.SyscallArguments
	args[0].Value, args[1].Value = 40, 2

	for _, tc := range []struct {
		no   uint64
		want int64
	}{
		{karnal.SysResourceAcquire, 42},
		{karnal.SysResourceRead, int64(karnal.CodeInternalError)},
		{karnal.SysResourceWrite, int64(karnal.CodeBusy)},
		{karnal.SysResourceSeek, int64(karnal.CodeNotSupported)},
		{999, int64(karnal.CodeNotSupported)},
	} {
		// None of these declare buffers, so no thread is needed.
		v, err := table.Call(nil, tc.no, args)
		if got := kerr.ToReturn(v, err); got != tc.want {
			t.Errorf("Call(%d) returned %d, want %d", tc.no, got, tc.want)
		}
	}
}

func TestPointerArgLength(t *testing.T) {
	var args arch.SyscallArguments
	args[1].Value = 42
	if got := (PointerArg{Ptr: 0, Len: 1, Access: hostarch.Write}).length(args); got != 42 {
		t.Errorf("length from argument = %d, want 42", got)
	}
	if got := (PointerArg{Ptr: 0, Len: -1, Size: karnal.SizeofResourceStatus}).length(args); got != karnal.SizeofResourceStatus {
		t.Errorf("fixed length = %d, want %d", got, karnal.SizeofResourceStatus)
	}
}

func BenchmarkTableCall(b *testing.B) {
	table := newTestTable()
	var args arch.SyscallArguments
	for i := 0; i < b.N; i++ {
		table.Call(nil, karnal.SysResourceAcquire, args)
	}
}
