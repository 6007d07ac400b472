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

package syscalls

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/arch"
	"karnal.dev/karnal64/pkg/sentry/kernel"
)

func TestPointerHelpers(t *testing.T) {
	for _, tc := range []struct {
		name string
		got  kernel.PointerArg
		want kernel.PointerArg
	}{
		{"In", In(1, 2), kernel.PointerArg{Ptr: 1, Len: 2, Access: hostarch.Read}},
		{"Out", Out(1, 2), kernel.PointerArg{Ptr: 1, Len: 2, Access: hostarch.Write}},
		{"OutFixed", OutFixed(1, 16), kernel.PointerArg{Ptr: 1, Len: -1, Size: 16, Access: hostarch.Write}},
	} {
		if diff := cmp.Diff(tc.want, tc.got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", tc.name, diff)
		}
	}
}

func TestError(t *testing.T) {
	sc := Error("broken", kerr.ErrNotSupported)
	if sc.Name != "broken" {
		t.Errorf("Name = %q, want %q", sc.Name, "broken")
	}
	if _, err := sc.Fn(nil, arch.SyscallArguments{}); err != kerr.ErrNotSupported {
		t.Errorf("Fn() error = %v, want %v", err, kerr.ErrNotSupported)
	}
}
