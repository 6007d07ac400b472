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

package karnal

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResourceStatusLayout(t *testing.T) {
	s := ResourceStatus{Flags: StatusReadable | StatusSeekable | StatusHasSize, Size: 0x0102030405060708}
	buf := make([]byte, SizeofResourceStatus)
	if rest := s.MarshalBytes(buf); len(rest) != 0 {
		t.Fatalf("MarshalBytes left %d bytes", len(rest))
	}
	want := []byte{
		0x0d, 0, 0, 0,
		0, 0, 0, 0,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
	}
	if diff := cmp.Diff(want, buf); diff != "" {
		t.Errorf("layout mismatch (-want +got):\n%s", diff)
	}
}

func TestCodeString(t *testing.T) {
	for _, tc := range []struct {
		code Code
		want string
	}{
		{CodeBadHandle, "BadHandle"},
		{CodeNoMessage, "NoMessage"},
		{3, "Ok"},
		{-100, "Unknown"},
	} {
		if got := tc.code.String(); got != tc.want {
			t.Errorf("Code(%d).String() = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestModeHas(t *testing.T) {
	m := ModeRead | ModeWrite | ModeNonblock
	if !m.Has(ModeRead | ModeWrite) {
		t.Errorf("%#x should have READ|WRITE", m)
	}
	if m.Has(ModeExecute) {
		t.Errorf("%#x should not have EXECUTE", m)
	}
	if got := m.Access(); got != ModeRead|ModeWrite {
		t.Errorf("Access() = %#x, want %#x", got, ModeRead|ModeWrite)
	}
}
