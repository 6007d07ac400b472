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
	"errors"

	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
)

// CopyInBytes copies len(dst) bytes from the task's memory at addr into dst.
// See checkCopy for the error handling.
func (t *Thread) CopyInBytes(addr hostarch.Addr, dst []byte) (int, error) {
	n, err := t.tk.mm.CopyIn(t, addr, dst)
	return n, t.checkCopy(err)
}

// CopyOutBytes copies src to the task's memory at addr.
func (t *Thread) CopyOutBytes(addr hostarch.Addr, src []byte) (int, error) {
	n, err := t.tk.mm.CopyOut(t, addr, src)
	return n, t.checkCopy(err)
}

// ZeroOut zeroes length bytes of the task's memory at addr.
func (t *Thread) ZeroOut(addr hostarch.Addr, length int) (int, error) {
	n, err := t.tk.mm.ZeroOut(t, addr, length)
	return n, t.checkCopy(err)
}

// checkCopy ends the task when a frame could not be allocated for a kernel
// access to its memory. The call's result is then never observed; a
// partial transfer is not reported as a short success.
func (t *Thread) checkCopy(err error) error {
	if err != nil && errors.Is(err, kerr.ErrOutOfMemory) {
		t.Warningf("out of memory accessing user memory")
		t.tk.exitWithError(err)
	}
	return err
}
