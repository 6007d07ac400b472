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

// Package hostarch contains address and access types shared by the memory
// manager, the platform and the system call layer.
package hostarch

// Page geometry of the kernel. All architecture ports use 4 KiB pages.
const (
	PageShift = 12
	PageSize  = 1 << PageShift
)

// User address space bounds. User regions lie in
// [MinUserAddress, MaxUserAddress); everything at or above MaxUserAddress
// belongs to the kernel.
const (
	MinUserAddress Addr = PageSize
	MaxUserAddress Addr = 0x0000_8000_0000_0000

	// KernelBase is where the kernel half of every address space begins.
	KernelBase Addr = 0xFFFF_FF00_0000_0000
)

// PageRoundDown returns x rounded down to the nearest page boundary.
func PageRoundDown(x uint64) uint64 {
	return x &^ (PageSize - 1)
}

// PageRoundUp returns x rounded up to the nearest page boundary. ok is true
// iff rounding up did not wrap around.
func PageRoundUp(x uint64) (addr uint64, ok bool) {
	addr = PageRoundDown(x + PageSize - 1)
	ok = addr >= x
	return
}
