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

package sim

import (
	"fmt"

	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/platform"
)

// memory implements platform.Memory over a host byte slice.
type memory struct {
	data []byte
}

func newMemory(size uint64) *memory {
	return &memory{data: make([]byte, size)}
}

// Size implements platform.Memory.Size.
func (m *memory) Size() uint64 { return uint64(len(m.data)) }

// Slice implements platform.Memory.Slice.
func (m *memory) Slice(pa platform.PhysAddr, length uint64) []byte {
	off := uint64(pa)
	if length > hostarch.PageSize-off%hostarch.PageSize || off+length > uint64(len(m.data)) {
		panic(fmt.Sprintf("physical range [%#x, %#x) crosses a page or the end of memory", off, off+length))
	}
	return m.data[off : off+length : off+length]
}
