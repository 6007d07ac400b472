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
	"fmt"
)

// Handle is a per-task token naming a resource. The low 32 bits are the slot
// index in the task's handle table and the high 32 bits the slot's
// generation. Generations start at 1, so the zero Handle is never valid.
type Handle uint64

// newHandle packs a slot index and generation.
func newHandle(index, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(index))
}

// Index returns the slot index.
func (h Handle) Index() uint32 { return uint32(h) }

// Generation returns the slot generation.
func (h Handle) Generation() uint32 { return uint32(h >> 32) }

// Valid returns true if h could have been issued by a handle table. It does
// not mean the handle is live.
func (h Handle) Valid() bool { return h.Generation() != 0 }

// String implements fmt.Stringer.String.
func (h Handle) String() string {
	return fmt.Sprintf("%d:%d", h.Generation(), h.Index())
}
