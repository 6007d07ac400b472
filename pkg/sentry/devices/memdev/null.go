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

package memdev

import (
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// Null implements resource.Provider for karnal://device/null. Reads see end
// of data and writes are discarded.
type Null struct {
	resource.NoControl
	resource.NoSeek
}

var _ resource.Provider = Null{}

// Read implements resource.Provider.Read.
func (Null) Read(context.Context, []byte, uint64) (uint64, error) {
	return 0, nil
}

// Write implements resource.Provider.Write.
func (Null) Write(_ context.Context, src []byte, _ uint64) (uint64, error) {
	return uint64(len(src)), nil
}

// Status implements resource.Provider.Status.
func (Null) Status(context.Context) resource.Status {
	return resource.Status{Readable: true, Writable: true}
}

// SupportsMode implements resource.Provider.SupportsMode.
func (Null) SupportsMode(mode karnal.Mode) bool {
	return !mode.Has(karnal.ModeExecute)
}

// Zero implements resource.Provider for karnal://device/zero. Reads fill the
// buffer with zeroes and writes are discarded.
type Zero struct {
	Null
}

var _ resource.Provider = Zero{}

// Read implements resource.Provider.Read.
func (Zero) Read(_ context.Context, dst []byte, _ uint64) (uint64, error) {
	clear(dst)
	return uint64(len(dst)), nil
}
