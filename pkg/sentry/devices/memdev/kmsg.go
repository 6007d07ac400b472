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
	"bytes"
	"sync"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// maxKmsgLine bounds a buffered partial line. Longer lines are split.
const maxKmsgLine = 1024

// Kmsg implements resource.Provider for karnal://device/kmsg. Each line
// written is emitted to the kernel log of the writing thread.
type Kmsg struct {
	resource.NoRead
	resource.NoControl
	resource.NoSeek

	mu sync.Mutex

	// partial holds the unterminated tail of previous writes.
	partial []byte
}

var _ resource.Provider = (*Kmsg)(nil)

// Write implements resource.Provider.Write.
func (k *Kmsg) Write(ctx context.Context, src []byte, _ uint64) (uint64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	rest := src
	for len(rest) > 0 {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			k.partial = append(k.partial, rest...)
			if len(k.partial) >= maxKmsgLine {
				k.emitLocked(ctx)
			}
			break
		}
		k.partial = append(k.partial, rest[:i]...)
		k.emitLocked(ctx)
		rest = rest[i+1:]
	}
	return uint64(len(src)), nil
}

func (k *Kmsg) emitLocked(ctx context.Context) {
	ctx.Infof("kmsg: %s", k.partial)
	k.partial = k.partial[:0]
}

// Status implements resource.Provider.Status.
func (*Kmsg) Status(context.Context) resource.Status {
	return resource.Status{Writable: true}
}

// SupportsMode implements resource.Provider.SupportsMode.
func (*Kmsg) SupportsMode(mode karnal.Mode) bool {
	return mode.Access() == karnal.ModeWrite
}
