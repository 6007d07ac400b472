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

// Package ramdisk implements a fixed-size random-access RAM disk.
package ramdisk

import (
	"fmt"
	"sync"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// MaxSize bounds the size of a RAM disk.
const MaxSize = 1 << 30

// Name returns the resource name of the i-th RAM disk.
func Name(i int) string {
	return fmt.Sprintf("%sramdisk%d", resource.DevicePrefix, i)
}

// Disk implements resource.Provider for a RAM disk. Reads and writes are
// positioned and clipped to the disk size. A write entirely beyond the end
// fails with OutOfMemory.
type Disk struct {
	resource.NoControl
	resource.Modes

	mu   sync.RWMutex
	data []byte
}

var _ resource.Provider = (*Disk)(nil)

// New returns a zeroed disk of size bytes.
func New(size uint64) (*Disk, error) {
	if size == 0 || size > MaxSize {
		return nil, fmt.Errorf("ramdisk size %d out of range (0, %d]", size, uint64(MaxSize))
	}
	return &Disk{
		Modes: resource.Modes(karnal.ModeRead | karnal.ModeWrite),
		data:  make([]byte, size),
	}, nil
}

// Read implements resource.Provider.Read.
func (d *Disk) Read(_ context.Context, dst []byte, offset uint64) (uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if offset >= uint64(len(d.data)) {
		return 0, nil
	}
	return uint64(copy(dst, d.data[offset:])), nil
}

// Write implements resource.Provider.Write.
func (d *Disk) Write(_ context.Context, src []byte, offset uint64) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if offset >= uint64(len(d.data)) {
		return 0, kerr.ErrOutOfMemory
	}
	return uint64(copy(d.data[offset:], src)), nil
}

// Seek implements resource.Provider.Seek.
func (d *Disk) Seek(_ context.Context, current uint64, whence karnal.SeekWhence, offset int64) (uint64, error) {
	return resource.SeekWithin(current, uint64(len(d.data)), whence, offset)
}

// Status implements resource.Provider.Status.
func (d *Disk) Status(context.Context) resource.Status {
	return resource.Status{
		Readable: true,
		Writable: true,
		Seekable: true,
		Size:     uint64(len(d.data)),
		HasSize:  true,
	}
}

// Register registers count disks of size bytes as karnal://device/ramdiskN.
func Register(r *resource.Registry, count int, size uint64) error {
	for i := 0; i < count; i++ {
		d, err := New(size)
		if err != nil {
			return err
		}
		if _, err := r.Register(Name(i), d, karnal.ModeRead|karnal.ModeWrite); err != nil {
			return err
		}
	}
	return nil
}
