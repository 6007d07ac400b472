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

// Package sysdev implements the informational resources karnal://sys/memory
// and karnal://sys/kernel.
package sysdev

import (
	"time"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// Resource names.
const (
	MemoryName = resource.SysPrefix + "memory"
	KernelName = resource.SysPrefix + "kernel"
)

// MemorySource reports physical memory usage.
type MemorySource interface {
	Info() karnal.MemoryInfo
}

// Memory implements resource.Provider for karnal://sys/memory. Reading it
// returns a karnal.MemoryInfo record sampled at the time of the read.
type Memory struct {
	resource.NoWrite
	resource.NoControl

	src MemorySource
}

var _ resource.Provider = (*Memory)(nil)

// NewMemory returns a provider reporting src.
func NewMemory(src MemorySource) *Memory {
	return &Memory{src: src}
}

// Read implements resource.Provider.Read.
func (m *Memory) Read(_ context.Context, dst []byte, offset uint64) (uint64, error) {
	if offset >= karnal.SizeofMemoryInfo {
		return 0, nil
	}
	info := m.src.Info()
	var rec [karnal.SizeofMemoryInfo]byte
	info.MarshalBytes(rec[:])
	return uint64(copy(dst, rec[offset:])), nil
}

// Seek implements resource.Provider.Seek.
func (m *Memory) Seek(_ context.Context, current uint64, whence karnal.SeekWhence, offset int64) (uint64, error) {
	return resource.SeekWithin(current, karnal.SizeofMemoryInfo, whence, offset)
}

// Status implements resource.Provider.Status.
func (m *Memory) Status(context.Context) resource.Status {
	return resource.Status{Readable: true, Seekable: true, Size: karnal.SizeofMemoryInfo, HasSize: true}
}

// SupportsMode implements resource.Provider.SupportsMode.
func (m *Memory) SupportsMode(mode karnal.Mode) bool {
	return mode.Access() == karnal.ModeRead
}

const (
	versionMajor = 0
	versionMinor = 1
	versionPatch = 0
)

// Version is the kernel version reported by KernelInfoVersion, encoded as
// major<<32 | minor<<16 | patch.
const Version = versionMajor<<32 | versionMinor<<16 | versionPatch

// KernelSource reports kernel-wide facts.
type KernelSource interface {
	// CPUs returns the number of CPUs.
	CPUs() int

	// Uptime returns the time since boot.
	Uptime() time.Duration
}

// Kernel implements resource.Provider for karnal://sys/kernel. It answers
// the KernelInfo control requests.
type Kernel struct {
	resource.NoRead
	resource.NoWrite
	resource.NoSeek

	src KernelSource
}

var _ resource.Provider = (*Kernel)(nil)

// NewKernel returns a provider reporting src.
func NewKernel(src KernelSource) *Kernel {
	return &Kernel{src: src}
}

// Control implements resource.Provider.Control.
func (k *Kernel) Control(_ context.Context, request, _ uint64) (uint64, error) {
	switch request {
	case karnal.KernelInfoVersion:
		return Version, nil
	case karnal.KernelInfoCPUs:
		return uint64(k.src.CPUs()), nil
	case karnal.KernelInfoPageSize:
		return hostarch.PageSize, nil
	case karnal.KernelInfoUptime:
		return uint64(k.src.Uptime().Nanoseconds()), nil
	default:
		return 0, kerr.ErrNotSupported
	}
}

// Status implements resource.Provider.Status.
func (k *Kernel) Status(context.Context) resource.Status {
	return resource.Status{Readable: true}
}

// SupportsMode implements resource.Provider.SupportsMode.
func (k *Kernel) SupportsMode(mode karnal.Mode) bool {
	return mode.Access() == karnal.ModeRead
}

// Register registers both providers in r.
func Register(r *resource.Registry, mem MemorySource, k KernelSource) error {
	if _, err := r.Register(MemoryName, NewMemory(mem), karnal.ModeRead); err != nil {
		return err
	}
	_, err := r.Register(KernelName, NewKernel(k), karnal.ModeRead)
	return err
}
