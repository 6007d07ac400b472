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

// Package resource defines the provider interface behind every kernel
// resource and the registry that maps resource names to providers.
package resource

import (
	"math"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/sentry/context"
)

// Provider is the capability set of a resource. Providers are shared by the
// registry and by every handle naming them, so all methods must be safe for
// concurrent use.
//
// Operations that cannot complete without waiting return kerr.ErrWouldBlock
// (or kerr.ErrWouldBlockEmpty) and implement waiter.Waitable; the system call
// layer waits for readiness and retries.
type Provider interface {
	// Read reads into dst from offset and returns the number of bytes
	// read. Providers that are not seekable ignore offset.
	Read(ctx context.Context, dst []byte, offset uint64) (uint64, error)

	// Write writes src at offset and returns the number of bytes written.
	Write(ctx context.Context, src []byte, offset uint64) (uint64, error)

	// Control performs a provider-defined request.
	Control(ctx context.Context, request, arg uint64) (uint64, error)

	// Seek computes a new position from the handle's current position.
	Seek(ctx context.Context, current uint64, whence karnal.SeekWhence, offset int64) (uint64, error)

	// Status reports the provider's capabilities and size.
	Status(ctx context.Context) Status

	// SupportsMode returns true if handles with the access bits of mode may
	// be issued.
	SupportsMode(mode karnal.Mode) bool
}

// Status is the result of Provider.Status.
type Status struct {
	Readable bool
	Writable bool
	Seekable bool

	// Size is valid if HasSize is set.
	Size    uint64
	HasSize bool
}

// ABI returns the record written by resource_status.
func (s Status) ABI() karnal.ResourceStatus {
	var rs karnal.ResourceStatus
	if s.Readable {
		rs.Flags |= karnal.StatusReadable
	}
	if s.Writable {
		rs.Flags |= karnal.StatusWritable
	}
	if s.Seekable {
		rs.Flags |= karnal.StatusSeekable
	}
	if s.HasSize {
		rs.Flags |= karnal.StatusHasSize
		rs.Size = s.Size
	}
	return rs
}

// NoRead implements Provider.Read for providers that cannot be read.
type NoRead struct{}

// Read implements Provider.Read.
func (NoRead) Read(context.Context, []byte, uint64) (uint64, error) {
	return 0, kerr.ErrNotSupported
}

// NoWrite implements Provider.Write for providers that cannot be written.
type NoWrite struct{}

// Write implements Provider.Write.
func (NoWrite) Write(context.Context, []byte, uint64) (uint64, error) {
	return 0, kerr.ErrNotSupported
}

// NoControl implements Provider.Control for providers without requests.
type NoControl struct{}

// Control implements Provider.Control.
func (NoControl) Control(context.Context, uint64, uint64) (uint64, error) {
	return 0, kerr.ErrNotSupported
}

// NoSeek implements Provider.Seek for providers that are not seekable.
type NoSeek struct{}

// Seek implements Provider.Seek.
func (NoSeek) Seek(context.Context, uint64, karnal.SeekWhence, int64) (uint64, error) {
	return 0, kerr.ErrNotSupported
}

// Modes implements Provider.SupportsMode for a fixed set of access bits.
type Modes karnal.Mode

// SupportsMode implements Provider.SupportsMode.
func (m Modes) SupportsMode(mode karnal.Mode) bool {
	return karnal.Mode(m).Has(mode.Access())
}

// SeekWithin computes a seek for a provider of the given size. The result
// may lie beyond size but never below zero.
func SeekWithin(current, size uint64, whence karnal.SeekWhence, offset int64) (uint64, error) {
	var base uint64
	switch whence {
	case karnal.SeekStart:
	case karnal.SeekCurrent:
		base = current
	case karnal.SeekEnd:
		base = size
	default:
		return 0, kerr.ErrInvalidArgument
	}
	switch {
	case offset >= 0:
		if base > math.MaxInt64-uint64(offset) {
			return 0, kerr.ErrInvalidArgument
		}
		return base + uint64(offset), nil
	case uint64(-offset) > base:
		return 0, kerr.ErrInvalidArgument
	default:
		return base - uint64(-offset), nil
	}
}
