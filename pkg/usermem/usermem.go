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

// Package usermem governs access to user memory.
package usermem

import (
	"encoding/binary"

	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/context"
)

// IO provides access to the contents of a virtual memory space.
type IO interface {
	// CopyOut copies len(src) bytes from src to the memory mapped at addr.
	// It returns the number of bytes copied. If the number of bytes copied
	// is < len(src), it returns a non-nil error explaining why.
	CopyOut(ctx context.Context, addr hostarch.Addr, src []byte) (int, error)

	// CopyIn copies len(dst) bytes from the memory mapped at addr to dst.
	// It returns the number of bytes copied. If the number of bytes copied
	// is < len(dst), it returns a non-nil error explaining why.
	CopyIn(ctx context.Context, addr hostarch.Addr, dst []byte) (int, error)

	// Validate checks that [addr, addr+length) is user memory permitting
	// at. A zero length is always valid. Validation is advisory: a later
	// copy may still fail if the memory changes in between.
	Validate(addr hostarch.Addr, length uint64, at hostarch.AccessType) error
}

// CopyInBytes copies length bytes at addr into a new slice.
func CopyInBytes(ctx context.Context, uio IO, addr hostarch.Addr, length uint64) ([]byte, error) {
	buf := make([]byte, length)
	n, err := uio.CopyIn(ctx, addr, buf)
	return buf[:n], err
}

// CopyStringIn copies a string of length bytes at addr. It fails with
// InvalidArgument if length exceeds maxlen.
func CopyStringIn(ctx context.Context, uio IO, addr hostarch.Addr, length, maxlen uint64) (string, error) {
	if length > maxlen {
		return "", kerr.ErrInvalidArgument
	}
	b, err := CopyInBytes(ctx, uio, addr, length)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CopyUint64Out writes v at addr in little-endian byte order.
func CopyUint64Out(ctx context.Context, uio IO, addr hostarch.Addr, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := uio.CopyOut(ctx, addr, buf[:])
	return err
}

// CopyUint64In reads a little-endian uint64 at addr.
func CopyUint64In(ctx context.Context, uio IO, addr hostarch.Addr) (uint64, error) {
	var buf [8]byte
	if _, err := uio.CopyIn(ctx, addr, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
