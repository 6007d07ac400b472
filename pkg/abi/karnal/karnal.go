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

// Package karnal contains the constants and wire formats of the Karnal64
// system call interface. Values here are stable ABI and shared by the kernel
// and user programs.
package karnal

import "math"

// Error codes returned in the return register. Success is any non-negative
// value.
const (
	CodePermissionDenied Code = -1
	CodeNotFound         Code = -2
	CodeInvalidArgument  Code = -3
	CodeInterrupted      Code = -4
	CodeBadHandle        Code = -9
	CodeBusy             Code = -11
	CodeOutOfMemory      Code = -12
	CodeBadAddress       Code = -14
	CodeAlreadyExists    Code = -17
	CodeNotSupported     Code = -38
	CodeNoMessage        Code = -61
	CodeInternalError    Code = -255
)

// Code is a Karnal64 error code as it appears in the return register.
type Code int64

// String implements fmt.Stringer.String.
func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	if c >= 0 {
		return "Ok"
	}
	return "Unknown"
}

var codeNames = map[Code]string{
	CodePermissionDenied: "PermissionDenied",
	CodeNotFound:         "NotFound",
	CodeInvalidArgument:  "InvalidArgument",
	CodeInterrupted:      "Interrupted",
	CodeBadHandle:        "BadHandle",
	CodeBusy:             "Busy",
	CodeOutOfMemory:      "OutOfMemory",
	CodeBadAddress:       "BadAddress",
	CodeAlreadyExists:    "AlreadyExists",
	CodeNotSupported:     "NotSupported",
	CodeNoMessage:        "NoMessage",
	CodeInternalError:    "InternalError",
}

// MaxReturn is the largest success value representable in the return
// register.
const MaxReturn = math.MaxInt64

// Mode is a set of access-mode bits requested when acquiring a resource.
type Mode uint32

// Access modes.
const (
	ModeRead      Mode = 1 << 0
	ModeWrite     Mode = 1 << 1
	ModeExecute   Mode = 1 << 2
	ModeCreate    Mode = 1 << 3
	ModeExclusive Mode = 1 << 4
	ModeNonblock  Mode = 1 << 5

	// ModeMask is the set of all defined mode bits.
	ModeMask = ModeRead | ModeWrite | ModeExecute | ModeCreate | ModeExclusive | ModeNonblock

	// ModeAccess is the set of bits a provider must support for a handle
	// to be issued.
	ModeAccess = ModeRead | ModeWrite | ModeExecute
)

// Has returns true if all bits in o are set in m.
func (m Mode) Has(o Mode) bool { return m&o == o }

// Access returns the access bits of m.
func (m Mode) Access() Mode { return m & ModeAccess }

// Perms is a set of memory protection bits.
type Perms uint32

// Memory permissions.
const (
	PermRead    Perms = 1 << 0
	PermWrite   Perms = 1 << 1
	PermExecute Perms = 1 << 2

	PermMask = PermRead | PermWrite | PermExecute
)

// MapFlags control memory_map.
type MapFlags uint32

// Mapping flags.
const (
	MapShared    MapFlags = 1 << 0
	MapPrivate   MapFlags = 1 << 1
	MapFixed     MapFlags = 1 << 2
	MapAnonymous MapFlags = 1 << 3

	MapMask = MapShared | MapPrivate | MapFixed | MapAnonymous
)

// Has returns true if f contains every flag of o.
func (f MapFlags) Has(o MapFlags) bool { return f&o == o }

// SeekWhence is the reference point for resource_seek.
type SeekWhence uint32

// Seek origins.
const (
	SeekStart   SeekWhence = 0
	SeekCurrent SeekWhence = 1
	SeekEnd     SeekWhence = 2
)

// OffsetCursor as the offset argument of resource_read or resource_write
// selects the handle's cursor, which is advanced by the transfer.
const OffsetCursor = math.MaxUint64

// NoBacking as the backing argument of memory_map means "no resource".
const NoBacking = 0
