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

// Package kerr contains the Karnal64 error codes exported as *errors.Error
// pointers. This allows for fast comparison and return operations.
package kerr

import (
	"context"
	goerrors "errors"
	"sort"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors"
)

// The closed set of kernel errors. Every failure a system call reports is
// one of these.
var (
	noError *errors.Error = nil

	ErrPermissionDenied = errors.New(karnal.CodePermissionDenied, "permission denied")
	ErrNotFound         = errors.New(karnal.CodeNotFound, "not found")
	ErrInvalidArgument  = errors.New(karnal.CodeInvalidArgument, "invalid argument")
	ErrInterrupted      = errors.New(karnal.CodeInterrupted, "interrupted")
	ErrBadHandle        = errors.New(karnal.CodeBadHandle, "bad handle")
	ErrBusy             = errors.New(karnal.CodeBusy, "resource busy")
	ErrOutOfMemory      = errors.New(karnal.CodeOutOfMemory, "out of memory")
	ErrBadAddress       = errors.New(karnal.CodeBadAddress, "bad address")
	ErrAlreadyExists    = errors.New(karnal.CodeAlreadyExists, "already exists")
	ErrNotSupported     = errors.New(karnal.CodeNotSupported, "not supported")
	ErrNoMessage        = errors.New(karnal.CodeNoMessage, "no message")
	ErrInternal         = errors.New(karnal.CodeInternalError, "internal error")
)

// Internal errors. They never reach user mode as themselves: the blocking layer
// either waits and retries, or reports the code they carry.
var (
	// ErrWouldBlock is returned by providers when an operation cannot
	// complete without waiting. Non-blocking callers see Busy.
	ErrWouldBlock = errors.New(karnal.CodeBusy, "operation would block")

	// ErrWouldBlockEmpty is ErrWouldBlock for message sources: a
	// non-blocking caller, or one whose deadline expired, sees NoMessage.
	ErrWouldBlockEmpty = errors.New(karnal.CodeNoMessage, "no message available")
)

// IsWouldBlock returns true if err asks the caller to wait and retry.
func IsWouldBlock(err error) bool {
	return err == ErrWouldBlock || err == ErrWouldBlockEmpty
}

// Settle converts an internal error into the public error with the same code.
func Settle(err error) error {
	if err == nil {
		return nil
	}
	return FromCode(Code(err))
}

var byCode = map[karnal.Code]*errors.Error{
	karnal.CodePermissionDenied: ErrPermissionDenied,
	karnal.CodeNotFound:         ErrNotFound,
	karnal.CodeInvalidArgument:  ErrInvalidArgument,
	karnal.CodeInterrupted:      ErrInterrupted,
	karnal.CodeBadHandle:        ErrBadHandle,
	karnal.CodeBusy:             ErrBusy,
	karnal.CodeOutOfMemory:      ErrOutOfMemory,
	karnal.CodeBadAddress:       ErrBadAddress,
	karnal.CodeAlreadyExists:    ErrAlreadyExists,
	karnal.CodeNotSupported:     ErrNotSupported,
	karnal.CodeNoMessage:        ErrNoMessage,
	karnal.CodeInternalError:    ErrInternal,
}

// FromCode returns the error for a negative return code. Codes outside the
// closed set map to ErrInternal.
func FromCode(c karnal.Code) *errors.Error {
	if e, ok := byCode[c]; ok {
		return e
	}
	return ErrInternal
}

// Translate converts err into a kernel error. nil translates to nil. Context
// cancellation becomes ErrInterrupted, deadline expiry ErrBusy, and every
// error not otherwise known becomes ErrInternal.
func Translate(err error) *errors.Error {
	if err == nil {
		return noError
	}
	var ke *errors.Error
	if goerrors.As(err, &ke) {
		return ke
	}
	switch {
	case goerrors.Is(err, context.Canceled):
		return ErrInterrupted
	case goerrors.Is(err, context.DeadlineExceeded):
		return ErrBusy
	}
	return ErrInternal
}

// Code returns the return-register encoding of err: 0 for nil.
func Code(err error) karnal.Code {
	if e := Translate(err); e != nil {
		return e.Code()
	}
	return 0
}

// ToReturn encodes a handler result for the return register. A success value
// that does not fit in int64 is an internal error.
func ToReturn(v uint64, err error) int64 {
	if err != nil {
		return int64(Code(err))
	}
	if v > karnal.MaxReturn {
		return int64(karnal.CodeInternalError)
	}
	return int64(v)
}

// FromReturn decodes a return register value.
func FromReturn(rv int64) (uint64, error) {
	if rv < 0 {
		return 0, FromCode(karnal.Code(rv))
	}
	return uint64(rv), nil
}

// Equals compares a kernel error to any error, translating the latter.
func Equals(e *errors.Error, err error) bool {
	return Translate(err) == e
}

// All returns the closed set of public errors, most negative code last.
func All() []*errors.Error {
	all := make([]*errors.Error, 0, len(byCode))
	for _, e := range byCode {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code() > all[j].Code() })
	return all
}
