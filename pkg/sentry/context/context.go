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

// Package context defines the kernel's internal context type.
//
// The kernel's internal context satisfies Go's context.Context interface, so
// deadlines and cancellation flow through it, and also carries a logger. A
// kernel thread is a Context; providers receive one on every call.
package context

import (
	"context"

	"karnal.dev/karnal64/pkg/log"
)

type contextID int

const (
	// CtxTaskID is the current task ID when a context represents a thread
	// context. The value is represented as a uint64.
	CtxTaskID contextID = iota

	// CtxThreadID is the current thread ID when a context represents a
	// thread context. The value is represented as a uint64.
	CtxThreadID

	// CtxNonblocking is true when the operation was requested through a
	// handle carrying NONBLOCK.
	CtxNonblocking
)

// TaskIDFromContext returns the current task ID.
func TaskIDFromContext(ctx context.Context) (uint64, bool) {
	if v := ctx.Value(CtxTaskID); v != nil {
		return v.(uint64), true
	}
	return 0, false
}

// ThreadIDFromContext returns the current thread ID.
func ThreadIDFromContext(ctx context.Context) (uint64, bool) {
	if v := ctx.Value(CtxThreadID); v != nil {
		return v.(uint64), true
	}
	return 0, false
}

// Nonblocking returns true if the operation must not block.
func Nonblocking(ctx context.Context) bool {
	v, _ := ctx.Value(CtxNonblocking).(bool)
	return v
}

// Context represents a thread of execution in the kernel: a kernel thread
// running a system call, the init orchestrator, or a test.
type Context interface {
	context.Context
	log.Logger
}

// logContext implements Context with a logger over a Go context.
type logContext struct {
	context.Context
	log.Logger
}

// WithLogger returns a Context with the given logger over ctx.
func WithLogger(ctx context.Context, l log.Logger) Context {
	return logContext{Context: ctx, Logger: l}
}

// WithValue returns a copy of ctx where key is associated with val.
func WithValue(ctx Context, key, val any) Context {
	return logContext{Context: context.WithValue(ctx, key, val), Logger: ctx}
}

// WithNonblocking marks operations under the returned context as
// non-blocking.
func WithNonblocking(ctx Context) Context {
	return WithValue(ctx, CtxNonblocking, true)
}

// Background returns an empty context using the default logger.
//
// Users should be wary of using a Background context. Please tag any use with
// FIXME and a note to remove this use.
//
// Generally, one should use the Task as their context when available, or avoid
// having to use a context in places where a Task is unavailable.
//
// Using a Background context for tests is fine, as long as no values are
// needed from the context in the tested code paths.
func Background() Context {
	return logContext{Context: context.Background(), Logger: log.Log()}
}
