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

// Package contexttest builds a test context.Context.
package contexttest

import (
	"context"
	"testing"

	"karnal.dev/karnal64/pkg/log"
	kcontext "karnal.dev/karnal64/pkg/sentry/context"
)

// Context returns a Context that logs to t and is cancelled when the test
// finishes.
func Context(tb testing.TB) kcontext.Context {
	ctx, cancel := context.WithCancel(context.Background())
	tb.Cleanup(cancel)
	return kcontext.WithLogger(ctx, &log.BasicLogger{Level: log.Debug, Emitter: &log.TestEmitter{TestLogger: tb}})
}

// ThreadContext returns a Context identifying task tid and thread thid, as
// a kernel thread would.
func ThreadContext(tb testing.TB, tid, thid uint64) kcontext.Context {
	ctx := Context(tb)
	ctx = kcontext.WithValue(ctx, kcontext.CtxTaskID, tid)
	return kcontext.WithValue(ctx, kcontext.CtxThreadID, thid)
}
