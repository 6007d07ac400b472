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

// Package ksync implements the kernel's synchronization resources: locks,
// counting semaphores and events.
//
// Operations never block inside the provider. When an operation cannot
// proceed it returns kerr.ErrWouldBlock, and the caller waits on the
// provider's waiter.Queue and retries.
package ksync

import (
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// Name prefixes. Acquiring a name under one of them with CREATE creates the
// object.
const (
	LockPrefix      = resource.SysPrefix + "sync/lock/"
	SemaphorePrefix = resource.SysPrefix + "sync/semaphore/"
	EventPrefix     = resource.SysPrefix + "sync/event/"
)

// defaultModes are the modes objects are created with.
const defaultModes = karnal.ModeRead | karnal.ModeWrite

// Register installs the factories for all synchronization objects in r.
func Register(r *resource.Registry) error {
	for prefix, f := range map[string]resource.Factory{
		LockPrefix: func(context.Context, string) (resource.Provider, karnal.Mode, error) {
			return NewLock(), defaultModes, nil
		},
		SemaphorePrefix: func(context.Context, string) (resource.Provider, karnal.Mode, error) {
			return NewSemaphore(0), defaultModes, nil
		},
		EventPrefix: func(context.Context, string) (resource.Provider, karnal.Mode, error) {
			return NewEvent(), defaultModes, nil
		},
	} {
		if err := r.RegisterFactory(prefix, f); err != nil {
			return err
		}
	}
	return nil
}

// owner identifies the calling thread.
func owner(ctx context.Context) (uint64, error) {
	id, ok := context.ThreadIDFromContext(ctx)
	if !ok {
		return 0, kerr.ErrPermissionDenied
	}
	return id, nil
}
