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

// Package memdev implements the memory-like devices karnal://device/null,
// karnal://device/zero and karnal://device/kmsg.
package memdev

import (
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// Device names.
const (
	NullName = resource.DevicePrefix + "null"
	ZeroName = resource.DevicePrefix + "zero"
	KmsgName = resource.DevicePrefix + "kmsg"
)

// Register registers all devices implemented by this package in r.
func Register(r *resource.Registry) error {
	rw := karnal.ModeRead | karnal.ModeWrite
	if _, err := r.Register(NullName, Null{}, rw); err != nil {
		return err
	}
	if _, err := r.Register(ZeroName, Zero{}, rw); err != nil {
		return err
	}
	_, err := r.Register(KmsgName, &Kmsg{}, karnal.ModeWrite)
	return err
}
