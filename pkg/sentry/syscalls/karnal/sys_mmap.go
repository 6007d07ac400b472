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

package karnal

import (
	"math"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/arch"
	"karnal.dev/karnal64/pkg/sentry/kernel"
	"karnal.dev/karnal64/pkg/sentry/mm"
)

func permsArg(a arch.SyscallArgument) (hostarch.AccessType, error) {
	v := a.Uint64()
	if v > math.MaxUint32 || karnal.Perms(v)&^karnal.PermMask != 0 {
		return hostarch.NoAccess, kerr.ErrInvalidArgument
	}
	return hostarch.FromPerms(karnal.Perms(v)), nil
}

// backingPerms returns the most a mapping of a resource opened with mode may
// be granted. Private mappings may always be written.
func backingPerms(mode karnal.Mode, flags karnal.MapFlags) hostarch.AccessType {
	return hostarch.AccessType{
		Read:    mode.Has(karnal.ModeRead),
		Write:   mode.Has(karnal.ModeWrite) || flags.Has(karnal.MapPrivate),
		Execute: mode.Has(karnal.ModeExecute),
	}
}

// MemoryMap implements memory_map.
func MemoryMap(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
	addr := args[0].Pointer()
	size := args[1].SizeT()
	perms, err := permsArg(args[2])
	if err != nil {
		return 0, err
	}
	flags := args[3].Uint64()
	backing := kernel.Handle(args[4].Uint64())
	if flags > math.MaxUint32 {
		return 0, kerr.ErrInvalidArgument
	}

	opts := mm.MapOpts{
		Addr:   addr,
		Length: size,
		Perms:  perms,
		Flags:  karnal.MapFlags(flags),
	}
	if backing != karnal.NoBacking {
		he, err := t.Task().Handles().Get(backing)
		if err != nil {
			return 0, err
		}
		if !he.Mode.Has(karnal.ModeRead) {
			return 0, kerr.ErrPermissionDenied
		}
		opts.Backing = he.Provider
		opts.MaxPerms = backingPerms(he.Mode, opts.Flags)
	}
	v, err := t.MemoryManager().Map(t, opts)
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

// MemoryUnmap implements memory_unmap.
func MemoryUnmap(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
	return 0, t.MemoryManager().Unmap(t, args[0].Pointer(), args[1].SizeT())
}

// MemoryProtect implements memory_protect.
func MemoryProtect(t *kernel.Thread, args arch.SyscallArguments) (uint64, error) {
	perms, err := permsArg(args[2])
	if err != nil {
		return 0, err
	}
	return 0, t.MemoryManager().Protect(t, args[0].Pointer(), args[1].SizeT(), perms)
}
