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

package sim

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/arch"
	"karnal.dev/karnal64/pkg/sentry/platform"
)

const (
	codeAddr = hostarch.Addr(0x1000)
	dataAddr = hostarch.Addr(0x2000)
)

func init() {
	RegisterProgram("sim-test-echo", func(u *User) {
		rv := u.Syscall(42, u.EntryArg(0), 2, 3)
		u.Store(dataAddr, []byte{byte(rv)})
		u.Syscall(43, uint64(u.Load(dataAddr, 1)[0]))
	})
}

// newMachine maps a code page for program name at codeAddr.
func newMachine(t *testing.T, name string) (*Platform, platform.ASID) {
	t.Helper()
	p, err := New(Options{MemorySize: 16 * hostarch.PageSize})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	as, err := p.MMU().NewAddressSpace()
	if err != nil {
		t.Fatalf("NewAddressSpace: %v", err)
	}
	copy(p.Memory().Slice(0, hostarch.PageSize), Code(name))
	if err := p.MMU().MapPage(as, codeAddr, 0, hostarch.FromPerms(5)); err != nil {
		t.Fatalf("MapPage: %v", err)
	}
	return p, as
}

func TestSwitchSyscallAndFault(t *testing.T) {
	p, as := newMachine(t, "sim-test-echo")
	ctx := context.Background()
	ac := p.NewArchContext()
	ac.SetupEntry(codeAddr, 0, 7)
	c := p.NewContext()
	defer c.Release()

	// First trap: the system call.
	f, err := c.Switch(ctx, 0, as, ac)
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if f.Cause() != arch.CauseSyscall || f.SyscallNumber() != 42 {
		t.Fatalf("got %v trap %d, want syscall 42", f.Cause(), f.SyscallNumber())
	}
	if diff := cmp.Diff([]uint64{7, 2, 3, 0, 0}, []uint64{f.Arg(0), f.Arg(1), f.Arg(2), f.Arg(3), f.Arg(4)}); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if f.FaultingIP() != codeAddr || ac.IP() != codeAddr+insnSize {
		t.Errorf("ip: faulting %v, resume %v", f.FaultingIP(), ac.IP())
	}
	f.SetReturn(9)

	// Second trap: the store faults on the unmapped data page.
	f, err = c.Switch(ctx, 0, as, ac)
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if f.Cause() != arch.CausePageFault || f.FaultAddress() != dataAddr || !f.AccessType().Write {
		t.Fatalf("got %v at %v (%v), want write fault at %v", f.Cause(), f.FaultAddress(), f.AccessType(), dataAddr)
	}
	ipAtFault := ac.IP()
	if err := p.MMU().MapPage(as, dataAddr, hostarch.PageSize, hostarch.ReadWrite); err != nil {
		t.Fatalf("MapPage: %v", err)
	}

	// The store is retried and the value flows back through memory.
	f, err = c.Switch(ctx, 0, as, ac)
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if f.Cause() != arch.CauseSyscall || f.SyscallNumber() != 43 || f.Arg(0) != 9 {
		t.Fatalf("got %v %d(%d), want syscall 43(9)", f.Cause(), f.SyscallNumber(), f.Arg(0))
	}
	if f.FaultingIP() <= ipAtFault {
		t.Errorf("faulting store was not retried at the same ip")
	}

	// The program returns.
	f, err = c.Switch(ctx, 0, as, ac)
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if f.Cause() != arch.CauseHalt {
		t.Fatalf("got %v, want halt", f.Cause())
	}
	if _, err := c.Switch(ctx, 0, as, ac); err != platform.ErrContextReleased {
		t.Errorf("Switch after halt = %v, want ErrContextReleased", err)
	}
}

func TestFetchFaultAndIllegal(t *testing.T) {
	p, as := newMachine(t, "sim-test-missing")
	ctx := context.Background()

	ac := p.NewArchContext()
	ac.SetupEntry(codeAddr+4*hostarch.PageSize, 0)
	c := p.NewContext()
	f, err := c.Switch(ctx, 0, as, ac)
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if f.Cause() != arch.CausePageFault || !f.AccessType().Execute {
		t.Errorf("got %v (%v), want execute fault", f.Cause(), f.AccessType())
	}

	ac.SetupEntry(codeAddr, 0)
	f, err = c.Switch(ctx, 0, as, ac)
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if f.Cause() != arch.CauseIllegal {
		t.Errorf("got %v, want illegal instruction for an unknown program", f.Cause())
	}
	c.Release()
}

func TestTLBRequiresInvalidation(t *testing.T) {
	p, as := newMachine(t, "unused")
	mmu := p.SimMMU()
	if _, ok := mmu.Translate(as, codeAddr, hostarch.Read); !ok {
		t.Fatalf("Translate of a mapped page failed")
	}
	mmu.UnmapPage(as, codeAddr)
	if _, ok := mmu.Translate(as, codeAddr, hostarch.Read); !ok {
		t.Errorf("cached translation dropped without invalidation")
	}
	addr := codeAddr
	mmu.InvalidateTLB(as, &addr)
	if _, ok := mmu.Translate(as, codeAddr, hostarch.Read); ok {
		t.Errorf("translation survived invalidation")
	}
	if _, ok := mmu.Translate(as, dataAddr, hostarch.Read); ok {
		t.Errorf("unmapped page translated")
	}
}

func TestReleaseKillsUser(t *testing.T) {
	RegisterProgram("sim-test-loop", func(u *User) {
		for {
			u.Syscall(1)
		}
	})
	p, as := newMachine(t, "sim-test-loop")
	ac := p.NewArchContext()
	ac.SetupEntry(codeAddr, 0)
	c := p.NewContext()
	if _, err := c.Switch(context.Background(), 0, as, ac); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	c.Release()
	if _, err := c.Switch(context.Background(), 0, as, ac); err != platform.ErrContextReleased {
		t.Errorf("Switch after Release = %v", err)
	}
}
