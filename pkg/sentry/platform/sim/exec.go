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
	"fmt"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/log"
	"karnal.dev/karnal64/pkg/sentry/arch"
	"karnal.dev/karnal64/pkg/sentry/platform"
)

// trapFrame implements arch.TrapFrame.
type trapFrame struct {
	cause arch.Cause
	no    uint64
	args  [karnal.MaxSyscallArgs]uint64
	ip    hostarch.Addr
	addr  hostarch.Addr
	at    hostarch.AccessType

	// ac receives the return value.
	ac arch.Context
}

var _ arch.TrapFrame = (*trapFrame)(nil)

// SyscallNumber implements arch.TrapFrame.SyscallNumber.
func (f *trapFrame) SyscallNumber() uint64 { return f.no }

// Arg implements arch.TrapFrame.Arg.
func (f *trapFrame) Arg(i int) uint64 {
	if i < 0 || i >= len(f.args) {
		return 0
	}
	return f.args[i]
}

// SetReturn implements arch.TrapFrame.SetReturn.
func (f *trapFrame) SetReturn(v int64) { f.ac.SetReturn(v) }

// FaultingIP implements arch.TrapFrame.FaultingIP.
func (f *trapFrame) FaultingIP() hostarch.Addr { return f.ip }

// FaultAddress implements arch.TrapFrame.FaultAddress.
func (f *trapFrame) FaultAddress() hostarch.Addr { return f.addr }

// AccessType implements arch.TrapFrame.AccessType.
func (f *trapFrame) AccessType() hostarch.AccessType { return f.at }

// Cause implements arch.TrapFrame.Cause.
func (f *trapFrame) Cause() arch.Cause { return f.cause }

// Privilege implements arch.TrapFrame.Privilege. Simulated user code only
// ever traps from user mode.
func (f *trapFrame) Privilege() arch.Privilege { return arch.User }

// execContext implements platform.Context.
//
// The kernel side (Switch) and the user goroutine hand control back and
// forth over two unbuffered channels, so at most one of them runs.
type execContext struct {
	p *Platform

	// The fields below are written by Switch and read by the user goroutine
	// while Switch is waiting for it.
	cpu int
	as  platform.ASID
	ac  arch.Context

	started  bool
	userDone bool
	released bool

	// toUser resumes the user goroutine; true kills it.
	toUser chan bool

	// toKernel delivers the next trap.
	toKernel chan *trapFrame
}

// Switch implements platform.Context.Switch.
func (c *execContext) Switch(ctx context.Context, cpu int, as platform.ASID, ac arch.Context) (arch.TrapFrame, error) {
	if c.released || c.userDone {
		return nil, platform.ErrContextReleased
	}
	c.cpu, c.as, c.ac = cpu, as, ac
	c.p.mmu.Activate(cpu, as)

	if !c.started {
		prog, f := c.fetch(ac)
		if f != nil {
			return f, nil
		}
		c.started = true
		go c.userMain(prog)
	} else {
		c.toUser <- false
	}
	return <-c.toKernel, nil
}

// Release implements platform.Context.Release.
func (c *execContext) Release() {
	if c.released {
		return
	}
	c.released = true
	if c.started && !c.userDone {
		c.toUser <- true
	}
}

// fetch decodes the code stub at the context's instruction pointer. If the
// stub cannot be read it returns an instruction-fetch fault, or an illegal
// instruction trap if the bytes are not a stub.
func (c *execContext) fetch(ac arch.Context) (Program, *trapFrame) {
	ip := ac.IP()
	hdr := make([]byte, codeHeaderSize)
	if f := c.read(ip, hdr, ac); f != nil {
		return nil, f
	}
	n, err := decodeHeader(hdr)
	if err != nil {
		log.Debugf("sim: %v at %v", err, ip)
		return nil, &trapFrame{cause: arch.CauseIllegal, ip: ip, addr: ip, ac: ac}
	}
	name := make([]byte, n)
	if f := c.read(ip+codeHeaderSize, name, ac); f != nil {
		return nil, f
	}
	prog, ok := LookupProgram(string(name))
	if !ok {
		log.Debugf("sim: unknown program %q at %v", name, ip)
		return nil, &trapFrame{cause: arch.CauseIllegal, ip: ip, addr: ip, ac: ac}
	}
	return prog, nil
}

// read copies instruction bytes at addr, returning a fault frame if a page
// is not executable.
func (c *execContext) read(addr hostarch.Addr, dst []byte, ac arch.Context) *trapFrame {
	for done := 0; done < len(dst); {
		cur := addr + hostarch.Addr(done)
		pa, ok := c.p.mmu.Translate(c.as, cur, hostarch.Execute)
		if !ok {
			return &trapFrame{cause: arch.CausePageFault, ip: ac.IP(), addr: cur, at: hostarch.Execute, ac: ac}
		}
		n := min(uint64(len(dst)-done), hostarch.PageSize-cur.PageOffset())
		done += copy(dst[done:], c.p.mem.Slice(pa, n))
	}
	return nil
}

// userMain runs prog on the user goroutine.
func (c *execContext) userMain(prog Program) {
	u := &User{c: c}
	for i := range u.entryArgs {
		u.entryArgs[i] = c.ac.EntryArg(i)
	}
	defer func() {
		if u.killed {
			return
		}
		f := &trapFrame{cause: arch.CauseHalt, ip: c.ac.IP(), ac: c.ac}
		if r := recover(); r != nil {
			log.Warningf("sim: user program panicked: %v", r)
			f.cause = arch.CauseIllegal
		}
		c.userDone = true
		c.toKernel <- f
	}()
	prog(u)
}

// String implements fmt.Stringer.
func (c *execContext) String() string {
	return fmt.Sprintf("sim context (cpu %d, as %d)", c.cpu, c.as)
}
