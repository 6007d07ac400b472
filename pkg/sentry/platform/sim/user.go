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
	"runtime"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/arch"
)

// User is the machine as seen by a simulated user program. Its methods may
// only be called from the program's goroutine.
type User struct {
	c *execContext

	entryArgs [karnal.MaxSyscallArgs]uint64

	// killed is set when the kernel discards the thread.
	killed bool
}

// EntryArg returns entry argument i as set up by the kernel.
func (u *User) EntryArg(i int) uint64 {
	return u.entryArgs[i]
}

// IP returns the current instruction pointer.
func (u *User) IP() hostarch.Addr {
	return u.c.ac.IP()
}

// trap enters the kernel and waits to be resumed. If the kernel releases the
// thread instead, the user goroutine exits here.
func (u *User) trap(f *trapFrame) {
	u.c.toKernel <- f
	if kill := <-u.c.toUser; kill {
		u.killed = true
		runtime.Goexit()
	}
}

// Syscall executes the system call instruction and returns the result
// register.
func (u *User) Syscall(no uint64, args ...uint64) int64 {
	ac := u.c.ac.(*archContext)
	ip := ac.IP()
	f := &trapFrame{cause: arch.CauseSyscall, no: no, ip: ip, ac: ac}
	for i := 0; i < len(args) && i < karnal.MaxSyscallArgs; i++ {
		f.args[i] = args[i]
		ac.setReg(i, args[i])
	}
	ac.SetIP(ip + insnSize)
	u.trap(f)
	return u.c.ac.Return()
}

// access performs a data access of len(buf) bytes at addr, faulting into the
// kernel for every page that does not translate.
func (u *User) access(addr hostarch.Addr, buf []byte, at hostarch.AccessType) {
	for done := 0; done < len(buf); {
		cur := addr + hostarch.Addr(done)
		pa, ok := u.c.p.mmu.Translate(u.c.as, cur, at)
		if !ok {
			u.trap(&trapFrame{cause: arch.CausePageFault, ip: u.c.ac.IP(), addr: cur, at: at, ac: u.c.ac})
			continue
		}
		n := min(uint64(len(buf)-done), hostarch.PageSize-cur.PageOffset())
		mem := u.c.p.mem.Slice(pa, n)
		if at.Write {
			done += copy(mem, buf[done:])
		} else {
			done += copy(buf[done:], mem)
		}
	}
	u.c.ac.SetIP(u.c.ac.IP() + insnSize)
}

// Load reads n bytes at addr.
func (u *User) Load(addr hostarch.Addr, n int) []byte {
	buf := make([]byte, n)
	u.access(addr, buf, hostarch.Read)
	return buf
}

// Store writes data at addr.
func (u *User) Store(addr hostarch.Addr, data []byte) {
	u.access(addr, data, hostarch.Write)
}
