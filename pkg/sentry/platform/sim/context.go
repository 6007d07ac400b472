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
	"encoding/binary"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/arch"
)

// Saved context layout, little-endian 64-bit words:
//
//	0   ip
//	8   sp
//	16  result register
//	24  five argument registers
//	64  reserved
const (
	offIP     = 0
	offSP     = 8
	offReturn = 16
	offRegs   = 24

	// ContextSize is the size of a saved context.
	ContextSize = 96
)

// insnSize is the width of every simulated instruction.
const insnSize = 4

// archContext implements arch.Context for the simulation port.
type archContext struct {
	state [ContextSize]byte
}

var _ arch.Context = (*archContext)(nil)

func (c *archContext) word(off int) uint64 {
	return binary.LittleEndian.Uint64(c.state[off : off+8])
}

func (c *archContext) setWord(off int, v uint64) {
	binary.LittleEndian.PutUint64(c.state[off:off+8], v)
}

// Arch implements arch.Context.Arch.
func (*archContext) Arch() arch.Arch { return arch.Sim }

// Fork implements arch.Context.Fork.
func (c *archContext) Fork() arch.Context {
	n := *c
	return &n
}

// IP implements arch.Context.IP.
func (c *archContext) IP() hostarch.Addr { return hostarch.Addr(c.word(offIP)) }

// SetIP implements arch.Context.SetIP.
func (c *archContext) SetIP(v hostarch.Addr) { c.setWord(offIP, uint64(v)) }

// Stack implements arch.Context.Stack.
func (c *archContext) Stack() hostarch.Addr { return hostarch.Addr(c.word(offSP)) }

// SetStack implements arch.Context.SetStack.
func (c *archContext) SetStack(v hostarch.Addr) { c.setWord(offSP, uint64(v)) }

// Return implements arch.Context.Return.
func (c *archContext) Return() int64 { return int64(c.word(offReturn)) }

// SetReturn implements arch.Context.SetReturn.
func (c *archContext) SetReturn(v int64) { c.setWord(offReturn, uint64(v)) }

func (c *archContext) reg(i int) uint64 { return c.word(offRegs + 8*i) }

func (c *archContext) setReg(i int, v uint64) { c.setWord(offRegs+8*i, v) }

// SetupEntry implements arch.Context.SetupEntry.
func (c *archContext) SetupEntry(entry, stack hostarch.Addr, args ...uint64) {
	c.state = [ContextSize]byte{}
	c.SetIP(entry)
	c.SetStack(stack)
	for i := 0; i < len(args) && i < karnal.MaxSyscallArgs; i++ {
		c.setReg(i, args[i])
	}
}

// EntryArg implements arch.Context.EntryArg.
func (c *archContext) EntryArg(i int) uint64 { return c.reg(i) }

// StateData implements arch.Context.StateData.
func (c *archContext) StateData() []byte { return c.state[:] }
