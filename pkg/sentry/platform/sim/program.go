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
	"fmt"
	"sort"
	"sync"
)

// Program is the user code of a simulated thread.
type Program func(u *User)

var (
	programsMu sync.RWMutex
	programs   = make(map[string]Program)
)

// RegisterProgram makes p available to code stubs naming it. It panics if
// name is already registered.
func RegisterProgram(name string, p Program) {
	programsMu.Lock()
	defer programsMu.Unlock()
	if _, ok := programs[name]; ok {
		panic(fmt.Sprintf("program %q registered twice", name))
	}
	programs[name] = p
}

// LookupProgram returns the program registered under name.
func LookupProgram(name string) (Program, bool) {
	programsMu.RLock()
	defer programsMu.RUnlock()
	p, ok := programs[name]
	return p, ok
}

// Programs returns the names of all registered programs.
func Programs() []string {
	programsMu.RLock()
	names := make([]string, 0, len(programs))
	for name := range programs {
		names = append(names, name)
	}
	programsMu.RUnlock()
	sort.Strings(names)
	return names
}

// codeMagic starts every code stub.
var codeMagic = [4]byte{'K', 'S', 'I', 'M'}

// codeHeaderSize is the size of the stub header: magic and name length.
const codeHeaderSize = 8

// maxProgramName bounds the name in a code stub.
const maxProgramName = 256

// Code returns the machine code that starts the program called name: a stub
// whose first instruction names the Go function to run.
func Code(name string) []byte {
	b := make([]byte, codeHeaderSize+len(name))
	copy(b, codeMagic[:])
	binary.LittleEndian.PutUint32(b[4:8], uint32(len(name)))
	copy(b[codeHeaderSize:], name)
	return b
}

// decodeHeader returns the name length of a stub header.
func decodeHeader(hdr []byte) (int, error) {
	if len(hdr) < codeHeaderSize || [4]byte(hdr[:4]) != codeMagic {
		return 0, fmt.Errorf("bad code magic %q", hdr)
	}
	n := binary.LittleEndian.Uint32(hdr[4:8])
	if n == 0 || n > maxProgramName {
		return 0, fmt.Errorf("bad program name length %d", n)
	}
	return int(n), nil
}
