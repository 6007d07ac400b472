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
	"fmt"
	"sync"

	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/platform"
)

// pte is a page table entry.
type pte struct {
	pa platform.PhysAddr
	at hostarch.AccessType
}

type pageTable struct {
	ptes map[hostarch.Addr]pte

	// tlb caches translations. Entries are filled on lookup and dropped
	// only by InvalidateTLB, so stale entries survive MapPage and
	// UnmapPage until the kernel invalidates them.
	tlb map[hostarch.Addr]pte
}

// MMU implements platform.MMU in software.
type MMU struct {
	// mu protects the fields below.
	mu sync.Mutex

	nextASID platform.ASID
	tables   map[platform.ASID]*pageTable

	// active is the ASID current on each CPU.
	active []platform.ASID

	// invalidations counts InvalidateTLB calls.
	invalidations uint64
}

var _ platform.MMU = (*MMU)(nil)

func newMMU(cpus int) *MMU {
	return &MMU{
		nextASID: 1,
		tables:   make(map[platform.ASID]*pageTable),
		active:   make([]platform.ASID, cpus),
	}
}

// NewAddressSpace implements platform.MMU.NewAddressSpace.
func (m *MMU) NewAddressSpace() (platform.ASID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	as := m.nextASID
	m.nextASID++
	m.tables[as] = &pageTable{
		ptes: make(map[hostarch.Addr]pte),
		tlb:  make(map[hostarch.Addr]pte),
	}
	return as, nil
}

// ReleaseAddressSpace implements platform.MMU.ReleaseAddressSpace.
func (m *MMU) ReleaseAddressSpace(as platform.ASID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for cpu, a := range m.active {
		if a == as {
			m.active[cpu] = 0
		}
	}
	delete(m.tables, as)
}

// Activate implements platform.MMU.Activate.
func (m *MMU) Activate(cpu int, as platform.ASID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cpu >= 0 && cpu < len(m.active) {
		m.active[cpu] = as
	}
}

// Active returns the ASID current on cpu.
func (m *MMU) Active(cpu int) platform.ASID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[cpu]
}

// MapPage implements platform.MMU.MapPage.
func (m *MMU) MapPage(as platform.ASID, vaddr hostarch.Addr, paddr platform.PhysAddr, at hostarch.AccessType) error {
	if !vaddr.IsPageAligned() || uint64(paddr)%hostarch.PageSize != 0 {
		return fmt.Errorf("unaligned mapping %v -> %#x", vaddr, paddr)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pt, ok := m.tables[as]
	if !ok {
		return fmt.Errorf("unknown address space %d", as)
	}
	pt.ptes[vaddr] = pte{pa: paddr, at: at}
	return nil
}

// UnmapPage implements platform.MMU.UnmapPage.
func (m *MMU) UnmapPage(as platform.ASID, vaddr hostarch.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pt, ok := m.tables[as]; ok {
		delete(pt.ptes, vaddr.RoundDown())
	}
}

// InvalidateTLB implements platform.MMU.InvalidateTLB.
func (m *MMU) InvalidateTLB(as platform.ASID, vaddr *hostarch.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidations++
	pt, ok := m.tables[as]
	if !ok {
		return
	}
	if vaddr == nil {
		clear(pt.tlb)
		return
	}
	delete(pt.tlb, vaddr.RoundDown())
}

// Invalidations returns the number of InvalidateTLB calls so far.
func (m *MMU) Invalidations() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidations
}

// Translate returns the physical address for addr if the access at is
// permitted.
func (m *MMU) Translate(as platform.ASID, addr hostarch.Addr, at hostarch.AccessType) (platform.PhysAddr, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pt, ok := m.tables[as]
	if !ok {
		return 0, false
	}
	page := addr.RoundDown()
	e, ok := pt.tlb[page]
	if !ok {
		if e, ok = pt.ptes[page]; !ok {
			return 0, false
		}
		pt.tlb[page] = e
	}
	if !e.at.SupersetOf(at) {
		return 0, false
	}
	return e.pa + platform.PhysAddr(addr.PageOffset()), true
}

// Mapped returns the number of pages mapped in as.
func (m *MMU) Mapped(as platform.ASID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pt, ok := m.tables[as]; ok {
		return len(pt.ptes)
	}
	return 0
}
