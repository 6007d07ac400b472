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

// Package bitmap provides a fixed-length bitmap with lowest-free-bit
// searches. It backs handle-slot and physical-frame allocation.
package bitmap

import (
	"fmt"
	"math/bits"
)

// Bitmap is a set of bit indices in [0, Size()).
type Bitmap struct {
	// numOnes is the number of ones in the bitmap.
	numOnes uint32

	// size is the number of usable bits. Bits at or above size in the
	// final block are always zero and never reported as free.
	size uint32

	// bitBlock holds the bits, 64 entries per word.
	bitBlock []uint64
}

// New creates a new empty Bitmap of size bits.
func New(size uint32) Bitmap {
	return Bitmap{
		size:     size,
		bitBlock: make([]uint64, (size+63)/64),
	}
}

// IsEmpty verifies whether the Bitmap is empty.
func (b *Bitmap) IsEmpty() bool {
	return b.numOnes == 0
}

// Size returns the total number of bits in the bitmap.
func (b *Bitmap) Size() uint32 {
	return b.size
}

// Count returns the number of set bits.
func (b *Bitmap) Count() uint32 {
	return b.numOnes
}

// Grow resizes the bitmap to newSize bits. Shrinking is not supported.
func (b *Bitmap) Grow(newSize uint32) error {
	if newSize < b.size {
		return fmt.Errorf("cannot shrink bitmap from %d to %d bits", b.size, newSize)
	}
	if words := int((newSize + 63) / 64); words > len(b.bitBlock) {
		b.bitBlock = append(b.bitBlock, make([]uint64, words-len(b.bitBlock))...)
	}
	b.size = newSize
	return nil
}

// Contains returns true if bit i is set.
func (b *Bitmap) Contains(i uint32) bool {
	if i >= b.size {
		return false
	}
	return b.bitBlock[i/64]&(1<<(i%64)) != 0
}

// Add sets bit i.
func (b *Bitmap) Add(i uint32) {
	if i >= b.size {
		panic(fmt.Sprintf("bit %d out of range [0, %d)", i, b.size))
	}
	m := uint64(1) << (i % 64)
	if b.bitBlock[i/64]&m == 0 {
		b.bitBlock[i/64] |= m
		b.numOnes++
	}
}

// Remove clears bit i.
func (b *Bitmap) Remove(i uint32) {
	if i >= b.size {
		return
	}
	m := uint64(1) << (i % 64)
	if b.bitBlock[i/64]&m != 0 {
		b.bitBlock[i/64] &^= m
		b.numOnes--
	}
}

// AddRange sets bits [begin, end).
func (b *Bitmap) AddRange(begin, end uint32) {
	for i := begin; i < end; i++ {
		b.Add(i)
	}
}

// RemoveRange clears bits [begin, end).
func (b *Bitmap) RemoveRange(begin, end uint32) {
	for i := begin; i < end; i++ {
		b.Remove(i)
	}
}

// FirstZero returns the first unset bit from the range [start, Size()).
func (b *Bitmap) FirstZero(start uint32) (uint32, bool) {
	if start >= b.size {
		return 0, false
	}
	i, nbit := int(start/64), start%64
	w := b.bitBlock[i] | ((1 << nbit) - 1)
	for {
		if w != ^uint64(0) {
			r := uint32(bits.TrailingZeros64(^w)) + uint32(i)*64
			return r, r < b.size
		}
		i++
		if i == len(b.bitBlock) {
			return 0, false
		}
		w = b.bitBlock[i]
	}
}

// FirstOne returns the first set bit from the range [start, Size()).
func (b *Bitmap) FirstOne(start uint32) (uint32, bool) {
	if start >= b.size {
		return 0, false
	}
	i, nbit := int(start/64), start%64
	w := b.bitBlock[i] & (^uint64(0) << nbit)
	for {
		if w != 0 {
			return uint32(bits.TrailingZeros64(w)) + uint32(i)*64, true
		}
		i++
		if i == len(b.bitBlock) {
			return 0, false
		}
		w = b.bitBlock[i]
	}
}

// FirstZeroRun returns the first index of n consecutive unset bits.
func (b *Bitmap) FirstZeroRun(n uint32) (uint32, bool) {
	if n == 0 {
		return 0, true
	}
	start := uint32(0)
	for {
		z, ok := b.FirstZero(start)
		if !ok {
			return 0, false
		}
		o, ok := b.FirstOne(z)
		if !ok {
			o = b.size
		}
		if o-z >= n {
			return z, true
		}
		if o >= b.size {
			return 0, false
		}
		start = o
	}
}

// LongestZeroRun returns the length of the longest run of unset bits.
func (b *Bitmap) LongestZeroRun() uint32 {
	var longest, start uint32
	for {
		z, ok := b.FirstZero(start)
		if !ok {
			return longest
		}
		o, ok := b.FirstOne(z)
		if !ok {
			o = b.size
		}
		if o-z > longest {
			longest = o - z
		}
		if o >= b.size {
			return longest
		}
		start = o
	}
}

// ToSlice returns the set bits in ascending order.
func (b *Bitmap) ToSlice() []uint32 {
	s := make([]uint32, 0, b.numOnes)
	for i, w := range b.bitBlock {
		for w != 0 {
			r := bits.TrailingZeros64(w)
			s = append(s, uint32(i*64+r))
			w &^= 1 << r
		}
	}
	return s
}
