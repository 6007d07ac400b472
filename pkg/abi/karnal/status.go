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
	"encoding/binary"
	"fmt"
)

// Flags in ResourceStatus.Flags.
const (
	StatusReadable = 1 << 0
	StatusWritable = 1 << 1
	StatusSeekable = 1 << 2
	StatusHasSize  = 1 << 3
)

// SizeofResourceStatus is the size of the record written by
// resource_status.
const SizeofResourceStatus = 16

// ResourceStatus is the record written by resource_status:
//
//	struct {
//		uint32 flags;
//		uint32 reserved;
//		uint64 size;
//	}
//
// All fields are little-endian.
type ResourceStatus struct {
	Flags uint32
	Size  uint64
}

// MarshalBytes serializes s into dst, which must be at least
// SizeofResourceStatus bytes, and returns the remainder of dst.
func (s *ResourceStatus) MarshalBytes(dst []byte) []byte {
	binary.LittleEndian.PutUint32(dst[0:4], s.Flags)
	binary.LittleEndian.PutUint32(dst[4:8], 0)
	binary.LittleEndian.PutUint64(dst[8:16], s.Size)
	return dst[SizeofResourceStatus:]
}

// UnmarshalBytes deserializes s from src.
func (s *ResourceStatus) UnmarshalBytes(src []byte) error {
	if len(src) < SizeofResourceStatus {
		return fmt.Errorf("status record too short: %d bytes", len(src))
	}
	s.Flags = binary.LittleEndian.Uint32(src[0:4])
	s.Size = binary.LittleEndian.Uint64(src[8:16])
	return nil
}

// SizeofMemoryInfo is the size of the record read from karnal://sys/memory.
const SizeofMemoryInfo = 32

// MemoryInfo is the record read from karnal://sys/memory: total, free and used
// bytes and the largest free contiguous block, as little-endian uint64s.
type MemoryInfo struct {
	Total            uint64
	Free             uint64
	Used             uint64
	LargestFreeBlock uint64
}

// MarshalBytes serializes m into dst and returns the remainder of dst.
func (m *MemoryInfo) MarshalBytes(dst []byte) []byte {
	binary.LittleEndian.PutUint64(dst[0:8], m.Total)
	binary.LittleEndian.PutUint64(dst[8:16], m.Free)
	binary.LittleEndian.PutUint64(dst[16:24], m.Used)
	binary.LittleEndian.PutUint64(dst[24:32], m.LargestFreeBlock)
	return dst[SizeofMemoryInfo:]
}

// UnmarshalBytes deserializes m from src.
func (m *MemoryInfo) UnmarshalBytes(src []byte) error {
	if len(src) < SizeofMemoryInfo {
		return fmt.Errorf("memory info record too short: %d bytes", len(src))
	}
	m.Total = binary.LittleEndian.Uint64(src[0:8])
	m.Free = binary.LittleEndian.Uint64(src[8:16])
	m.Used = binary.LittleEndian.Uint64(src[16:24])
	m.LargestFreeBlock = binary.LittleEndian.Uint64(src[24:32])
	return nil
}
