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

package loader

import (
	"encoding/binary"
	"fmt"

	"karnal.dev/karnal64/pkg/hostarch"
)

// Executable image layout, little-endian:
//
//	0   magic "KX64"
//	4   version
//	8   entry offset within the image
//	16  image size in bytes, header included
//	24  stack size in bytes, 0 for DefaultStackSize
//	32  reserved
//	48  code
const (
	// HeaderSize is the size of the image header.
	HeaderSize = 48

	// Version is the only supported image version.
	Version = 1

	// DefaultStackSize is the stack size of images that do not ask for one.
	DefaultStackSize = 64 << 10

	// MaxStackSize bounds the stack an image may ask for.
	MaxStackSize = 8 << 20

	// MaxImageSize bounds the size of an image.
	MaxImageSize = 64 << 20
)

var magic = [4]byte{'K', 'X', '6', '4'}

// Header is a parsed image header.
type Header struct {
	Version   uint32
	Entry     uint64
	Size      uint64
	StackSize uint64
}

// ParseHeader decodes and checks an image header.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("image header too short: %d bytes", len(b))
	}
	if [4]byte(b[:4]) != magic {
		return Header{}, fmt.Errorf("bad image magic %q", b[:4])
	}
	h := Header{
		Version:   binary.LittleEndian.Uint32(b[4:8]),
		Entry:     binary.LittleEndian.Uint64(b[8:16]),
		Size:      binary.LittleEndian.Uint64(b[16:24]),
		StackSize: binary.LittleEndian.Uint64(b[24:32]),
	}
	switch {
	case h.Version != Version:
		return Header{}, fmt.Errorf("unsupported image version %d", h.Version)
	case h.Size < HeaderSize || h.Size > MaxImageSize:
		return Header{}, fmt.Errorf("bad image size %d", h.Size)
	case h.Entry < HeaderSize || h.Entry >= h.Size:
		return Header{}, fmt.Errorf("entry %#x outside the image", h.Entry)
	case h.StackSize > MaxStackSize:
		return Header{}, fmt.Errorf("stack size %d exceeds %d", h.StackSize, MaxStackSize)
	}
	if h.StackSize == 0 {
		h.StackSize = DefaultStackSize
	}
	h.StackSize, _ = hostarch.PageRoundUp(h.StackSize)
	return h, nil
}

// MarshalBytes serializes h into dst, which must be at least HeaderSize
// bytes.
func (h Header) MarshalBytes(dst []byte) {
	copy(dst[:4], magic[:])
	binary.LittleEndian.PutUint32(dst[4:8], h.Version)
	binary.LittleEndian.PutUint64(dst[8:16], h.Entry)
	binary.LittleEndian.PutUint64(dst[16:24], h.Size)
	binary.LittleEndian.PutUint64(dst[24:32], h.StackSize)
	clear(dst[32:HeaderSize])
}

// BuildImage returns an image whose entry point is the first byte of code.
func BuildImage(code []byte, stackSize uint64) []byte {
	img := make([]byte, HeaderSize+len(code))
	Header{
		Version:   Version,
		Entry:     HeaderSize,
		Size:      uint64(len(img)),
		StackSize: stackSize,
	}.MarshalBytes(img)
	copy(img[HeaderSize:], code)
	return img
}
