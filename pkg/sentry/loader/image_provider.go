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
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

// BinPrefix is the name prefix of executable images.
const BinPrefix = resource.BinPrefix

// Image is a read-only provider holding an executable image. Handles to it
// may be acquired for READ and EXECUTE.
type Image struct {
	resource.NoWrite
	resource.NoControl
	resource.Modes

	data []byte
}

var _ resource.Provider = (*Image)(nil)

// NewImage returns a provider serving img. img must not be modified
// afterwards.
func NewImage(img []byte) *Image {
	return &Image{
		Modes: resource.Modes(karnal.ModeRead | karnal.ModeExecute),
		data:  img,
	}
}

// Read implements resource.Provider.Read.
func (i *Image) Read(ctx context.Context, dst []byte, offset uint64) (uint64, error) {
	if offset >= uint64(len(i.data)) {
		return 0, nil
	}
	return uint64(copy(dst, i.data[offset:])), nil
}

// Seek implements resource.Provider.Seek.
func (i *Image) Seek(ctx context.Context, current uint64, whence karnal.SeekWhence, offset int64) (uint64, error) {
	return resource.SeekWithin(current, uint64(len(i.data)), whence, offset)
}

// Status implements resource.Provider.Status.
func (i *Image) Status(ctx context.Context) resource.Status {
	return resource.Status{Readable: true, Seekable: true, Size: uint64(len(i.data)), HasSize: true}
}

// RegisterImage registers img under BinPrefix+name.
func RegisterImage(r *resource.Registry, name string, img []byte) error {
	if _, err := ParseHeader(img); err != nil {
		return kerr.ErrInvalidArgument
	}
	_, err := r.Register(BinPrefix+name, NewImage(img), karnal.ModeRead|karnal.ModeExecute)
	return err
}
