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

package ttydev

import (
	"io"

	"golang.org/x/sys/unix"
)

// hostFile is an io.ReadWriter over a host file descriptor. It does not own
// the descriptor.
type hostFile struct {
	fd int
}

// Read implements io.Reader.Read.
func (f hostFile) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(f.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 && len(p) > 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write implements io.Writer.Write.
func (f hostFile) Write(p []byte) (int, error) {
	n, err := unix.Write(f.fd, p)
	if n < 0 {
		n = 0
	}
	return n, err
}

// Sync flushes the descriptor. Terminals and pipes cannot be synced and
// report success.
func (f hostFile) Sync() error {
	err := unix.Fsync(f.fd)
	if err == unix.EINVAL || err == unix.EROFS {
		return nil
	}
	return err
}

// NewHostConsole creates a console over host descriptors. inFD may be -1
// for a write-only console.
func NewHostConsole(inFD, outFD int) *Console {
	opts := Options{
		Out: hostFile{fd: outFD},
		FD:  outFD,
	}
	if inFD >= 0 {
		opts.In = hostFile{fd: inFD}
	}
	return NewConsole(opts)
}
