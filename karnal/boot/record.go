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

package boot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	// recordFilename is the name of the boot record in the root directory.
	recordFilename = "boot.json"

	// recordLockFilename is the name of the lock guarding the boot record.
	recordLockFilename = "boot.lock"
)

// Record is the persisted state of the last boot under a root directory.
type Record struct {
	// PID is the host process that booted the kernel.
	PID int `json:"pid"`

	// Started is when boot began.
	Started time.Time `json:"started"`

	// Stage is the last stage reached.
	Stage Stage `json:"stage"`

	// Error is the boot or run failure, if any.
	Error string `json:"error,omitempty"`

	// ExitCode is the init task's exit code once it is known.
	ExitCode *int32 `json:"exitCode,omitempty"`

	// Flags are the non-default flags the kernel booted with.
	Flags []string `json:"flags,omitempty"`
}

// lockRecord takes a file lock on the record lock file in root.
func lockRecord(root string) (func() error, error) {
	if err := os.MkdirAll(root, 0711); err != nil {
		return nil, fmt.Errorf("error creating root directory %q: %v", root, err)
	}
	f := filepath.Join(root, recordLockFilename)
	l := flock.NewFlock(f)
	if err := l.Lock(); err != nil {
		return nil, fmt.Errorf("error acquiring lock on boot lock file %q: %v", f, err)
	}
	return l.Unlock, nil
}

// saveRecord writes r to root. An empty root keeps no record.
func saveRecord(root string, r *Record) error {
	if root == "" {
		return nil
	}
	unlock, err := lockRecord(root)
	if err != nil {
		return err
	}
	defer unlock()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling boot record: %v", err)
	}
	f := filepath.Join(root, recordFilename)
	tmp := f + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing boot record %q: %v", tmp, err)
	}
	return os.Rename(tmp, f)
}

// LoadRecord reads the boot record kept in root.
func LoadRecord(root string) (*Record, error) {
	unlock, err := lockRecord(root)
	if err != nil {
		return nil, err
	}
	defer unlock()

	f := filepath.Join(root, recordFilename)
	data, err := os.ReadFile(f)
	if err != nil {
		return nil, fmt.Errorf("reading boot record: %w", err)
	}
	r := &Record{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing boot record %q: %v", f, err)
	}
	return r, nil
}
