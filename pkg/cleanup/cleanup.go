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


// Package cleanup undoes partially completed work on error paths.
package cleanup

import "errors"

// Cleanup is a stack of undo functions that a deferred Clean runs unless
// Release was called first:
//
//	cu := cleanup.Make(table.FlushAll)
//	defer cu.Clean()
//	...
//	cu.AddErr(func() error { return m.Unmap(ctx, addr, n) })
//	...
//	cu.Release() // success; nothing is undone.
type Cleanup struct {
	cleaners []func() error
}

// Make returns a Cleanup holding f. f may be nil.
func Make(f func()) Cleanup {
	var c Cleanup
	c.Add(f)
	return c
}

// Add pushes f. Nil functions are ignored.
func (c *Cleanup) Add(f func()) {
	if f == nil {
		return
	}
	c.AddErr(func() error {
		f()
		return nil
	})
}

// AddErr pushes f, whose error is reported by Clean.
func (c *Cleanup) AddErr(f func() error) {
	if f != nil {
		c.cleaners = append(c.cleaners, f)
	}
}

// Clean runs the pushed functions, most recent first, and empties the
// stack. Every function runs even if an earlier one fails; the errors are
// joined.
func (c *Cleanup) Clean() error {
	cleaners := c.cleaners
	c.cleaners = nil
	return run(cleaners)
}

// Release empties the stack without running it. The returned function runs
// what was released, for callers that hand the undo work to someone else.
func (c *Cleanup) Release() func() error {
	cleaners := c.cleaners
	c.cleaners = nil
	return func() error { return run(cleaners) }
}

func run(cleaners []func() error) error {
	var errs []error
	for i := len(cleaners) - 1; i >= 0; i-- {
		if err := cleaners[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
