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

// Package ttydev implements the kernel console, karnal://device/console.
package ttydev

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/sentry/context"
	"karnal.dev/karnal64/pkg/sentry/resource"
	"karnal.dev/karnal64/pkg/waiter"
)

// ConsoleName is the name the console is registered under.
const ConsoleName = resource.DevicePrefix + "console"

// inputChunk is the size of a single read from the console source.
const inputChunk = 4096

// maxWriteRetries bounds the retries of a sink write that keeps failing
// transiently.
const maxWriteRetries = 8

// Options configure a Console.
type Options struct {
	// In is the input source. If nil, the console is write-only.
	In io.Reader

	// Out is the output sink. It is required.
	Out io.Writer

	// FD is the host file descriptor behind Out, or -1. It is used to
	// answer ConsoleIsTerminal.
	FD int

	// NewBackOff returns the retry policy for one sink write. If nil,
	// a bounded exponential policy is used.
	NewBackOff func() backoff.BackOff
}

// Console implements resource.Provider for the kernel console. Writes go
// to the sink, retrying transient failures. Input is pumped from the source
// by a background goroutine and buffered, so reads never block the caller's
// CPU; an empty buffer reports kerr.ErrWouldBlock.
type Console struct {
	resource.NoSeek
	resource.Modes
	waiter.Queue

	out        io.Writer
	fd         int
	readable   bool
	newBackOff func() backoff.BackOff

	// wmu serializes writes so that lines from different threads do not
	// interleave.
	wmu sync.Mutex

	mu    sync.Mutex
	input []byte
	eof   bool
}

var _ resource.Provider = (*Console)(nil)
var _ waiter.Waitable = (*Console)(nil)

// NewConsole creates a console and starts pumping its input, if any.
func NewConsole(opts Options) *Console {
	c := &Console{
		out:        opts.Out,
		fd:         opts.FD,
		readable:   opts.In != nil,
		newBackOff: opts.NewBackOff,
	}
	if c.newBackOff == nil {
		c.newBackOff = defaultBackOff
	}
	modes := karnal.ModeWrite
	if c.readable {
		modes |= karnal.ModeRead
		go c.pump(opts.In)
	}
	c.Modes = resource.Modes(modes)
	return c
}

func defaultBackOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     time.Millisecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         50 * time.Millisecond,
		MaxElapsedTime:      time.Second,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithMaxRetries(b, maxWriteRetries)
}

// pump moves input from in to the buffer until in reports an error.
func (c *Console) pump(in io.Reader) {
	buf := make([]byte, inputChunk)
	for {
		n, err := in.Read(buf)
		c.mu.Lock()
		c.input = append(c.input, buf[:n]...)
		if err != nil {
			c.eof = true
		}
		c.mu.Unlock()
		if n > 0 || err != nil {
			c.Notify(waiter.EventIn)
		}
		if err != nil {
			return
		}
	}
}

// Read implements resource.Provider.Read.
func (c *Console) Read(ctx context.Context, dst []byte, _ uint64) (uint64, error) {
	if !c.readable {
		return 0, kerr.ErrNotSupported
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.input) == 0 {
		if c.eof {
			return 0, nil
		}
		return 0, kerr.ErrWouldBlock
	}
	n := copy(dst, c.input)
	c.input = c.input[n:]
	return uint64(n), nil
}

// Write implements resource.Provider.Write. Transient sink failures are
// retried; if the sink stays unavailable and nothing was written, Write
// fails with Busy.
func (c *Console) Write(ctx context.Context, src []byte, _ uint64) (uint64, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	done := 0
	op := func() error {
		for done < len(src) {
			n, err := c.out.Write(src[done:])
			done += n
			if err != nil {
				if transient(err) {
					return err
				}
				return backoff.Permanent(err)
			}
		}
		return nil
	}
	if err := backoff.Retry(op, c.newBackOff()); err != nil {
		ctx.Warningf("Console write stopped after %d of %d bytes: %v", done, len(src), err)
		switch {
		case done > 0:
			return uint64(done), nil
		case transient(err):
			return 0, kerr.ErrBusy
		default:
			return 0, kerr.ErrInternal
		}
	}
	return uint64(done), nil
}

// transient returns true if a sink failure is worth retrying.
func transient(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) || errors.Is(err, os.ErrDeadlineExceeded)
}

// Control implements resource.Provider.Control.
func (c *Console) Control(ctx context.Context, request, _ uint64) (uint64, error) {
	switch request {
	case karnal.ConsoleIsTerminal:
		if c.fd >= 0 && term.IsTerminal(c.fd) {
			return 1, nil
		}
		return 0, nil
	case karnal.ConsoleFlush:
		s, ok := c.out.(interface{ Sync() error })
		if !ok {
			return 0, nil
		}
		if err := s.Sync(); err != nil {
			ctx.Debugf("Console flush: %v", err)
			return 0, kerr.ErrBusy
		}
		return 0, nil
	default:
		return 0, kerr.ErrNotSupported
	}
}

// Status implements resource.Provider.Status.
func (c *Console) Status(context.Context) resource.Status {
	return resource.Status{Readable: c.readable, Writable: true}
}

// Readiness implements waiter.Waitable.Readiness.
func (c *Console) Readiness(mask waiter.EventMask) waiter.EventMask {
	ready := waiter.EventOut
	c.mu.Lock()
	if len(c.input) > 0 || c.eof {
		ready |= waiter.EventIn
	}
	c.mu.Unlock()
	return mask & ready
}

// Register registers c as the console in r.
func Register(r *resource.Registry, c *Console) error {
	_, err := r.Register(ConsoleName, c, karnal.Mode(c.Modes))
	return err
}
