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

// Package cmd holds implementations of the karnal commands.
package cmd

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"
	"karnal.dev/karnal64/karnal/boot"
	"karnal.dev/karnal64/karnal/cmd/util"
	"karnal.dev/karnal64/karnal/config"
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/log"
)

// Boot implements subcommands.Command for the "boot" command.
type Boot struct {
	// timeout bounds how long init may run. Zero means no limit.
	timeout time.Duration
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "boot the kernel and run the init task until it exits"
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return `boot [flags] - boot the kernel, run the init task named by --init and
exit with its exit code.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&b.timeout, "timeout", 0, "interrupt all tasks if init runs longer than this.")
}

// Execute implements subcommands.Command.Execute. It expects the
// configuration and a pointer to the exit code in args.
func (b *Boot) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	exitCode := args[1].(*int)

	l, err := boot.New(conf, nil)
	if err != nil {
		util.Fatalf("booting kernel: %v", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, unix.SIGTERM)
	defer stop()
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	if err := l.Run(ctx); err != nil {
		l.Destroy()
		util.Fatalf("running init: %v", err)
	}
	code, err := l.WaitExit(ctx)
	if err != nil {
		log.Warningf("Stopping kernel: %v", err)
		code = int32(karnal.CodeInterrupted)
	}
	if err := l.Destroy(); err != nil {
		return util.Errorf("stopping kernel: %v", err)
	}
	log.Infof("Init exited with code %d", code)
	// Exit codes are reported to the host in a byte.
	*exitCode = int(uint8(code))
	return subcommands.ExitSuccess
}
