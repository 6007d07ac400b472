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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/google/subcommands"
	"karnal.dev/karnal64/karnal/boot"
	"karnal.dev/karnal64/karnal/cmd/util"
	"karnal.dev/karnal64/karnal/config"
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/sentry/devices/ttydev"
	"karnal.dev/karnal64/pkg/sentry/kernel"
)

// Resources implements subcommands.Command for the "resources" command.
type Resources struct{}

// Name implements subcommands.Command.Name.
func (*Resources) Name() string {
	return "resources"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Resources) Synopsis() string {
	return "boot the kernel and list the registered resources"
}

// Usage implements subcommands.Command.Usage.
func (*Resources) Usage() string {
	return `resources - boot the kernel without running init and list every
registered resource with its default modes and size.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Resources) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Resources) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	// The console is never read here; keep it off the host terminal.
	l, err := boot.New(conf, nil, boot.WithConsole(ttydev.NewConsole(ttydev.Options{Out: io.Discard, FD: -1})))
	if err != nil {
		util.Fatalf("booting kernel: %v", err)
	}
	defer l.Destroy()

	if err := printResources(os.Stdout, l.Kernel()); err != nil {
		return util.Errorf("listing resources: %v", err)
	}
	return subcommands.ExitSuccess
}

func printResources(w io.Writer, k *kernel.Kernel) error {
	ctx := k.SupervisorContext()
	r := k.Registry()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "NAME\tMODES\tSIZE\n")
	for _, name := range r.Names() {
		e, err := r.Lookup(name)
		if err != nil {
			// Deregistered since Names.
			continue
		}
		size := "-"
		if st := e.Provider().Status(ctx); st.HasSize {
			size = strconv.FormatUint(st.Size, 10)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, modeString(e.DefaultModes()), size)
	}
	return tw.Flush()
}

// modeString renders the access bits of m like "rw-".
func modeString(m karnal.Mode) string {
	b := []byte("---")
	for i, bit := range []karnal.Mode{karnal.ModeRead, karnal.ModeWrite, karnal.ModeExecute} {
		if m.Has(bit) {
			b[i] = "rwx"[i]
		}
	}
	return string(b)
}
