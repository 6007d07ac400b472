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
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"
	"karnal.dev/karnal64/karnal/cmd/util"
	"karnal.dev/karnal64/pkg/sentry/kernel"

	// Register the system call table.
	_ "karnal.dev/karnal64/pkg/sentry/syscalls/karnal"
)

// Syscalls implements subcommands.Command for the "syscalls" command.
type Syscalls struct {
	output string
	arch   string
}

// ArchInfo is the system call table of one architecture.
type ArchInfo struct {
	// Syscalls maps syscall number for the architecture to the doc.
	Syscalls map[uint64]SyscallDoc `json:"syscalls"`
}

// SyscallDoc represents a single item of syscall documentation.
type SyscallDoc struct {
	Name string `json:"name"`
	num  uint64

	// Pointers describes the user buffers the dispatcher validates before
	// the handler runs.
	Pointers []string `json:"pointers,omitempty"`
}

type outputFunc func(io.Writer, map[string]ArchInfo) error

// archAll is the name to use for printing all architectures.
const archAll = "all"

// outputMap maps output type names to output functions.
var outputMap = map[string]outputFunc{
	"table": outputTable,
	"json":  outputJSON,
	"csv":   outputCSV,
}

// Name implements subcommands.Command.Name.
func (*Syscalls) Name() string {
	return "syscalls"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Syscalls) Synopsis() string {
	return "Print the system call table."
}

// Usage implements subcommands.Command.Usage.
func (*Syscalls) Usage() string {
	return `syscalls [options] - Print the system call table.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Syscalls) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.output, "o", "table", "Output format (table, csv, json).")
	f.StringVar(&s.arch, "arch", archAll, "The CPU architecture (e.g. sim64).")
}

// Execute implements subcommands.Command.Execute.
func (s *Syscalls) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	out, ok := outputMap[s.output]
	if !ok {
		util.Fatalf("Unsupported output format %q", s.output)
	}
	info, err := getArchInfo(s.arch)
	if err != nil {
		util.Fatalf("%v", err)
	}
	if err := out(os.Stdout, info); err != nil {
		util.Fatalf("Error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

// getArchInfo returns the tables for archName, or for every architecture if
// archName is "all".
func getArchInfo(archName string) (map[string]ArchInfo, error) {
	info := make(map[string]ArchInfo)
	for _, t := range kernel.SyscallTables() {
		if archName != archAll && t.Arch.String() != archName {
			continue
		}
		ai := ArchInfo{Syscalls: make(map[uint64]SyscallDoc)}
		for num, sc := range t.Table {
			ai.Syscalls[num] = SyscallDoc{
				Name:     sc.Name,
				num:      num,
				Pointers: describePointers(sc.Pointers),
			}
		}
		info[t.Arch.String()] = ai
	}
	if len(info) == 0 {
		return nil, fmt.Errorf("syscall table for %s not found", archName)
	}
	return info, nil
}

func describePointers(ptrs []kernel.PointerArg) []string {
	var desc []string
	for _, p := range ptrs {
		length := fmt.Sprintf("arg%d", p.Len)
		if p.Len < 0 {
			length = strconv.FormatUint(p.Size, 10)
		}
		desc = append(desc, fmt.Sprintf("arg%d[%s] %v", p.Ptr, length, p.Access))
	}
	return desc
}

func sortedArchs(info map[string]ArchInfo) []string {
	archs := make([]string, 0, len(info))
	for name := range info {
		archs = append(archs, name)
	}
	sort.Strings(archs)
	return archs
}

func sortedCalls(ai ArchInfo) []SyscallDoc {
	calls := make([]SyscallDoc, 0, len(ai.Syscalls))
	for _, sc := range ai.Syscalls {
		calls = append(calls, sc)
	}
	sort.Slice(calls, func(i, j int) bool {
		return calls[i].num < calls[j].num
	})
	return calls
}

// outputTable outputs the syscall info in tabular format.
func outputTable(w io.Writer, info map[string]ArchInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, archName := range sortedArchs(info) {
		fmt.Fprintf(w, "%s:\n\n", archName)

		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", "NUM", "NAME", "POINTERS"); err != nil {
			return err
		}
		for _, sc := range sortedCalls(info[archName]) {
			_, err := fmt.Fprintf(tw, "%s\t%s\t%s\n",
				strconv.FormatUint(sc.num, 10),
				sc.Name,
				strings.Join(sc.Pointers, ", "),
			)
			if err != nil {
				return err
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// outputJSON outputs the syscall info in JSON format.
func outputJSON(w io.Writer, info map[string]ArchInfo) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(info)
}

// outputCSV outputs the syscall info in CSV format.
func outputCSV(w io.Writer, info map[string]ArchInfo) error {
	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write([]string{"Arch", "Num", "Name", "Pointers"}); err != nil {
		return err
	}
	for _, archName := range sortedArchs(info) {
		for _, sc := range sortedCalls(info[archName]) {
			err := csvWriter.Write([]string{
				archName,
				strconv.FormatUint(sc.num, 10),
				sc.Name,
				strings.Join(sc.Pointers, "; "),
			})
			if err != nil {
				return err
			}
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}
