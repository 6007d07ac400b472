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
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/sentry/devices/memdev"
	"karnal.dev/karnal64/pkg/sentry/kernel/kerneltest"
)

func TestArchInfo(t *testing.T) {
	info, err := getArchInfo("sim64")
	if err != nil {
		t.Fatalf("getArchInfo(sim64): %v", err)
	}
	calls := sortedCalls(info["sim64"])
	if len(calls) != karnal.SysMemoryProtect {
		t.Fatalf("got %d system calls, want %d", len(calls), karnal.SysMemoryProtect)
	}
	for i, sc := range calls {
		if sc.num != uint64(i+1) {
			t.Errorf("calls[%d].num = %d, want %d", i, sc.num, i+1)
		}
	}
	for _, tc := range []struct {
		num  uint64
		name string
		ptrs []string
	}{
		{karnal.SysResourceAcquire, "resource_acquire", nil},
		{karnal.SysResourceRead, "resource_read", []string{"arg1[arg2] -w-"}},
		{karnal.SysResourceWrite, "resource_write", []string{"arg1[arg2] r--"}},
		{karnal.SysResourceStatus, "resource_status", []string{"arg1[16] -w-"}},
		{karnal.SysMemoryProtect, "memory_protect", nil},
	} {
		sc := info["sim64"].Syscalls[tc.num]
		if sc.Name != tc.name {
			t.Errorf("syscall %d name = %q, want %q", tc.num, sc.Name, tc.name)
		}
		if diff := cmp.Diff(tc.ptrs, sc.Pointers); diff != "" {
			t.Errorf("syscall %d pointers mismatch (-want +got):\n%s", tc.num, diff)
		}
	}

	if _, err := getArchInfo("vax"); err == nil {
		t.Errorf("getArchInfo(vax) succeeded")
	}
}

func TestOutputs(t *testing.T) {
	info, err := getArchInfo(archAll)
	if err != nil {
		t.Fatalf("getArchInfo(all): %v", err)
	}

	var buf bytes.Buffer
	if err := outputCSV(&buf, info); err != nil {
		t.Fatalf("outputCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading CSV: %v", err)
	}
	if len(rows) != karnal.SysMemoryProtect+1 {
		t.Errorf("CSV has %d rows, want %d", len(rows), karnal.SysMemoryProtect+1)
	}
	if diff := cmp.Diff([]string{"sim64", "1", "resource_acquire", ""}, rows[1]); diff != "" {
		t.Errorf("first CSV row mismatch (-want +got):\n%s", diff)
	}

	buf.Reset()
	if err := outputJSON(&buf, info); err != nil {
		t.Fatalf("outputJSON: %v", err)
	}
	var decoded map[string]ArchInfo
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decoding JSON: %v", err)
	}
	if got := decoded["sim64"].Syscalls[karnal.SysTaskSpawn].Name; got != "task_spawn" {
		t.Errorf("JSON syscall %d = %q, want task_spawn", karnal.SysTaskSpawn, got)
	}

	buf.Reset()
	if err := outputTable(&buf, info); err != nil {
		t.Fatalf("outputTable: %v", err)
	}
	if !strings.Contains(buf.String(), "memory_map") {
		t.Errorf("table output lacks memory_map:\n%s", buf.String())
	}
}

func TestModeString(t *testing.T) {
	for m, want := range map[karnal.Mode]string{
		0:                                    "---",
		karnal.ModeRead:                      "r--",
		karnal.ModeRead | karnal.ModeWrite:   "rw-",
		karnal.ModeExecute | karnal.ModeRead: "r-x",
		karnal.ModeMask:                      "rwx",
	} {
		if got := modeString(m); got != want {
			t.Errorf("modeString(%#x) = %q, want %q", m, got, want)
		}
	}
}

func TestPrintResources(t *testing.T) {
	k := kerneltest.New(t, kerneltest.Options{})
	if err := memdev.Register(k.Registry()); err != nil {
		t.Fatalf("memdev.Register: %v", err)
	}
	var buf bytes.Buffer
	if err := printResources(&buf, k); err != nil {
		t.Fatalf("printResources: %v", err)
	}
	var got [][]string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		got = append(got, strings.Fields(line))
	}
	want := [][]string{
		{"NAME", "MODES", "SIZE"},
		{memdev.KmsgName, "-w-", "-"},
		{memdev.NullName, "rw-", "-"},
		{memdev.ZeroName, "rw-", "-"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("printResources mismatch (-want +got):\n%s", diff)
	}
}
