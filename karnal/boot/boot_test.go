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
	"bytes"
	"context"
	"errors"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"karnal.dev/karnal64/karnal/config"
	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/log"
	"karnal.dev/karnal64/pkg/sentry/devices/memdev"
	"karnal.dev/karnal64/pkg/sentry/devices/ramdisk"
	"karnal.dev/karnal64/pkg/sentry/devices/sysdev"
	"karnal.dev/karnal64/pkg/sentry/devices/ttydev"
	"karnal.dev/karnal64/pkg/sentry/resource"
)

func init() {
	log.SetLevel(log.Debug)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	f := flag.NewFlagSet("test", flag.ContinueOnError)
	config.RegisterFlags(f)
	conf, err := config.NewFromFlags(f)
	if err != nil {
		t.Fatalf("NewFromFlags: %v", err)
	}
	conf.RootDir = t.TempDir()
	conf.MemorySize = 8 << 20
	return conf
}

func boot(t *testing.T, conf *config.Config) (*Loader, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	l, err := New(conf, nil, WithConsole(ttydev.NewConsole(ttydev.Options{Out: &out, FD: -1})))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := l.Destroy(); err != nil {
			t.Errorf("Destroy: %v", err)
		}
	})
	return l, &out
}

func runInit(t *testing.T, l *Loader) int32 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	code, err := l.WaitExit(ctx)
	if err != nil {
		t.Fatalf("WaitExit: %v", err)
	}
	return code
}

func TestRun(t *testing.T) {
	conf := testConfig(t)
	conf.InitArgs = "hello echo=hi meminfo"
	l, out := boot(t, conf)

	if code := runInit(t, l); code != 0 {
		t.Errorf("init exited with %d, want 0", code)
	}
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("console output has %d lines, want 4:\n%s", len(lines), out.String())
	}
	for i, prefix := range []string{"Karnal64 0.1.0, 2 CPUs, task ", "hello from task ", "hi", "total 2048 pages, free "} {
		if !strings.HasPrefix(lines[i], prefix) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], prefix)
		}
	}

	r, err := LoadRecord(conf.RootDir)
	if err != nil {
		t.Fatalf("LoadRecord: %v", err)
	}
	if r.Stage != StageExited || r.ExitCode == nil || *r.ExitCode != 0 || r.Error != "" {
		t.Errorf("record = %+v, want exited with code 0", r)
	}
}

func TestInitExitCode(t *testing.T) {
	conf := testConfig(t)
	conf.InitArgs = "nosuch hello"
	l, out := boot(t, conf)

	if code, want := runInit(t, l), int32(karnal.CodeNotFound); code != want {
		t.Errorf("init exited with %d, want %d", code, want)
	}
	if !strings.Contains(out.String(), "init: nosuch: not found\n") {
		t.Errorf("console output %q does not report the missing image", out.String())
	}
}

func TestResources(t *testing.T) {
	conf := testConfig(t)
	conf.Ramdisks = 2
	l, _ := boot(t, conf)

	want := []string{
		resource.BinPrefix + "echo",
		resource.BinPrefix + "hello",
		resource.BinPrefix + "init",
		resource.BinPrefix + "meminfo",
		ttydev.ConsoleName,
		memdev.KmsgName,
		memdev.NullName,
		ramdisk.Name(0),
		ramdisk.Name(1),
		memdev.ZeroName,
		sysdev.KernelName,
		sysdev.MemoryName,
	}
	if diff := cmp.Diff(want, l.Registry().Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigSnapshot(t *testing.T) {
	conf := testConfig(t)
	l, _ := boot(t, conf)
	conf.Init = "changed"
	if l.conf.Init != "init" {
		t.Errorf("loader config changed with the caller's: Init = %q", l.conf.Init)
	}
}

func TestStageFailure(t *testing.T) {
	conf := testConfig(t)
	conf.HandleTableSize = conf.MaxHandles + 1

	_, err := New(conf, nil, WithConsole(ttydev.NewConsole(ttydev.Options{Out: &bytes.Buffer{}, FD: -1})))
	var bootErr *Error
	if !errors.As(err, &bootErr) {
		t.Fatalf("New() = %v, want *Error", err)
	}
	if bootErr.Stage != StageHandles {
		t.Errorf("Stage = %q, want %q", bootErr.Stage, StageHandles)
	}

	r, err := LoadRecord(conf.RootDir)
	if err != nil {
		t.Fatalf("LoadRecord: %v", err)
	}
	if r.Stage != StageHandles || r.Error != bootErr.Error() {
		t.Errorf("record = %+v, want stage %q with error %q", r, StageHandles, bootErr.Error())
	}
}

func TestMissingInit(t *testing.T) {
	conf := testConfig(t)
	conf.Init = "nosuch"
	l, _ := boot(t, conf)

	err := l.Run(context.Background())
	var bootErr *Error
	if !errors.As(err, &bootErr) || bootErr.Stage != StageInit {
		t.Fatalf("Run() = %v, want *Error at stage %q", err, StageInit)
	}
	if _, err := l.WaitExit(context.Background()); err == nil {
		t.Errorf("WaitExit succeeded without an init task")
	}
}

func TestNoRecordWithoutRoot(t *testing.T) {
	conf := testConfig(t)
	conf.RootDir = ""
	l, _ := boot(t, conf)
	if code := runInit(t, l); code != 0 {
		t.Errorf("init exited with %d, want 0", code)
	}
}
