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
	"sort"
	"strings"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/sentry/devices/sysdev"
	"karnal.dev/karnal64/pkg/sentry/loader"
	"karnal.dev/karnal64/pkg/sentry/platform/sim"
	"karnal.dev/karnal64/pkg/sentry/resource"
	"karnal.dev/karnal64/pkg/ulib"
)

// programPrefix namespaces the built-in programs in the sim program table.
const programPrefix = "karnal/boot/"

// builtins are the images registered under karnal://bin/ at boot.
var builtins = map[string]sim.Program{
	"init":    initMain,
	"hello":   helloMain,
	"echo":    echoMain,
	"meminfo": meminfoMain,
}

func init() {
	for name, prog := range builtins {
		sim.RegisterProgram(programPrefix+name, prog)
	}
}

// Images returns the names of the built-in images in sorted order.
func Images() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func registerImages(r *resource.Registry) error {
	for _, name := range Images() {
		img := loader.BuildImage(sim.Code(programPrefix+name), 0)
		if err := loader.RegisterImage(r, name, img); err != nil {
			return err
		}
	}
	return nil
}

// initMain prints a banner and runs the images named in its arguments one
// after another, waiting for each. An argument "name=arg" passes arg to the
// image. With no arguments it runs hello. The exit code is the first
// non-zero child exit code.
func initMain(u *sim.User) {
	p := ulib.New(u)
	if err := banner(p); err != nil {
		p.Exit(int32(kerr.Code(err)))
	}

	jobs := strings.Fields(string(p.Args()))
	if len(jobs) == 0 {
		jobs = []string{"hello"}
	}
	var code int32
	for _, job := range jobs {
		name, arg, _ := strings.Cut(job, "=")
		c, err := runJob(p, name, []byte(arg))
		if err != nil {
			p.Printf("init: %s: %v\n", name, err)
			c = int32(kerr.Code(err))
		}
		if code == 0 {
			code = c
		}
	}
	p.Exit(code)
}

func runJob(p *ulib.Proc, name string, arg []byte) (int32, error) {
	id, err := p.Run(name, arg)
	if err != nil {
		return 0, err
	}
	return p.Wait(id)
}

func banner(p *ulib.Proc) error {
	h, err := p.Acquire(sysdev.KernelName, karnal.ModeRead)
	if err != nil {
		return err
	}
	defer p.Release(h)
	ver, err := p.Control(h, karnal.KernelInfoVersion, 0)
	if err != nil {
		return err
	}
	cpus, err := p.Control(h, karnal.KernelInfoCPUs, 0)
	if err != nil {
		return err
	}
	return p.Printf("Karnal64 %d.%d.%d, %d CPUs, task %d\n", ver>>32, ver>>16&0xffff, ver&0xffff, cpus, p.ID())
}

func helloMain(u *sim.User) {
	p := ulib.New(u)
	p.Printf("hello from task %d\n", p.ID())
}

func echoMain(u *sim.User) {
	p := ulib.New(u)
	if _, err := p.Write(ulib.Stdout, append(p.Args(), '\n'), karnal.OffsetCursor); err != nil {
		p.Exit(int32(kerr.Code(err)))
	}
}

func meminfoMain(u *sim.User) {
	p := ulib.New(u)
	h, err := p.Acquire(sysdev.MemoryName, karnal.ModeRead)
	if err != nil {
		p.Exit(int32(kerr.Code(err)))
	}
	buf, err := p.Read(h, karnal.SizeofMemoryInfo, 0)
	if err != nil {
		p.Exit(int32(kerr.Code(err)))
	}
	var info karnal.MemoryInfo
	if err := info.UnmarshalBytes(buf); err != nil {
		p.Exit(int32(karnal.CodeInternalError))
	}
	p.Printf("total %d pages, free %d pages, largest free block %d pages\n",
		info.Total/hostarch.PageSize, info.Free/hostarch.PageSize, info.LargestFreeBlock/hostarch.PageSize)
}
