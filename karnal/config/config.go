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

// Package config provides basic infrastructure to set configuration settings
// for karnal. The configuration is set by flags to the command line. A
// configuration file may supply values for flags not given on the command
// line.
package config

import (
	"fmt"
	"time"

	"karnal.dev/karnal64/pkg/hostarch"
	"karnal.dev/karnal64/pkg/log"
)

// Config holds configuration that is not part of the init program's
// arguments.
//
// Follow these steps to add a new flag:
//  1. Create a new field in Config.
//  2. Add a field tag with the flag name.
//  3. Register a new flag in flags.go, with name and description.
//  4. Add any necessary validation into validate().
//  5. If adding a config option that must be set with a flag, make sure the
//     flag is passed to sub-processes through ToFlags().
type Config struct {
	// RootDir is the runtime root directory. The boot record and its lock
	// are kept there.
	RootDir string `flag:"root"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log"`

	// LogFormat is the log format: "text", "json" or "logrus".
	LogFormat string `flag:"log-format"`

	// DebugLog is the path to log debug information to, if not empty.
	DebugLog string `flag:"debug-log"`

	// AlsoLogToStderr allows to send log messages to stderr.
	AlsoLogToStderr bool `flag:"alsologtostderr"`

	// CPUs is the number of simulated CPUs.
	CPUs int `flag:"cpus"`

	// MemorySize is the size of simulated physical memory in bytes.
	MemorySize uint64 `flag:"memory-size"`

	// MaxHandles is the hard cap on handles per task.
	MaxHandles int `flag:"max-handles"`

	// HandleTableSize is the initial capacity of a task's handle table.
	HandleTableSize int `flag:"handle-table-size"`

	// ChannelCapacity is the byte capacity of channels created under
	// karnal://sys/ipc/.
	ChannelCapacity uint64 `flag:"channel-capacity"`

	// Quantum is the scheduler time slice.
	Quantum time.Duration `flag:"quantum"`

	// Ramdisks is the number of RAM disks to register.
	Ramdisks int `flag:"ramdisks"`

	// RamdiskSize is the size of each RAM disk in bytes.
	RamdiskSize uint64 `flag:"ramdisk-size"`

	// ConsoleFD is the host file descriptor the console device reads and
	// writes. -1 means stdin and stdout.
	ConsoleFD int `flag:"console-fd"`

	// Init is the name of the executable image run as the first task.
	Init string `flag:"init"`

	// InitArgs is passed to the init task as its argument block.
	InitArgs string `flag:"init-args"`

	// ConfigFile is a TOML or YAML file with additional flag values.
	ConfigFile string `flag:"config"`
}

// Minimum values accepted for sizes.
const (
	minMemorySize = 1 << 20
	maxCPUs       = 256
)

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json", "logrus":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text', 'json', or 'logrus'", c.LogFormat)
	}
	if c.CPUs < 1 || c.CPUs > maxCPUs {
		return fmt.Errorf("cpus must be in [1, %d], got %d", maxCPUs, c.CPUs)
	}
	if c.MemorySize < minMemorySize || c.MemorySize%hostarch.PageSize != 0 {
		return fmt.Errorf("memory-size must be a multiple of %d of at least %d bytes, got %d", hostarch.PageSize, minMemorySize, c.MemorySize)
	}
	if c.MaxHandles <= 0 {
		return fmt.Errorf("max-handles must be positive, got %d", c.MaxHandles)
	}
	if c.HandleTableSize <= 0 || c.HandleTableSize > c.MaxHandles {
		return fmt.Errorf("handle-table-size must be in [1, max-handles=%d], got %d", c.MaxHandles, c.HandleTableSize)
	}
	if c.ChannelCapacity == 0 {
		return fmt.Errorf("channel-capacity must be positive")
	}
	if c.Quantum <= 0 {
		return fmt.Errorf("quantum must be positive, got %v", c.Quantum)
	}
	if c.Ramdisks < 0 {
		return fmt.Errorf("ramdisks must not be negative, got %d", c.Ramdisks)
	}
	if c.Ramdisks > 0 && c.RamdiskSize == 0 {
		return fmt.Errorf("ramdisk-size must be positive when ramdisks are configured")
	}
	if c.ConsoleFD < -1 {
		return fmt.Errorf("console-fd must be -1 or a file descriptor, got %d", c.ConsoleFD)
	}
	if c.Init == "" {
		return fmt.Errorf("init must not be empty")
	}
	return nil
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	for name, field := range c.fields() {
		log.Infof("\t%s: %s", name, format(field))
	}
}
