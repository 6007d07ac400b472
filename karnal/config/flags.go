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

package config

import (
	"flag"
	"fmt"
	"iter"
	"reflect"
	"sort"
	"time"
)

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String("root", "", "root directory for the boot record. No record is kept if empty.")
	flagSet.String("config", "", "TOML or YAML file with flag values. Flags given on the command line take precedence.")

	// Logging flags.
	flagSet.Bool("debug", false, "log at debug level.")
	flagSet.String("log", "", "file that fatal errors are appended to as JSON lines, and that logs go to.")
	flagSet.String("log-format", "text", "log format: text, json or logrus.")
	flagSet.String("debug-log", "", "extra log destination. A trailing '/' names a directory for per-command files. %TIMESTAMP% and %COMMAND% are expanded.")
	flagSet.Bool("alsologtostderr", false, "also write logs to stderr.")

	// Flags that control the simulated machine.
	flagSet.Int("cpus", 2, "number of simulated CPUs.")
	flagSet.Uint64("memory-size", 64<<20, "size of simulated physical memory in bytes.")
	flagSet.Duration("quantum", 10*time.Millisecond, "scheduler time slice.")

	// Flags that control kernel limits.
	flagSet.Int("max-handles", 65536, "maximum number of handles per task.")
	flagSet.Int("handle-table-size", 1024, "initial capacity of a task's handle table.")
	flagSet.Uint64("channel-capacity", 4096, "byte capacity of channels created under karnal://sys/ipc/.")

	// Flags that control devices.
	flagSet.Int("ramdisks", 1, "number of RAM disks to register as karnal://device/ramdiskN.")
	flagSet.Uint64("ramdisk-size", 1<<20, "size of each RAM disk in bytes.")
	flagSet.Int("console-fd", -1, "host file descriptor backing the console device. -1 uses stdin and stdout.")

	// Flags that control the first task.
	flagSet.String("init", "init", "executable image under karnal://bin/ run as the first task.")
	flagSet.String("init-args", "", "argument block passed to the init task.")
}

// NewFromFlags returns the Config described by flagSet. Values missing from
// the command line are taken from the file named by --config, if any.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}
	for name, field := range conf.fields() {
		field.Set(reflect.ValueOf(get(mustLookup(flagSet, name).Value)))
	}
	if conf.ConfigFile != "" {
		if err := conf.applyFile(flagSet); err != nil {
			return nil, err
		}
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// applyFile sets the flags named in the config file that were not given on
// the command line, in name order.
func (c *Config) applyFile(flagSet *flag.FlagSet) error {
	values, err := LoadFile(c.ConfigFile)
	if err != nil {
		return err
	}
	explicit := make(map[string]bool)
	flagSet.Visit(func(fl *flag.Flag) { explicit[fl.Name] = true })
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		switch {
		case name == "config":
			return fmt.Errorf("%s: flag %q cannot be set from a config file", c.ConfigFile, name)
		case explicit[name]:
			continue
		}
		if err := c.set(flagSet, name, values[name]); err != nil {
			return fmt.Errorf("%s: %w", c.ConfigFile, err)
		}
	}
	return nil
}

// ToFlags returns the command line flags that reproduce c. Flags at their
// default value are left out.
func (c *Config) ToFlags() []string {
	defaults := flag.NewFlagSet("defaults", flag.ContinueOnError)
	RegisterFlags(defaults)

	var args []string
	for name, field := range c.fields() {
		val := format(field)
		if val != mustLookup(defaults, name).DefValue {
			args = append(args, fmt.Sprintf("--%s=%s", name, val))
		}
	}
	return args
}

// Override sets flag name to value and validates the result.
func (c *Config) Override(flagSet *flag.FlagSet, name string, value string) error {
	if err := c.set(flagSet, name, value); err != nil {
		return err
	}
	return c.validate()
}

// set parses value with the flag's own parser, so config files and
// overrides accept exactly what the command line does.
func (c *Config) set(flagSet *flag.FlagSet, name string, value string) error {
	for fieldName, field := range c.fields() {
		if fieldName != name {
			continue
		}
		fl := mustLookup(flagSet, name)
		if err := fl.Value.Set(value); err != nil {
			return fmt.Errorf("invalid value %q for flag %q: %w", value, name, err)
		}
		field.Set(reflect.ValueOf(get(fl.Value)))
		return nil
	}
	return fmt.Errorf("unknown flag %q (value %q)", name, value)
}

// fields yields the flag name and settable value of every Config field
// with a flag tag, in declaration order.
func (c *Config) fields() iter.Seq2[string, reflect.Value] {
	return func(yield func(string, reflect.Value) bool) {
		obj := reflect.ValueOf(c).Elem()
		for _, f := range reflect.VisibleFields(obj.Type()) {
			name, ok := f.Tag.Lookup("flag")
			if !ok {
				continue
			}
			if !yield(name, obj.FieldByIndex(f.Index)) {
				return
			}
		}
	}
}

// mustLookup returns the flag registered for a Config field. Every tagged
// field has one, so a miss is a programming error.
func mustLookup(flagSet *flag.FlagSet, name string) *flag.Flag {
	fl := flagSet.Lookup(name)
	if fl == nil {
		panic(fmt.Sprintf("no flag registered for config field %q", name))
	}
	return fl
}

// get returns the typed value held by a flag created by RegisterFlags.
func get(v flag.Value) any {
	g, ok := v.(flag.Getter)
	if !ok {
		panic(fmt.Sprintf("flag value %T does not implement flag.Getter", v))
	}
	return g.Get()
}

// format renders a field the way its flag prints its default.
func format(field reflect.Value) string {
	return fmt.Sprint(field.Interface())
}
