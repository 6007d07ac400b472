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

package cli

import (
	"testing"
	"time"
)

func TestDebugLogOpts(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)
	opts := debugLogOpts{command: "boot", start: start}
	for pattern, want := range map[string]string{
		"/tmp/karnal.log":                   "/tmp/karnal.log",
		"/tmp/logs/":                        "/tmp/logs/karnal.log.20260102-030405.000006.boot",
		"/tmp/%COMMAND%-%TIMESTAMP%.txt":    "/tmp/boot-20260102-030405.000006.txt",
		"/var/log/karnal/%COMMAND%/out.log": "/var/log/karnal/boot/out.log",
	} {
		if got := opts.Build(pattern); got != want {
			t.Errorf("Build(%q) = %q, want %q", pattern, got, want)
		}
	}
}

func TestNewEmitter(t *testing.T) {
	for _, format := range []string{"text", "json", "logrus"} {
		if e := newEmitter(format, nil); e == nil {
			t.Errorf("newEmitter(%q) = nil", format)
		}
	}
}
