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

// Package util groups helpers shared by karnal commands.
package util

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"
	"karnal.dev/karnal64/pkg/log"
)

// ErrorLogger is where error messages should be written to. These messages
// are consumed by the caller that invoked karnal.
var ErrorLogger io.Writer

// Errorf logs error to the error log and stderr, then returns ExitFailure.
func Errorf(format string, args ...any) subcommands.ExitStatus {
	// If karnal is being invoked by another tool, it will expect errors to
	// be in the error log as JSON.
	writeError(fmt.Sprintf(format, args...))
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return subcommands.ExitFailure
}

// Fatalf logs the same way as Errorf() does, plus *exits* the process.
func Fatalf(format string, args ...any) {
	Errorf(format, args...)
	// Return an error that is unlikely to be used by the init task.
	os.Exit(128)
}

func writeError(msg string) {
	log.Warningf("FATAL ERROR: %s", msg)
	if ErrorLogger == nil {
		return
	}
	b, err := json.Marshal(struct {
		Msg   string    `json:"msg"`
		Level string    `json:"level"`
		Time  time.Time `json:"time"`
	}{
		Msg:   msg,
		Level: "error",
		Time:  time.Now(),
	})
	if err != nil {
		log.Warningf("Failed to marshal error: %v", err)
		return
	}
	_, _ = ErrorLogger.Write(append(b, '\n'))
}
