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


package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type patternOpts map[string]string

func (p patternOpts) Build(pattern string) string {
	for k, v := range p {
		pattern = strings.ReplaceAll(pattern, k, v)
	}
	return pattern
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	opts := patternOpts{"%COMMAND%": "boot"}

	f, err := OpenFile(filepath.Join(dir, "a", "b", "%COMMAND%.log"), os.O_CREATE|os.O_WRONLY, opts)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()
	if want := filepath.Join(dir, "a", "b", "boot.log"); f.Name() != want {
		t.Errorf("opened %q, want %q", f.Name(), want)
	}

	if f, err := OpenFile("", os.O_CREATE|os.O_WRONLY, opts); f != nil || err != nil {
		t.Errorf("OpenFile(\"\") = %v, %v, want nil, nil", f, err)
	}
	if _, err := OpenFile(filepath.Join(dir, "missing", "x.log"), os.O_WRONLY, opts); err == nil {
		t.Errorf("OpenFile without O_CREATE created a directory")
	}
	if _, err := OpenFile(dir+string(filepath.Separator), os.O_CREATE|os.O_WRONLY, opts); err == nil {
		t.Errorf("OpenFile of a directory pattern succeeded")
	}
}
