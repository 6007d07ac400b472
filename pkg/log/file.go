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
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileOpts expands a log file pattern into a path.
type FileOpts interface {
	// Build returns the path that pattern names.
	Build(pattern string) string
}

// OpenFile opens the log file that opts makes of pattern. Missing parent
// directories are created when flags include os.O_CREATE. An empty pattern
// opens nothing and returns a nil file.
func OpenFile(pattern string, flags int, opts FileOpts) (*os.File, error) {
	if pattern == "" {
		return nil, nil
	}
	path := opts.Build(pattern)
	if path == "" || strings.HasSuffix(path, string(filepath.Separator)) {
		return nil, fmt.Errorf("log file pattern %q does not name a file", pattern)
	}
	if flags&os.O_CREATE != 0 {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o775); err != nil {
				return nil, fmt.Errorf("creating log directory %q: %w", dir, err)
			}
		}
	}
	f, err := os.OpenFile(path, flags, 0o664)
	if err != nil {
		return nil, fmt.Errorf("opening log file %q: %w", path, err)
	}
	return f, nil
}
