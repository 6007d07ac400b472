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
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadFile reads flag values from a configuration file. Keys are flag names
// and values are converted to flag strings directly, so that
//
//	cpus = 4
//	quantum = "5ms"
//
// is equivalent to --cpus=4 --quantum=5ms. Files ending in .yaml or .yml are
// parsed as YAML, everything else as TOML.
func LoadFile(path string) (map[string]string, error) {
	raw := make(map[string]any)
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	default:
		if _, err := toml.DecodeFile(path, &raw); err != nil {
			return nil, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	}

	values := make(map[string]string, len(raw))
	for name, v := range raw {
		switch v.(type) {
		case string, bool, int, int64, uint64, float64:
			values[name] = fmt.Sprint(v)
		default:
			return nil, fmt.Errorf("config file %q: value of %q must be a scalar, got %T", path, name, v)
		}
	}
	return values, nil
}
