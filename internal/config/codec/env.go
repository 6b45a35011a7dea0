// Copyright 2025 The Rivaas Authors
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

package codec

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// TypeEnvVar decodes KEY=value lines as produced by os.Environ.
const TypeEnvVar Type = "env_var"

// NestingSeparator splits an environment variable name into nested keys.
// A single underscore stays part of the key, so MINIFY__KEEP_COMMENTS
// becomes minify.keep_comments.
const NestingSeparator = "__"

func init() {
	Register(TypeEnvVar, EnvVarCodec{})
}

// EnvVarCodec decodes environment variables into a nested map.
// Keys are lowercased; values are kept as strings and converted when the
// configuration is bound.
type EnvVarCodec struct{}

// Decode implements Decoder. v must be a *map[string]any.
func (EnvVarCodec) Decode(data []byte, v any) error {
	ptr, ok := v.(*map[string]any)
	if !ok {
		return fmt.Errorf("EnvVarCodec.Decode: expected *map[string]any, got %T", v)
	}

	conf := make(map[string]any)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), "=")
		if !found {
			continue
		}

		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		parts := make([]string, 0, 4)
		for _, part := range strings.Split(strings.ToLower(key), NestingSeparator) {
			if part = strings.Trim(part, "_"); part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) == 0 {
			continue
		}

		current := conf
		for _, part := range parts[:len(parts)-1] {
			next, ok := current[part].(map[string]any)
			if !ok {
				// A scalar set earlier is replaced by the nested section
				next = make(map[string]any)
				current[part] = next
			}
			current = next
		}
		current[parts[len(parts)-1]] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan environment: %w", err)
	}

	*ptr = conf

	return nil
}
