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

package source

import (
	"context"
	"fmt"
	"os"
	"strings"

	"rivaas.dev/minifyhtml/internal/config/codec"
)

// OSEnvVar loads the environment variables that start with a prefix.
// With prefix "MINIFYHTML_", MINIFYHTML_STANDARD__KEEP_COMMENTS becomes
// standard.keep_comments.
type OSEnvVar struct {
	prefix  string
	environ func() []string
	decoder codec.Decoder
}

// NewOSEnvVar returns an OSEnvVar source for prefix.
func NewOSEnvVar(prefix string) *OSEnvVar {
	return &OSEnvVar{
		prefix:  prefix,
		environ: os.Environ,
		decoder: codec.EnvVarCodec{},
	}
}

// Load implements config.Source.
func (e *OSEnvVar) Load(context.Context) (map[string]any, error) {
	env := e.environ()
	valid := make([]string, 0, len(env))
	for _, kv := range env {
		if rest, ok := strings.CutPrefix(kv, e.prefix); ok {
			valid = append(valid, rest)
		}
	}

	var conf map[string]any
	if err := e.decoder.Decode([]byte(strings.Join(valid, "\n")), &conf); err != nil {
		return nil, fmt.Errorf("failed to decode environment variables: %w", err)
	}

	return conf, nil
}
