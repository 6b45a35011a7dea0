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

package minifyhtml

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBackend is returned by New when no backend is compiled in and no
	// custom Minifier was supplied.
	ErrNoBackend = errors.New("minifyhtml: no minification backend compiled in")

	// ErrBackendUnavailable is returned by New when the selected backend was
	// excluded at build time.
	ErrBackendUnavailable = errors.New("minifyhtml: backend not compiled in")
)

// Backend selects the minification strategy.
type Backend uint8

const (
	// BackendStandard is the general-purpose backend. It never fails:
	// malformed HTML is minified as well as possible.
	// Excluded by the build tag minifyhtml_nostandard.
	BackendStandard Backend = iota + 1

	// BackendOnePass is the single-pass, in-place backend. It allocates
	// nothing beyond the buffered body and rejects input it cannot tokenize.
	// Excluded by the build tag minifyhtml_noonepass.
	BackendOnePass

	// BackendCustom is a caller-supplied Minifier, see WithMinifier.
	BackendCustom
)

// String returns the backend name.
func (b Backend) String() string {
	switch b {
	case BackendStandard:
		return "standard"
	case BackendOnePass:
		return "onepass"
	case BackendCustom:
		return "custom"
	default:
		return fmt.Sprintf("backend(%d)", uint8(b))
	}
}

// ParseBackend returns the backend with the given name.
func ParseBackend(name string) (Backend, error) {
	switch name {
	case "standard":
		return BackendStandard, nil
	case "onepass":
		return BackendOnePass, nil
	default:
		return 0, fmt.Errorf("minifyhtml: unknown backend %q", name)
	}
}

// Minifier is a minification strategy. Minify receives the complete
// response body and returns the minified document. Implementations may
// modify src and may return a slice of it. They must be safe for
// concurrent use.
type Minifier interface {
	Minify(src []byte) ([]byte, error)
}

// MinifierFunc adapts a function to the Minifier interface.
type MinifierFunc func(src []byte) ([]byte, error)

// Minify calls f(src).
func (f MinifierFunc) Minify(src []byte) ([]byte, error) {
	return f(src)
}

// TransformError reports a backend that rejected its input.
type TransformError struct {
	Backend Backend
	Err     error
}

// Error implements the error interface.
func (e *TransformError) Error() string {
	return fmt.Sprintf("minifyhtml: %s backend: %v", e.Backend, e.Err)
}

// Unwrap returns the backend error.
func (e *TransformError) Unwrap() error {
	return e.Err
}

// backendFactory builds a Minifier from the layer configuration.
type backendFactory func(cfg *config) Minifier

// backends holds the compiled-in backends. Files guarded by build tags
// register themselves from init.
var backends = map[Backend]backendFactory{}

// preference is the default selection order.
var preference = []Backend{BackendStandard, BackendOnePass}

func registerBackend(b Backend, f backendFactory) {
	backends[b] = f
}

// Backends returns the compiled-in backends in default preference order.
func Backends() []Backend {
	available := make([]Backend, 0, len(preference))
	for _, b := range preference {
		if _, ok := backends[b]; ok {
			available = append(available, b)
		}
	}
	return available
}

// resolveMinifier picks the backend and builds its Minifier.
func resolveMinifier(cfg *config) (Backend, Minifier, error) {
	if cfg.backend == BackendCustom {
		if cfg.minifier == nil {
			return 0, nil, fmt.Errorf("%w: custom backend without a Minifier", ErrBackendUnavailable)
		}
		return BackendCustom, cfg.minifier, nil
	}

	if cfg.backend != 0 {
		f, ok := backends[cfg.backend]
		if !ok {
			return 0, nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, cfg.backend)
		}
		return cfg.backend, f(cfg), nil
	}

	available := Backends()
	if len(available) == 0 {
		return 0, nil, ErrNoBackend
	}
	b := available[0]

	return b, backends[b](cfg), nil
}
