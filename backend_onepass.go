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

//go:build !minifyhtml_noonepass

package minifyhtml

import "rivaas.dev/minifyhtml/internal/onepass"

func init() {
	registerBackend(BackendOnePass, newOnePassMinifier)
}

type onePassMinifier struct {
	opts onepass.Options
}

func newOnePassMinifier(cfg *config) Minifier {
	return &onePassMinifier{
		opts: onepass.Options{KeepComments: cfg.onePass.KeepComments},
	}
}

// Minify rewrites src in place and returns the shortened slice.
func (o *onePassMinifier) Minify(src []byte) ([]byte, error) {
	n, err := onepass.InPlace(src, o.opts)
	if err != nil {
		return nil, err
	}
	return src[:n], nil
}
