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
	"net/http"
)

// Layer holds an immutable minification configuration and attaches it to
// handlers. A Layer is safe for concurrent use and is typically created once
// at startup and shared by every route it is attached to.
type Layer struct {
	cfg      *config
	backend  Backend
	minifier Minifier
	tel      *telemetry
}

// New returns a Layer configured by opts.
//
// It fails when no backend is available: either the binary was built with
// both minifyhtml_nostandard and minifyhtml_noonepass and no WithMinifier
// option was given (ErrNoBackend), or WithBackend names a backend that was
// compiled out (ErrBackendUnavailable).
//
// Basic usage:
//
//	layer, err := minifyhtml.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	http.ListenAndServe(":8080", layer.Handler(mux))
//
// Keep optional tags and drop comments:
//
//	layer := minifyhtml.MustNew(minifyhtml.WithStandardOptions(minifyhtml.StandardOptions{
//	    KeepClosingTags:            true,
//	    KeepHTMLAndHeadOpeningTags: true,
//	}))
//
// Single-pass backend with a buffering limit:
//
//	layer := minifyhtml.MustNew(
//	    minifyhtml.WithBackend(minifyhtml.BackendOnePass),
//	    minifyhtml.WithMaxBodySize(2 << 20),
//	    minifyhtml.WithLogger(logger),
//	)
func New(opts ...Option) (*Layer, error) {
	// Apply options to default config
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	backend, minifier, err := resolveMinifier(cfg)
	if err != nil {
		return nil, err
	}

	tel, err := newTelemetry(cfg)
	if err != nil {
		return nil, err
	}

	return &Layer{
		cfg:      cfg,
		backend:  backend,
		minifier: minifier,
		tel:      tel,
	}, nil
}

// MustNew is like New but panics on error. A binary that cannot minify
// refuses to start instead of silently serving unminified pages.
func MustNew(opts ...Option) *Layer {
	l, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return l
}

// Backend returns the active backend.
func (l *Layer) Backend() Backend {
	return l.backend
}

// Wrap attaches the layer to next and returns the resulting middleware.
// A nil next uses http.DefaultTransport, which makes the middleware a
// drop-in http.Client transport.
//
//	client := &http.Client{Transport: layer.Wrap(nil)}
func (l *Layer) Wrap(next http.RoundTripper) *Middleware {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Middleware{layer: l, next: next}
}

// ModifyResponse minifies resp in place. Its signature matches
// httputil.ReverseProxy.ModifyResponse:
//
//	proxy := &httputil.ReverseProxy{
//	    Rewrite:        rewrite,
//	    ModifyResponse: layer.ModifyResponse,
//	}
//
// It never returns an error; failures become 500 responses.
func (l *Layer) ModifyResponse(resp *http.Response) error {
	out := l.process(resp.Request, resp)
	if out != resp {
		*resp = *out
	}
	return nil
}
