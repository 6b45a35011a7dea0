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

// Package minifyhtml provides middleware that minifies HTML responses.
//
// A Layer holds an immutable configuration and attaches to a handler. The
// wrapped handler's responses are inspected once: responses whose
// Content-Type contains "text/html" are buffered, minified and sent without
// Content-Length; everything else passes through untouched, body included.
//
// # Basic Usage
//
//	import "rivaas.dev/minifyhtml"
//
//	layer := minifyhtml.MustNew()
//
//	// net/http, chi, or any func(http.Handler) http.Handler chain
//	http.ListenAndServe(":8080", layer.Handler(mux))
//
//	// http.Client transport
//	client := &http.Client{Transport: layer.Wrap(http.DefaultTransport)}
//
//	// reverse proxy
//	proxy := &httputil.ReverseProxy{Rewrite: rewrite, ModifyResponse: layer.ModifyResponse}
//
// gin and echo adapters live in the ginminify and echominify subpackages.
//
// # Backends
//
// Two backends can be compiled in:
//
//   - BackendStandard: a general-purpose minifier. It never fails.
//     Excluded with the build tag minifyhtml_nostandard.
//   - BackendOnePass: a single pass over the buffered body that rewrites it
//     in place. It rejects malformed markup. Excluded with the build tag
//     minifyhtml_noonepass.
//
// When both are compiled in BackendStandard is the default. New returns
// ErrNoBackend when neither is available and no custom Minifier was given.
//
// # Failures
//
// Errors returned by the wrapped handler are returned unchanged. When the
// body cannot be read, decoded or minified the response is replaced by a
// plain-text 500 Internal Server Error. Failures are reported through the
// event handler (see WithLogger) and, when configured, as span errors.
//
// # Content Encoding
//
// Bodies encoded with gzip, deflate or br are decoded, minified and encoded
// again with the same coding. Other or stacked codings pass through.
//
// # Observability
//
//	minifyhtml.New(
//	    minifyhtml.WithLogger(slog.Default()),
//	    minifyhtml.WithMeterProvider(meterProvider),
//	    minifyhtml.WithTracerProvider(tracerProvider),
//	)
//
// Metrics: minifyhtml.responses (by backend and outcome),
// minifyhtml.body.input.size, minifyhtml.body.output.size and
// minifyhtml.duration.
package minifyhtml
