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
	"compress/gzip"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Option defines functional options for the minification layer.
type Option func(*config)

// StandardOptions configures the general-purpose backend.
// The zero value minifies as aggressively as the backend allows.
type StandardOptions struct {
	// KeepClosingTags keeps optional end tags such as </p> and </li>.
	KeepClosingTags bool `config:"keep_closing_tags"`

	// KeepHTMLAndHeadOpeningTags keeps the optional <html> and <head> tags.
	KeepHTMLAndHeadOpeningTags bool `config:"keep_html_and_head_opening_tags"`

	// KeepComments keeps HTML comments.
	KeepComments bool `config:"keep_comments"`

	// KeepWhitespace keeps whitespace between inline elements.
	KeepWhitespace bool `config:"keep_whitespace"`

	// KeepQuotes keeps quotes around attribute values.
	KeepQuotes bool `config:"keep_quotes"`

	// KeepDefaultAttrValues keeps attributes set to their default value.
	KeepDefaultAttrValues bool `config:"keep_default_attr_values"`

	// MinifyCSS minifies <style> elements and style attributes.
	MinifyCSS bool `config:"minify_css"`

	// MinifyJS minifies <script> elements.
	MinifyJS bool `config:"minify_js"`
}

// OnePassOptions configures the single-pass backend.
type OnePassOptions struct {
	// KeepComments keeps HTML comments.
	KeepComments bool `config:"keep_comments"`
}

// config holds the configuration for the minification layer.
// It is never modified after New returns.
type config struct {
	// backend is the selected backend; zero means "use the default".
	backend Backend

	standard StandardOptions
	onePass  OnePassOptions

	// minifier is a caller-supplied strategy (BackendCustom).
	minifier Minifier

	// maxBodySize caps the number of buffered bytes; 0 disables the cap.
	maxBodySize int64

	// gzipLevel and brotliLevel are used when re-encoding minified bodies.
	gzipLevel   int
	brotliLevel int

	eventHandler   EventHandler
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// defaultConfig returns the default configuration for the minification layer.
func defaultConfig() *config {
	return &config{
		gzipLevel:    gzip.DefaultCompression,
		brotliLevel:  4, // Conservative for dynamic content
		eventHandler: func(Event) {},
	}
}

// WithBackend selects the minification backend.
// Default: BackendStandard when compiled in, BackendOnePass otherwise.
//
// Example:
//
//	minifyhtml.New(minifyhtml.WithBackend(minifyhtml.BackendOnePass))
func WithBackend(backend Backend) Option {
	return func(cfg *config) {
		cfg.backend = backend
	}
}

// WithStandardOptions sets the options passed to the standard backend.
//
// Example:
//
//	minifyhtml.New(minifyhtml.WithStandardOptions(minifyhtml.StandardOptions{
//	    KeepClosingTags:            true,
//	    KeepHTMLAndHeadOpeningTags: true,
//	}))
func WithStandardOptions(opts StandardOptions) Option {
	return func(cfg *config) {
		cfg.standard = opts
	}
}

// WithOnePassOptions sets the options passed to the single-pass backend.
func WithOnePassOptions(opts OnePassOptions) Option {
	return func(cfg *config) {
		cfg.onePass = opts
	}
}

// WithMinifier installs a custom minification strategy and selects
// BackendCustom. Errors returned by the minifier are handled like
// single-pass failures.
func WithMinifier(m Minifier) Option {
	return func(cfg *config) {
		cfg.minifier = m
		cfg.backend = BackendCustom
	}
}

// WithMaxBodySize limits how many bytes are buffered for minification.
// Larger responses are passed through unmodified with their original
// Content-Length. The limit also applies to the decoded size of
// gzip/deflate/br bodies. Zero or a negative value disables the limit.
// Default: 0 (unlimited)
//
// Example:
//
//	minifyhtml.New(minifyhtml.WithMaxBodySize(4 << 20)) // 4MB
func WithMaxBodySize(size int64) Option {
	return func(cfg *config) {
		cfg.maxBodySize = max(0, size)
	}
}

// WithGzipLevel sets the level used to re-encode gzip and deflate bodies.
// Valid values: -2 (Huffman only) to 9 (best compression).
// Default: gzip.DefaultCompression
func WithGzipLevel(level int) Option {
	return func(cfg *config) {
		cfg.gzipLevel = max(gzip.HuffmanOnly, min(level, gzip.BestCompression))
	}
}

// WithBrotliLevel sets the level used to re-encode br bodies.
// Valid values: 0 to 11.
// Default: 4
func WithBrotliLevel(level int) Option {
	return func(cfg *config) {
		cfg.brotliLevel = max(0, min(level, 11))
	}
}

// WithEventHandler sets a custom handler for operational events.
//
// Example:
//
//	minifyhtml.WithEventHandler(func(e minifyhtml.Event) {
//	    if e.Type == minifyhtml.EventError {
//	        alerting.Notify(e.Message)
//	    }
//	})
func WithEventHandler(handler EventHandler) Option {
	return func(cfg *config) {
		if handler == nil {
			handler = func(Event) {}
		}
		cfg.eventHandler = handler
	}
}

// WithLogger reports operational events to logger through
// DefaultEventHandler. If not provided, events are discarded.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	minifyhtml.New(minifyhtml.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.eventHandler = DefaultEventHandler(logger)
	}
}

// WithMeterProvider records minification metrics with the given provider.
// Without it no metrics are recorded.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(cfg *config) {
		cfg.meterProvider = provider
	}
}

// WithTracerProvider records a span per transformed response.
// Without it no spans are created.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.tracerProvider = provider
	}
}
