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

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rivaas.dev/minifyhtml"
)

const upstreamPage = "<html>\n  <body>\n    <p>Hello,    proxy!</p>\n  </body>\n</html>\n"

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, upstreamPage)
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{ "a" :  1 }`)
	})
	mux.HandleFunc("/up", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, upstream string) *proxyConfig {
	t.Helper()

	u, err := url.Parse(upstream)
	require.NoError(t, err)

	cfg := &proxyConfig{
		Listen:          "127.0.0.1:0",
		Upstream:        upstream,
		ShutdownTimeout: time.Second,
		RequestID:       "uuid",
		BrotliLevel:     4,
		upstreamURL:     u,
	}
	cfg.Log.Level = "debug"
	cfg.Log.Format = "text"
	cfg.Metrics.Exporter = "prometheus"
	cfg.Metrics.Interval = time.Minute
	cfg.Tracing.Exporter = "stdout"
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProxy_MinifiesHTML(t *testing.T) {
	t.Parallel()

	upstream := newUpstream(t)
	s, err := newProxyServer(context.Background(), testConfig(t, upstream.URL), discardLogger(), io.Discard)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Length"))
	assert.Less(t, rec.Body.Len(), len(upstreamPage))
	assert.Contains(t, rec.Body.String(), "Hello, proxy!")
}

func TestProxy_PassesThroughJSON(t *testing.T) {
	t.Parallel()

	upstream := newUpstream(t)
	s, err := newProxyServer(context.Background(), testConfig(t, upstream.URL), discardLogger(), io.Discard)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{ "a" :  1 }`, rec.Body.String())
}

func TestProxy_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	upstream := newUpstream(t)
	s, err := newProxyServer(context.Background(), testConfig(t, upstream.URL), discardLogger(), io.Discard)
	require.NoError(t, err)

	s.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/page", nil))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "minifyhtml_responses_total")
	assert.Contains(t, rec.Body.String(), `outcome="minified"`)
}

func TestProxy_Healthz(t *testing.T) {
	t.Parallel()

	upstream := newUpstream(t)

	cfg := testConfig(t, upstream.URL)
	cfg.HealthPath = "/up"
	s, err := newProxyServer(context.Background(), cfg, discardLogger(), io.Discard)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	cfg = testConfig(t, upstream.URL)
	cfg.HealthPath = "/missing"
	s, err = newProxyServer(context.Background(), cfg, discardLogger(), io.Discard)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProxy_UpstreamDown(t *testing.T) {
	t.Parallel()

	upstream := newUpstream(t)
	cfg := testConfig(t, upstream.URL)
	upstream.Close()

	s, err := newProxyServer(context.Background(), cfg, discardLogger(), io.Discard)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestProxy_Tracing(t *testing.T) {
	t.Parallel()

	upstream := newUpstream(t)
	cfg := testConfig(t, upstream.URL)
	cfg.Tracing.Enabled = true

	var spans bytes.Buffer
	s, err := newProxyServer(context.Background(), cfg, discardLogger(), &spans)
	require.NoError(t, err)

	s.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/page", nil))
	require.NoError(t, s.telemetry.tracerProvider.ForceFlush(context.Background()))

	assert.Contains(t, spans.String(), "minifyhtml.transform")
}

func TestProxy_RunShutsDown(t *testing.T) {
	t.Parallel()

	upstream := newUpstream(t)
	s, err := newProxyServer(context.Background(), testConfig(t, upstream.URL), discardLogger(), io.Discard)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"upstream: http://localhost:3000",
		"backend: onepass",
		"max_body_size: 65536",
		"standard:",
		"  keep_closing_tags: true",
		"log:",
		"  level: debug",
	}, "\n")), 0o600))

	t.Setenv("MINIFYHTML_LISTEN", ":9999")
	t.Setenv("MINIFYHTML_STANDARD__KEEP_COMMENTS", "true")

	cfg, err := loadConfig(context.Background(), path, func(string) string { return "" })
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Listen)
	assert.Equal(t, "http://localhost:3000", cfg.upstreamURL.String())
	assert.Equal(t, "onepass", cfg.Backend)
	assert.Equal(t, int64(65536), cfg.MaxBodySize)
	assert.True(t, cfg.Standard.KeepClosingTags)
	assert.True(t, cfg.Standard.KeepComments)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "uuid", cfg.RequestID)
	assert.Equal(t, "prometheus", cfg.Metrics.Exporter)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)

	layer, err := minifyhtml.New(cfg.layerOptions()...)
	require.NoError(t, err)
	assert.Equal(t, minifyhtml.BackendOnePass, layer.Backend())
}

func TestProxyConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := func() *proxyConfig {
		cfg := &proxyConfig{
			Listen:          ":8080",
			Upstream:        "http://app:3000",
			ShutdownTimeout: time.Second,
			RequestID:       "ulid",
			BrotliLevel:     4,
		}
		cfg.Log.Level = "info"
		cfg.Log.Format = "json"
		cfg.Metrics.Exporter = "stdout"
		cfg.Metrics.Interval = 10 * time.Second
		cfg.Tracing.Exporter = "otlp"
		return cfg
	}

	require.NoError(t, valid().Validate())

	err := (&proxyConfig{}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream is required")
	assert.Contains(t, err.Error(), "log.format must be one of [text json]")

	tests := []struct {
		name   string
		mutate func(*proxyConfig)
	}{
		{"missing upstream", func(c *proxyConfig) { c.Upstream = "" }},
		{"relative upstream", func(c *proxyConfig) { c.Upstream = "/app" }},
		{"unknown backend", func(c *proxyConfig) { c.Backend = "fast" }},
		{"negative body size", func(c *proxyConfig) { c.MaxBodySize = -1 }},
		{"brotli level", func(c *proxyConfig) { c.BrotliLevel = 12 }},
		{"short shutdown", func(c *proxyConfig) { c.ShutdownTimeout = time.Millisecond }},
		{"log level", func(c *proxyConfig) { c.Log.Level = "loud" }},
		{"log format", func(c *proxyConfig) { c.Log.Format = "xml" }},
		{"health path", func(c *proxyConfig) { c.HealthPath = "up" }},
		{"request id", func(c *proxyConfig) { c.RequestID = "serial" }},
		{"metrics exporter", func(c *proxyConfig) { c.Metrics.Exporter = "statsd" }},
		{"metrics interval", func(c *proxyConfig) { c.Metrics.Interval = 0 }},
		{"tracing exporter", func(c *proxyConfig) { c.Tracing.Exporter = "jaeger" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("MINIFYHTML_UPSTREAM", "")

	var stderr bytes.Buffer
	err := run(context.Background(), nil, &stderr, func(string) string { return "" })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream is required")
}

func TestLoadConfig_SchemaRejectsUnknownValues(t *testing.T) {
	t.Setenv("MINIFYHTML_UPSTREAM", "http://localhost:3000")
	t.Setenv("MINIFYHTML_TRACING__EXPORTER", "jaeger")

	_, err := loadConfig(context.Background(), "", func(string) string { return "" })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json-schema")
}

func TestProxy_RequestID(t *testing.T) {
	t.Parallel()

	seen := make(chan string, 1)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get(requestIDHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(upstream.Close)

	for _, format := range []string{"uuid", "ulid"} {
		cfg := testConfig(t, upstream.URL)
		cfg.RequestID = format
		s, err := newProxyServer(context.Background(), cfg, discardLogger(), io.Discard)
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		id := rec.Header().Get(requestIDHeader)
		require.NotEmpty(t, id, format)
		assert.Equal(t, id, <-seen, format)
		if format == "uuid" {
			assert.Len(t, id, 36)
		} else {
			assert.Len(t, id, 26)
		}
	}

	cfg := testConfig(t, upstream.URL)
	s, err := newProxyServer(context.Background(), cfg, discardLogger(), io.Discard)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "client-id")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, "client-id", rec.Header().Get(requestIDHeader))
	assert.Equal(t, "client-id", <-seen)
}

func TestProxy_StdoutMetricsHasNoEndpoint(t *testing.T) {
	t.Parallel()

	upstream := newUpstream(t)
	cfg := testConfig(t, upstream.URL)
	cfg.Metrics.Exporter = "stdout"

	var out bytes.Buffer
	s, err := newProxyServer(context.Background(), cfg, discardLogger(), &out)
	require.NoError(t, err)
	assert.Nil(t, s.telemetry.metricsHandler)

	s.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/page", nil))

	require.NoError(t, s.telemetry.shutdown(context.Background()))
	assert.Contains(t, out.String(), "minifyhtml.responses")
}

func TestProxy_OTLPTraceExporter(t *testing.T) {
	t.Parallel()

	upstream := newUpstream(t)
	cfg := testConfig(t, upstream.URL)
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp-http"
	cfg.Tracing.Endpoint = "http://127.0.0.1:4318/v1/traces"

	s, err := newProxyServer(context.Background(), cfg, discardLogger(), io.Discard)
	require.NoError(t, err)
	require.NotNil(t, s.telemetry.tracerProvider)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.telemetry.shutdown(ctx))
}

func TestSplitEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw      string
		endpoint string
		insecure bool
	}{
		{"", "", false},
		{"collector:4317", "collector:4317", false},
		{"http://collector:4318", "collector:4318", true},
		{"https://collector:4318/v1/traces", "collector:4318", false},
	}

	for _, tt := range tests {
		endpoint, insecure := splitEndpoint(tt.raw)
		assert.Equal(t, tt.endpoint, endpoint, tt.raw)
		assert.Equal(t, tt.insecure, insecure, tt.raw)
	}
}

func TestPrintBanner(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://app:3000")
	cfg.Listen = ":8080"
	cfg.MaxBodySize = 1024
	cfg.Tracing.Enabled = true

	var out bytes.Buffer
	printBanner(&out, nil, cfg, minifyhtml.BackendOnePass)

	text := out.String()
	assert.NotContains(t, text, "\x1b[")
	assert.Contains(t, text, "http://0.0.0.0:8080")
	assert.Contains(t, text, "http://app:3000")
	assert.Contains(t, text, "onepass")
	assert.Contains(t, text, "1024 bytes")
	assert.Contains(t, text, "http://0.0.0.0:8080/metrics")
	assert.Contains(t, text, "[stdout]")
	assert.False(t, isTerminal(&out))
}
