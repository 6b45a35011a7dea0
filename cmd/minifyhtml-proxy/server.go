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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"rivaas.dev/minifyhtml"
)

const readHeaderTimeout = 2 * time.Second

// proxyServer is a reverse proxy that minifies upstream HTML.
type proxyServer struct {
	cfg    *proxyConfig
	logger *slog.Logger

	layer     *minifyhtml.Layer
	handler   http.Handler
	telemetry *telemetry
}

// newProxyServer wires telemetry, the minification layer and the router.
// Stdout exporters write to out.
func newProxyServer(ctx context.Context, cfg *proxyConfig, logger *slog.Logger, out io.Writer) (*proxyServer, error) {
	s := &proxyServer{cfg: cfg, logger: logger}

	tel, err := newTelemetry(ctx, cfg, out)
	if err != nil {
		return nil, err
	}
	s.telemetry = tel

	opts := append(cfg.layerOptions(),
		minifyhtml.WithLogger(logger),
		minifyhtml.WithMeterProvider(tel.meterProvider),
	)
	if tel.tracerProvider != nil {
		opts = append(opts, minifyhtml.WithTracerProvider(tel.tracerProvider))
	}

	if s.layer, err = minifyhtml.New(opts...); err != nil {
		_ = tel.shutdown(ctx)
		return nil, fmt.Errorf("failed to create minification layer: %w", err)
	}

	upstream := cfg.upstreamURL
	transport := s.layer.Wrap(newUpstreamTransport(upstream, cfg.HealthPath))
	proxy := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(upstream)
			r.SetXForwarded()
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.ErrorContext(r.Context(), "upstream request failed",
				"path", r.URL.Path,
				"request_id", getRequestID(r.Context()),
				"error", err,
			)
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	r := chi.NewRouter()
	r.Use(requestID(cfg.RequestID), middleware.RealIP, middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := transport.Ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	if tel.metricsHandler != nil {
		r.Handle("/metrics", tel.metricsHandler)
	}
	r.Handle("/*", proxy)

	s.handler = r
	logger.Info("minification layer ready",
		"backend", s.layer.Backend().String(),
		"upstream", upstream.String(),
		"metrics", cfg.Metrics.Exporter,
		"tracing", cfg.Tracing.Enabled,
	)

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *proxyServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// run serves until ctx is canceled, then shuts down gracefully.
func (s *proxyServer) run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		_ = s.telemetry.shutdown(context.Background())
		return err
	case <-ctx.Done():
		s.logger.Info("server shutting down", "reason", ctx.Err())
	}

	// The parent ctx is already canceled; the shutdown gets its own deadline
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := s.telemetry.shutdown(shutdownCtx); err != nil {
		s.logger.Warn("failed to shut down telemetry", "error", err)
	}
	s.logger.Info("server exited")

	return nil
}

func newLogger(cfg *proxyConfig, w io.Writer) *slog.Logger {
	level, _ := parseLevel(cfg.Log.Level)
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
