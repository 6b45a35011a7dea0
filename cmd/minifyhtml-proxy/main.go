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

// Command minifyhtml-proxy is a reverse proxy that minifies the HTML
// responses of an upstream server.
//
// Configuration is read from an optional file (-config, YAML, TOML or
// JSON), a Consul key named by MINIFYHTML_CONSUL_KEY when CONSUL_HTTP_ADDR
// is set, and MINIFYHTML_* environment variables, later sources winning:
//
//	MINIFYHTML_UPSTREAM=http://localhost:3000 minifyhtml-proxy
//	minifyhtml-proxy -config /etc/minifyhtml/proxy.yaml
//
// Endpoints: /healthz reports upstream readiness, /metrics exposes
// Prometheus metrics unless metrics.exporter selects stdout or otlp,
// everything else is proxied. Each request carries an X-Request-ID.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr, os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, "minifyhtml-proxy:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer, getenv func(string) string) error {
	flags := flag.NewFlagSet("minifyhtml-proxy", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", getenv("MINIFYHTML_CONFIG"), "path to a YAML, TOML or JSON configuration file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(ctx, *configPath, getenv)
	if err != nil {
		return err
	}

	logger := newLogger(cfg, stderr)
	server, err := newProxyServer(ctx, cfg, logger, stderr)
	if err != nil {
		return err
	}

	if isTerminal(stderr) {
		printBanner(stderr, os.Environ(), cfg, server.layer.Backend())
	}

	return server.run(ctx)
}
