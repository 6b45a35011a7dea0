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

// Package main serves a page through the minification layer.
//
// Run:
//
//	go run ./example
//	curl -i http://localhost:3000/
package main

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"rivaas.dev/minifyhtml"
)

const page = `
        <!DOCTYPE html>
        <html lang="en">
            <head>
                <meta charset="utf-8" 
                >
                <title>    Hello    World    </title>


            </head>
            <body>
                <h1>    Hello    World    </h1>
                
            </body>
        </html>
        `

func newRouter(layer *minifyhtml.Layer) http.Handler {
	r := chi.NewRouter()
	r.Use(layer.Handler)
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, page)
	})
	return r
}

func main() {
	// Colorful output for the terminal; the layer logs through slog
	logger := slog.New(log.NewWithOptions(os.Stderr, log.Options{
		Level:           log.DebugLevel,
		ReportTimestamp: true,
	}))

	layer := minifyhtml.MustNew(
		minifyhtml.WithStandardOptions(minifyhtml.StandardOptions{
			KeepClosingTags:            true,
			KeepHTMLAndHeadOpeningTags: true,
			KeepComments:               false,
		}),
		minifyhtml.WithLogger(logger),
	)

	server := &http.Server{
		Addr:              "0.0.0.0:3000",
		Handler:           newRouter(layer),
		ReadHeaderTimeout: 2 * time.Second,
	}

	logger.Info("listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
