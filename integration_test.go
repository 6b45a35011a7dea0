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

// This file contains integration tests for the middleware mounted on chi, gin
// and echo servers and in front of a gzip-compressing upstream.

//go:build integration

package minifyhtml_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"net/url"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/labstack/echo/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"rivaas.dev/minifyhtml"
	"rivaas.dev/minifyhtml/echominify"
	"rivaas.dev/minifyhtml/ginminify"
)

const integrationPage = `<!DOCTYPE html>
<html>
  <head>
    <title>   Integration   </title>
  </head>
  <body>
    <!-- dropped -->
    <p>   Hello   world   </p>
  </body>
</html>
`

// testLogHandler captures log records for assertions.
type testLogHandler struct {
	mu       sync.Mutex
	messages []string
}

func (h *testLogHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *testLogHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, r.Message)
	return nil
}

func (h *testLogHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *testLogHandler) WithGroup(string) slog.Handler      { return h }

func (h *testLogHandler) Messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.messages...)
}

func fetch(client *http.Client, target string) (*http.Response, string) {
	resp, err := client.Get(target)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, string(body)
}

func expectMinified(body string) {
	Expect(body).NotTo(ContainSubstring("dropped"))
	Expect(body).NotTo(ContainSubstring("   "))
	Expect(body).To(ContainSubstring("Hello world"))
}

var _ = Describe("Router integration", func() {
	var (
		layer  *minifyhtml.Layer
		logs   *testLogHandler
		server *httptest.Server
	)

	BeforeEach(func() {
		logs = &testLogHandler{}
		layer = minifyhtml.MustNew(minifyhtml.WithLogger(slog.New(logs)))
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
			server = nil
		}
	})

	Context("with chi", func() {
		BeforeEach(func() {
			r := chi.NewRouter()
			r.Use(layer.Handler)
			r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				_, _ = io.WriteString(w, integrationPage)
			})
			r.Get("/data", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{ "spaced" : true }`)
			})
			server = httptest.NewServer(r)
		})

		It("should minify HTML pages", func() {
			resp, body := fetch(server.Client(), server.URL+"/")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			expectMinified(body)
			Expect(logs.Messages()).To(ContainElement("html minified"))
		})

		It("should leave other content alone", func() {
			resp, body := fetch(server.Client(), server.URL+"/data")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(Equal(`{ "spaced" : true }`))
			Expect(resp.Header.Get("Content-Length")).To(Equal("19"))
		})

		It("should serve concurrent requests", func() {
			var wg sync.WaitGroup
			for range 20 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, body := fetch(server.Client(), server.URL+"/")
					expectMinified(body)
				}()
			}
			wg.Wait()
		})
	})

	Context("with gin", func() {
		BeforeEach(func() {
			gin.SetMode(gin.TestMode)
			r := gin.New()
			r.Use(ginminify.New(layer))
			r.GET("/", func(c *gin.Context) {
				c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(integrationPage))
			})
			server = httptest.NewServer(r)
		})

		It("should minify HTML pages", func() {
			resp, body := fetch(server.Client(), server.URL+"/")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			expectMinified(body)
		})
	})

	Context("with echo", func() {
		BeforeEach(func() {
			e := echo.New()
			e.HideBanner = true
			e.Use(echominify.New(layer))
			e.GET("/", func(c echo.Context) error {
				return c.HTML(http.StatusOK, integrationPage)
			})
			server = httptest.NewServer(e)
		})

		It("should minify HTML pages", func() {
			resp, body := fetch(server.Client(), server.URL+"/")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			expectMinified(body)
		})
	})
})

var _ = Describe("Reverse proxy integration", func() {
	var (
		upstream *httptest.Server
		proxy    *httptest.Server
	)

	BeforeEach(func() {
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			var buf bytes.Buffer
			gz := gzip.NewWriter(&buf)
			_, _ = io.WriteString(gz, integrationPage)
			_ = gz.Close()

			w.Header().Set("Content-Type", "text/html")
			w.Header().Set("Content-Encoding", "gzip")
			_, _ = w.Write(buf.Bytes())
		}))

		target, err := url.Parse(upstream.URL)
		Expect(err).NotTo(HaveOccurred())

		layer := minifyhtml.MustNew(minifyhtml.WithBackend(minifyhtml.BackendOnePass))
		rp := &httputil.ReverseProxy{
			Rewrite:   func(r *httputil.ProxyRequest) { r.SetURL(target) },
			Transport: layer.Wrap(nil),
		}
		proxy = httptest.NewServer(rp)
	})

	AfterEach(func() {
		proxy.Close()
		upstream.Close()
	})

	It("should minify gzip bodies and keep the coding", func() {
		req, err := http.NewRequest(http.MethodGet, proxy.URL+"/", nil)
		Expect(err).NotTo(HaveOccurred())
		// An explicit Accept-Encoding disables transparent decompression
		req.Header.Set("Accept-Encoding", "gzip")

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Encoding")).To(Equal("gzip"))

		gr, err := gzip.NewReader(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		decoded, err := io.ReadAll(gr)
		Expect(err).NotTo(HaveOccurred())
		expectMinified(string(decoded))
	})

	It("should be transparent to a decompressing client", func() {
		_, body := fetch(http.DefaultClient, proxy.URL+"/")
		expectMinified(body)
	})
})
