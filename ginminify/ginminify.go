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

// Package ginminify attaches a minifyhtml.Layer to a gin engine.
//
//	r := gin.New()
//	r.Use(ginminify.New(minifyhtml.MustNew()))
package ginminify

import (
	"bufio"
	"net"

	"github.com/gin-gonic/gin"

	"rivaas.dev/minifyhtml"
)

// New returns gin middleware that minifies the HTML responses of the
// handlers after it.
func New(layer *minifyhtml.Layer) gin.HandlerFunc {
	return func(c *gin.Context) {
		original := c.Writer
		w := &responseWriter{
			ResponseWriter: original,
			mw:             layer.ResponseWriter(original, c.Request),
		}
		c.Writer = w

		defer func() {
			c.Writer = original
		}()

		c.Next()

		if err := w.mw.Close(); err != nil {
			_ = c.Error(err)
		}
	}
}

// responseWriter routes gin's writes through the minifying writer and keeps
// the rest of gin.ResponseWriter.
type responseWriter struct {
	gin.ResponseWriter
	mw *minifyhtml.ResponseWriter
}

func (w *responseWriter) WriteHeader(code int) {
	w.mw.WriteHeader(code)
}

// WriteHeaderNow records the status only; the header is sent once the
// response is known not to be minified, or after minification.
func (w *responseWriter) WriteHeaderNow() {
	w.mw.WriteHeader(w.mw.Status())
}

func (w *responseWriter) Write(data []byte) (int, error) {
	return w.mw.Write(data)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	return w.mw.WriteString(s)
}

func (w *responseWriter) Status() int {
	return w.mw.Status()
}

func (w *responseWriter) Size() int {
	if !w.mw.Written() {
		return -1
	}
	return w.mw.Size()
}

func (w *responseWriter) Written() bool {
	return w.mw.Written()
}

func (w *responseWriter) Flush() {
	w.mw.Flush()
}

func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.mw.Hijack()
}
