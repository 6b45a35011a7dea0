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
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// ErrWriterClosed is returned by Write after Close.
var ErrWriterClosed = errors.New("minifyhtml: write after close")

// Handler returns an http.Handler that minifies the HTML responses written
// by next. It fits any func(http.Handler) http.Handler middleware chain:
//
//	r := chi.NewRouter()
//	r.Use(layer.Handler)
//
// Responses that are not HTML stream straight through. HTML responses are
// buffered until next returns.
func (l *Layer) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := l.ResponseWriter(w, r)
		next.ServeHTTP(rw, r)
		_ = rw.Close()
	})
}

// ResponseWriter wraps w for one request. The caller must call Close once
// the handler has returned; until then eligible responses are held back.
// Framework adapters use it directly, most applications use Handler.
func (l *Layer) ResponseWriter(w http.ResponseWriter, r *http.Request) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		layer:          l,
		req:            r,
		statusCode:     http.StatusOK,
	}
}

// ResponseWriter is an http.ResponseWriter that minifies the HTML written
// through it. The decision is taken once, when the header is committed by
// the first Write, Flush or Close. WriteHeader only records the status so
// handlers that set Content-Type after it, as gin's renderers do, are seen
// correctly.
type ResponseWriter struct {
	http.ResponseWriter
	layer *Layer
	req   *http.Request

	buffer      bytes.Buffer
	encoding    string
	statusCode  int
	size        int
	wroteHeader bool
	committed   bool
	buffering   bool
	closed      bool
}

// WriteHeader captures the status code.
func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}

	// Informational responses are not the final header
	if code >= 100 && code < 200 && code != http.StatusSwitchingProtocols {
		rw.ResponseWriter.WriteHeader(code)
		return
	}

	rw.statusCode = code
	rw.wroteHeader = true
}

// commit decides whether the response is buffered for minification.
func (rw *ResponseWriter) commit() {
	if rw.committed {
		return
	}
	rw.committed = true
	rw.wroteHeader = true

	encoding, ok := rw.layer.eligible(rw.req, rw.statusCode, rw.Header())
	if !ok {
		rw.ResponseWriter.WriteHeader(rw.statusCode)
		rw.layer.tel.record(requestContext(rw.req), rw.layer.backend, OutcomePassThrough, 0, 0, 0)
		return
	}

	// Don't call underlying WriteHeader yet, Close sends the rebuilt header
	rw.buffering = true
	rw.encoding = encoding
}

// Write buffers data of eligible responses and forwards everything else.
func (rw *ResponseWriter) Write(data []byte) (int, error) {
	if rw.closed {
		return 0, ErrWriterClosed
	}
	rw.commit()
	rw.size += len(data)

	if !rw.buffering {
		return rw.ResponseWriter.Write(data)
	}

	limit := rw.layer.cfg.maxBodySize
	if limit > 0 && int64(rw.buffer.Len()+len(data)) > limit {
		return rw.spill(data)
	}

	return rw.buffer.Write(data)
}

// WriteString implements io.StringWriter.
func (rw *ResponseWriter) WriteString(s string) (int, error) {
	return rw.Write([]byte(s))
}

// spill gives up on an over-limit body: the original header is sent and
// the buffered prefix is written ahead of data.
func (rw *ResponseWriter) spill(data []byte) (int, error) {
	rw.buffering = false
	rw.ResponseWriter.WriteHeader(rw.statusCode)

	rw.layer.cfg.eventHandler(Event{
		Type:    EventWarning,
		Message: "response body exceeds limit, passing through unminified",
		Args:    []any{"path", requestPath(rw.req), "limit", rw.layer.cfg.maxBodySize},
	})
	rw.layer.tel.record(requestContext(rw.req), rw.layer.backend, OutcomeTooLarge, 0, 0, 0)

	if rw.buffer.Len() > 0 {
		if _, err := rw.ResponseWriter.Write(rw.buffer.Bytes()); err != nil {
			return 0, err
		}
		rw.buffer.Reset()
	}

	return rw.ResponseWriter.Write(data)
}

// Flush forwards to the underlying writer. While a response is buffered it
// is a no-op: nothing can be sent before the body is complete.
func (rw *ResponseWriter) Flush() {
	rw.commit()
	if rw.buffering {
		return
	}
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker. A hijacked connection is never minified.
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("minifyhtml: %T does not implement http.Hijacker", rw.ResponseWriter)
	}
	rw.buffering = false
	rw.closed = true

	return h.Hijack()
}

// Unwrap returns the underlying writer for http.ResponseController.
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Status returns the status code written by the handler.
func (rw *ResponseWriter) Status() int {
	return rw.statusCode
}

// Size returns the number of body bytes written by the handler.
func (rw *ResponseWriter) Size() int {
	return rw.size
}

// Written reports whether the handler wrote a header or body.
func (rw *ResponseWriter) Written() bool {
	return rw.wroteHeader
}

// Close minifies a buffered response and writes it to the underlying
// writer. It is a no-op for streamed responses and after the first call.
func (rw *ResponseWriter) Close() error {
	if rw.closed {
		return nil
	}
	rw.closed = true

	// Nothing written: leave the default response to the server
	if !rw.wroteHeader {
		return nil
	}
	rw.commit()

	if !rw.buffering {
		return nil
	}
	rw.buffering = false

	header := rw.Header()
	resp := &http.Response{
		StatusCode:    rw.statusCode,
		Header:        header,
		Body:          newBufferBody(rw.buffer.Bytes()),
		ContentLength: int64(rw.buffer.Len()),
		Request:       rw.req,
	}

	out := rw.layer.transform(requestContext(rw.req), rw.req, resp, rw.encoding)
	if out != resp {
		clear(header)
		for k, v := range out.Header {
			header[k] = v
		}
	}

	rw.ResponseWriter.WriteHeader(out.StatusCode)
	_, err := io.Copy(rw.ResponseWriter, out.Body)
	_ = out.Body.Close()
	if err != nil {
		rw.layer.cfg.eventHandler(Event{
			Type:    EventDebug,
			Message: "failed to write minified response",
			Args:    []any{"path", requestPath(rw.req), "error", err},
		})
	}

	return err
}
