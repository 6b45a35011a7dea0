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
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrBodyRead is reported when the inner response body fails mid-read.
var ErrBodyRead = errors.New("minifyhtml: failed to read response body")

// internalErrorBody is the body of responses synthesized after a buffering
// or transform failure.
const internalErrorBody = "Internal Server Error"

// Readier is implemented by inner handlers that can report whether they are
// able to serve requests.
type Readier interface {
	Ready(ctx context.Context) error
}

// Middleware minifies the HTML responses of the handler it wraps.
// It implements http.RoundTripper and is safe for concurrent use.
type Middleware struct {
	layer *Layer
	next  http.RoundTripper
}

// RoundTrip calls the inner handler and minifies its response when it is
// HTML. Errors from the inner handler are returned unchanged; buffering and
// transform failures never surface as errors, they turn into a 500 response.
func (m *Middleware) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := m.next.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	return m.layer.process(req, resp), nil
}

// Ready forwards to the inner handler's readiness when it implements
// Readier. The middleware has no admission control of its own.
func (m *Middleware) Ready(ctx context.Context) error {
	if r, ok := m.next.(Readier); ok {
		return r.Ready(ctx)
	}
	return nil
}

// process runs the post-processing of one response: it inspects the
// response once and either passes it through or transforms it.
func (l *Layer) process(req *http.Request, resp *http.Response) *http.Response {
	ctx := requestContext(req)

	encoding, ok := l.eligible(req, resp.StatusCode, resp.Header)
	if !ok {
		resp.Body = newStreamBody(resp.Body)
		l.tel.record(ctx, l.backend, OutcomePassThrough, 0, 0, 0)
		return resp
	}

	return l.transform(ctx, req, resp, encoding)
}

// eligible decides whether a response gets minified and returns its
// normalized content coding.
func (l *Layer) eligible(req *http.Request, status int, header http.Header) (string, bool) {
	if req != nil && req.Method == http.MethodHead {
		return "", false
	}
	if shouldSkipStatus(status) {
		return "", false
	}
	if !isHTML(header) {
		return "", false
	}

	codings := header.Values("Content-Encoding")
	switch len(codings) {
	case 0:
		return encodingIdentity, true
	case 1:
		return contentEncoding(codings[0])
	default:
		return "", false
	}
}

// transform buffers, minifies and rebuilds an eligible response.
func (l *Layer) transform(ctx context.Context, req *http.Request, resp *http.Response, encoding string) *http.Response {
	start := time.Now()
	ctx, span := l.tel.tracer.Start(ctx, "minifyhtml.transform",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("minifyhtml.backend", l.backend.String()),
			attribute.String("http.response.content_encoding", encoding),
		),
	)
	defer span.End()

	out, outcome, in, n := l.rewrite(span, req, resp, encoding)

	span.SetAttributes(attribute.String("minifyhtml.outcome", string(outcome)))
	if outcome == OutcomeMinified {
		span.SetAttributes(
			attribute.Int("minifyhtml.input_size", in),
			attribute.Int("minifyhtml.output_size", n),
		)
	}
	l.tel.record(ctx, l.backend, outcome, in, n, time.Since(start))

	return out
}

// rewrite is the buffering and reconstruction path. It returns the response
// to hand back, its outcome, and the decoded sizes before and after
// minification.
func (l *Layer) rewrite(span trace.Span, req *http.Request, resp *http.Response, encoding string) (*http.Response, Outcome, int, int) {
	path := requestPath(req)

	// The original length is invalid once the body is rewritten.
	originalLength := resp.Header.Values("Content-Length")
	originalLength = append([]string(nil), originalLength...)
	resp.Header.Del("Content-Length")

	restoreLength := func() {
		if len(originalLength) > 0 {
			resp.Header["Content-Length"] = originalLength
		}
	}

	raw, tooLarge, err := l.drain(resp.Body)
	if err != nil {
		l.fail(span, "failed to collect response body for minification", err, path)
		return internalErrorResponse(req, resp), OutcomeBufferError, 0, 0
	}
	if tooLarge {
		restoreLength()
		resp.Body = newPrefixBody(raw, resp.Body)
		l.cfg.eventHandler(Event{
			Type:    EventWarning,
			Message: "response body exceeds limit, passing through unminified",
			Args:    []any{"path", path, "limit", l.cfg.maxBodySize},
		})
		return resp, OutcomeTooLarge, 0, 0
	}

	decoded, tooLarge, err := decodeBody(raw, encoding, l.cfg.maxBodySize)
	if err != nil {
		l.fail(span, "failed to decode response body for minification", err, path)
		return internalErrorResponse(req, resp), OutcomeBufferError, 0, 0
	}
	if tooLarge {
		restoreLength()
		resp.Body = newBufferBody(raw)
		l.cfg.eventHandler(Event{
			Type:    EventWarning,
			Message: "decoded response body exceeds limit, passing through unminified",
			Args:    []any{"path", path, "limit", l.cfg.maxBodySize, "content_encoding", encoding},
		})
		return resp, OutcomeTooLarge, 0, 0
	}

	in := len(decoded)
	minified, err := l.minifier.Minify(decoded)
	if err != nil {
		terr := &TransformError{Backend: l.backend, Err: err}
		l.fail(span, "failed to minify response body", terr, path)
		return internalErrorResponse(req, resp), OutcomeTransformError, 0, 0
	}

	encoded, err := encodeBody(minified, encoding, l.cfg)
	if err != nil {
		l.fail(span, "failed to re-encode minified body", err, path)
		return internalErrorResponse(req, resp), OutcomeTransformError, 0, 0
	}

	l.cfg.eventHandler(Event{
		Type:    EventDebug,
		Message: "html minified",
		Args:    []any{"path", path, "original_size", in, "minified_size", len(minified)},
	})

	resp.Body = newBufferBody(encoded)
	resp.ContentLength = -1
	resp.TransferEncoding = nil
	resp.Uncompressed = false

	return resp, OutcomeMinified, in, len(minified)
}

// drain reads body to the end. When the size limit is exceeded it returns
// the bytes read so far with tooLarge set and leaves body open so the caller
// can replay it.
func (l *Layer) drain(body io.ReadCloser) (data []byte, tooLarge bool, err error) {
	if body == nil || body == http.NoBody {
		return nil, false, nil
	}

	limit := l.cfg.maxBodySize
	var r io.Reader = body
	if limit > 0 {
		r = io.LimitReader(body, limit+1)
	}

	data, err = io.ReadAll(r)
	if err != nil {
		_ = body.Close()
		return nil, false, fmt.Errorf("%w: %w", ErrBodyRead, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return data, true, nil
	}
	_ = body.Close()

	return data, false, nil
}

func (l *Layer) fail(span trace.Span, msg string, err error, path string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	l.cfg.eventHandler(Event{
		Type:    EventError,
		Message: msg,
		Args:    []any{"path", path, "error", err},
	})
}

// internalErrorResponse replaces a response whose body could not be
// minified. Only a minimal set of headers survives.
func internalErrorResponse(req *http.Request, orig *http.Response) *http.Response {
	header := make(http.Header, 2)
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("X-Content-Type-Options", "nosniff")

	resp := &http.Response{
		Status:        "500 " + http.StatusText(http.StatusInternalServerError),
		StatusCode:    http.StatusInternalServerError,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          newBufferBody([]byte(internalErrorBody)),
		ContentLength: int64(len(internalErrorBody)),
		Request:       req,
	}
	if orig != nil && orig.ProtoMajor > 0 {
		resp.Proto, resp.ProtoMajor, resp.ProtoMinor = orig.Proto, orig.ProtoMajor, orig.ProtoMinor
	}

	return resp
}

// shouldSkipStatus returns true for responses whose body must not be rewritten.
func shouldSkipStatus(code int) bool {
	return code == http.StatusNoContent ||
		code == http.StatusNotModified ||
		code == http.StatusPartialContent
}

// isHTML reports whether the Content-Type header marks the response as HTML.
// A value that is not plain visible ASCII is treated as absent.
func isHTML(header http.Header) bool {
	values := header.Values("Content-Type")
	if len(values) == 0 {
		return false
	}

	ct := values[0]
	for i := 0; i < len(ct); i++ {
		if c := ct[i]; c != '\t' && (c < 0x20 || c > 0x7e) {
			return false
		}
	}

	return strings.Contains(ct, "text/html")
}

func requestContext(req *http.Request) context.Context {
	if req == nil {
		return context.Background()
	}
	return req.Context()
}

func requestPath(req *http.Request) string {
	if req == nil || req.URL == nil {
		return ""
	}
	return req.URL.Path
}
