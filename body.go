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
	"bytes"
	"io"
	"net/http"
)

// Body is the body of every response returned by a Middleware. It is either
// the inner handler's stream, untouched, or a buffer materialized by the
// middleware.
type Body interface {
	io.ReadCloser

	// Buffered reports whether the middleware materialized the body.
	Buffered() bool
}

// streamBody passes the inner body through. Reads and errors are the inner
// body's own.
type streamBody struct {
	io.ReadCloser
}

func newStreamBody(rc io.ReadCloser) *streamBody {
	if rc == nil {
		rc = http.NoBody
	}
	return &streamBody{ReadCloser: rc}
}

// Buffered implements Body.
func (*streamBody) Buffered() bool { return false }

// WriteTo lets io.Copy use the inner body's fast path when it has one.
func (s *streamBody) WriteTo(w io.Writer) (int64, error) {
	return io.Copy(w, s.ReadCloser)
}

// bufferBody is a complete in-memory body. It never fails.
type bufferBody struct {
	*bytes.Reader
}

func newBufferBody(b []byte) *bufferBody {
	return &bufferBody{Reader: bytes.NewReader(b)}
}

// Buffered implements Body.
func (*bufferBody) Buffered() bool { return true }

// Close implements io.Closer.
func (*bufferBody) Close() error { return nil }

// prefixBody replays an already buffered prefix before the rest of the
// inner stream. Used when a body turns out to exceed the size limit.
type prefixBody struct {
	io.Reader
	closer io.Closer
}

func newPrefixBody(prefix []byte, rest io.ReadCloser) *streamBody {
	return newStreamBody(&prefixBody{
		Reader: io.MultiReader(bytes.NewReader(prefix), rest),
		closer: rest,
	})
}

// Close closes the inner stream.
func (p *prefixBody) Close() error {
	return p.closer.Close()
}
