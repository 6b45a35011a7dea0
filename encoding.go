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
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// ErrDecode is returned when an encoded body cannot be decoded.
var ErrDecode = errors.New("minifyhtml: cannot decode response body")

// Content codings the middleware can see through. Anything else is passed
// through untouched.
const (
	encodingIdentity = ""
	encodingGzip     = "gzip"
	encodingDeflate  = "deflate"
	encodingBrotli   = "br"
)

// contentEncoding normalizes the Content-Encoding header. ok is false for
// codings the middleware cannot decode, including stacked codings.
func contentEncoding(value string) (string, bool) {
	enc := strings.ToLower(strings.TrimSpace(value))
	switch enc {
	case encodingIdentity, "identity":
		return encodingIdentity, true
	case encodingGzip, "x-gzip":
		return encodingGzip, true
	case encodingDeflate, encodingBrotli:
		return enc, true
	default:
		return "", false
	}
}

// decodeBody decodes data according to encoding. The decoded size is
// bounded by limit when limit > 0; tooLarge reports that it was exceeded.
func decodeBody(data []byte, encoding string, limit int64) (decoded []byte, tooLarge bool, err error) {
	var r io.Reader
	switch encoding {
	case encodingIdentity:
		return data, false, nil
	case encodingGzip:
		gr, gerr := gzip.NewReader(bytes.NewReader(data))
		if gerr != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrDecode, gerr)
		}
		defer gr.Close()
		r = gr
	case encodingDeflate:
		zr, zerr := zlib.NewReader(bytes.NewReader(data))
		if zerr != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrDecode, zerr)
		}
		defer zr.Close()
		r = zr
	case encodingBrotli:
		r = brotli.NewReader(bytes.NewReader(data))
	default:
		return nil, false, fmt.Errorf("%w: unsupported coding %q", ErrDecode, encoding)
	}

	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	decoded, err = io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if limit > 0 && int64(len(decoded)) > limit {
		return nil, true, nil
	}

	return decoded, false, nil
}

// encodeBody re-encodes data with the coding it arrived in.
func encodeBody(data []byte, encoding string, cfg *config) ([]byte, error) {
	if encoding == encodingIdentity {
		return data, nil
	}

	var buf bytes.Buffer
	buf.Grow(len(data) / 2)

	switch encoding {
	case encodingGzip:
		pool := getGzipWriterPool(cfg.gzipLevel)
		w := pool.Get().(*gzip.Writer)
		w.Reset(&buf)
		defer func() {
			w.Reset(io.Discard)
			pool.Put(w)
		}()
		if err := writeAndClose(w, data); err != nil {
			return nil, err
		}
	case encodingDeflate:
		pool := getZlibWriterPool(cfg.gzipLevel)
		w := pool.Get().(*zlib.Writer)
		w.Reset(&buf)
		defer func() {
			w.Reset(io.Discard)
			pool.Put(w)
		}()
		if err := writeAndClose(w, data); err != nil {
			return nil, err
		}
	case encodingBrotli:
		pool := getBrotliWriterPool(cfg.brotliLevel)
		w := pool.Get().(*brotli.Writer)
		w.Reset(&buf)
		defer func() {
			w.Reset(io.Discard)
			pool.Put(w)
		}()
		if err := writeAndClose(w, data); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("minifyhtml: cannot encode with %q", encoding)
	}

	return buf.Bytes(), nil
}

func writeAndClose(w io.WriteCloser, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}

// Writer pools keyed by compression level.
var (
	gzipWriterPools   = make(map[int]*sync.Pool)
	zlibWriterPools   = make(map[int]*sync.Pool)
	brotliWriterPools = make(map[int]*sync.Pool)
	poolsMutex        sync.RWMutex
)

// writerPool returns the pool for level from pools, creating it on first use.
func writerPool(pools map[int]*sync.Pool, level int, newWriter func() any) *sync.Pool {
	poolsMutex.RLock()
	pool, exists := pools[level]
	poolsMutex.RUnlock()

	if exists {
		return pool
	}

	poolsMutex.Lock()
	defer poolsMutex.Unlock()

	// Double-check after acquiring write lock
	if pool, exists := pools[level]; exists {
		return pool
	}

	pool = &sync.Pool{New: newWriter}
	pools[level] = pool

	return pool
}

func getGzipWriterPool(level int) *sync.Pool {
	return writerPool(gzipWriterPools, level, func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, level)
		return w
	})
}

func getZlibWriterPool(level int) *sync.Pool {
	return writerPool(zlibWriterPools, level, func() any {
		w, _ := zlib.NewWriterLevel(io.Discard, level)
		return w
	})
}

func getBrotliWriterPool(level int) *sync.Pool {
	return writerPool(brotliWriterPools, level, func() any {
		return brotli.NewWriterLevel(io.Discard, level)
	})
}
