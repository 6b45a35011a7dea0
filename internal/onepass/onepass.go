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

// Package onepass implements a single-pass HTML minifier that rewrites its
// input buffer in place.
//
// The minifier never looks back and never allocates: output bytes are written
// behind the read position, so the result always fits in the input buffer.
// It is deliberately strict. Input it cannot tokenize (an unterminated tag,
// attribute value, comment or raw-text element) is rejected with an *Error
// instead of being guessed at.
//
// Rules applied:
//   - runs of whitespace in text collapse to a single space, leading and
//     trailing document whitespace is dropped
//   - whitespace between attributes collapses to a single space, whitespace
//     before '>' and around '=' is dropped
//   - comments are removed unless Options.KeepComments is set; conditional
//     comments (<!--[if ...]>) are always kept
//   - the content of script, style, pre and textarea is copied verbatim
package onepass

import (
	"bytes"
	"errors"
	"fmt"
)

// Sentinel errors describing why the input was rejected.
// Match them with errors.Is on the returned *Error.
var (
	ErrUnterminatedTag       = errors.New("unterminated tag")
	ErrUnterminatedAttribute = errors.New("unterminated attribute value")
	ErrUnterminatedComment   = errors.New("unterminated comment")
	ErrUnclosedElement       = errors.New("unclosed raw text element")
)

// Options controls the minifier.
type Options struct {
	// KeepComments keeps HTML comments in the output.
	KeepComments bool
}

// Error reports malformed input and the byte offset where the offending
// construct starts.
type Error struct {
	Err    error
	Offset int
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("onepass: %v at offset %d", e.Err, e.Offset)
}

// Unwrap returns the sentinel error.
func (e *Error) Unwrap() error {
	return e.Err
}

// rawTextElements hold content that must not be touched.
var rawTextElements = map[string]bool{
	"script":   true,
	"style":    true,
	"pre":      true,
	"textarea": true,
}

// InPlace minifies buf in place and returns the length of the minified
// document, which is always <= len(buf). On error the content of buf is
// unspecified and must be discarded.
func InPlace(buf []byte, opts Options) (int, error) {
	m := &minifier{buf: buf, opts: opts, space: true}
	if err := m.run(); err != nil {
		return 0, err
	}

	// Trailing collapsed whitespace.
	if m.w > 0 && m.space && m.buf[m.w-1] == ' ' {
		m.w--
	}

	return m.w, nil
}

// minifier carries the read (r) and write (w) cursors. w <= r holds at all
// times, which is what makes writing into buf safe.
type minifier struct {
	buf  []byte
	opts Options
	r, w int

	// space is true when the last emitted text byte was collapsed whitespace
	// (or nothing has been emitted yet).
	space bool
}

func (m *minifier) run() error {
	for m.r < len(m.buf) {
		c := m.buf[m.r]
		if c == '<' && m.r+1 < len(m.buf) {
			next := m.buf[m.r+1]

			var (
				handled bool
				err     error
			)

			switch {
			case bytes.HasPrefix(m.buf[m.r:], []byte("<!--")):
				handled, err = true, m.comment()
			case next == '!' || next == '?':
				handled, err = true, m.declaration()
			case next == '/' && m.r+2 < len(m.buf) && isLetter(m.buf[m.r+2]):
				handled, err = true, m.closingTag()
			case isLetter(next):
				handled, err = true, m.openingTag()
			}

			if err != nil {
				return err
			}
			if handled {
				continue
			}
		}

		m.text(c)
	}

	return nil
}

func (m *minifier) text(c byte) {
	m.r++
	if isSpace(c) {
		if !m.space {
			m.emit(' ')
			m.space = true
		}
		return
	}
	m.emit(c)
	m.space = false
}

func (m *minifier) comment() error {
	start := m.r
	end := bytes.Index(m.buf[m.r+4:], []byte("-->"))
	if end < 0 {
		return &Error{Err: ErrUnterminatedComment, Offset: start}
	}
	end += m.r + 4 + len("-->")

	if m.opts.KeepComments || bytes.HasPrefix(m.buf[start:], []byte("<!--[if")) {
		m.copyThrough(end)
		m.space = false
		return nil
	}

	m.r = end
	return nil
}

// declaration copies <!DOCTYPE ...>, <![CDATA[...]]> and <?...?> unchanged.
func (m *minifier) declaration() error {
	start := m.r
	terminator := []byte(">")
	if bytes.HasPrefix(m.buf[m.r:], []byte("<![CDATA[")) {
		terminator = []byte("]]>")
	}

	end := bytes.Index(m.buf[m.r+2:], terminator)
	if end < 0 {
		return &Error{Err: ErrUnterminatedTag, Offset: start}
	}
	m.copyThrough(m.r + 2 + end + len(terminator))
	m.space = false

	return nil
}

func (m *minifier) openingTag() error {
	start := m.r

	m.emit('<')
	m.r++
	nameStart := m.w
	for m.r < len(m.buf) && isNameByte(m.buf[m.r]) {
		m.emit(m.buf[m.r])
		m.r++
	}
	name := string(bytes.ToLower(m.buf[nameStart:m.w]))

	selfClosing := false
	for {
		pending := m.skipSpace()
		if m.r >= len(m.buf) {
			return &Error{Err: ErrUnterminatedTag, Offset: start}
		}

		c := m.buf[m.r]
		if c == '>' {
			m.emit('>')
			m.r++
			break
		}
		if c == '/' {
			if m.r+1 < len(m.buf) && m.buf[m.r+1] == '>' {
				m.emit('/')
				m.emit('>')
				m.r += 2
				selfClosing = true
				break
			}
			// A lone slash between attributes is ignored by browsers.
			m.r++
			continue
		}

		if pending {
			m.emit(' ')
		}
		if err := m.attribute(start); err != nil {
			return err
		}
	}
	m.space = false

	if rawTextElements[name] && !selfClosing {
		return m.rawText(name, start)
	}

	return nil
}

func (m *minifier) attribute(tagStart int) error {
	for m.r < len(m.buf) {
		c := m.buf[m.r]
		if isSpace(c) || c == '=' || c == '>' || c == '/' {
			break
		}
		m.emit(c)
		m.r++
	}

	// Whitespace around '=' is dropped. If no '=' follows, the whitespace
	// separates this attribute from the next one and the caller collapses it.
	save := m.r
	m.skipSpace()
	if m.r >= len(m.buf) {
		return &Error{Err: ErrUnterminatedTag, Offset: tagStart}
	}
	if m.buf[m.r] != '=' {
		m.r = save
		return nil
	}
	m.emit('=')
	m.r++
	m.skipSpace()
	if m.r >= len(m.buf) {
		return &Error{Err: ErrUnterminatedTag, Offset: tagStart}
	}

	if q := m.buf[m.r]; q == '"' || q == '\'' {
		valueStart := m.r
		end := bytes.IndexByte(m.buf[m.r+1:], q)
		if end < 0 {
			return &Error{Err: ErrUnterminatedAttribute, Offset: valueStart}
		}
		m.copyThrough(m.r + 1 + end + 1)
		return nil
	}

	for m.r < len(m.buf) && !isSpace(m.buf[m.r]) && m.buf[m.r] != '>' {
		m.emit(m.buf[m.r])
		m.r++
	}

	return nil
}

func (m *minifier) closingTag() error {
	start := m.r

	m.emit('<')
	m.emit('/')
	m.r += 2
	for m.r < len(m.buf) && isNameByte(m.buf[m.r]) {
		m.emit(m.buf[m.r])
		m.r++
	}

	// Anything between the name and '>' is meaningless in an end tag.
	end := bytes.IndexByte(m.buf[m.r:], '>')
	if end < 0 {
		return &Error{Err: ErrUnterminatedTag, Offset: start}
	}
	m.r += end + 1
	m.emit('>')
	m.space = false

	return nil
}

// rawText copies the element content up to, not including, its end tag.
func (m *minifier) rawText(name string, tagStart int) error {
	closing := []byte("</" + name)
	for i := m.r; i+len(closing) <= len(m.buf); i++ {
		if m.buf[i] == '<' && bytes.EqualFold(m.buf[i:i+len(closing)], closing) {
			m.copyThrough(i)
			return nil
		}
	}

	return &Error{Err: ErrUnclosedElement, Offset: tagStart}
}

// skipSpace advances r past whitespace and reports whether any was skipped.
func (m *minifier) skipSpace() bool {
	skipped := false
	for m.r < len(m.buf) && isSpace(m.buf[m.r]) {
		m.r++
		skipped = true
	}
	return skipped
}

func (m *minifier) emit(c byte) {
	m.buf[m.w] = c
	m.w++
}

// copyThrough copies buf[r:end] to the write cursor.
func (m *minifier) copyThrough(end int) {
	m.w += copy(m.buf[m.w:], m.buf[m.r:end])
	m.r = end
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameByte(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == ':' || c == '_' || c == '.'
}
