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

//go:build !minifyhtml_nostandard

package minifyhtml

import (
	"regexp"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
)

const htmlMediaType = "text/html"

var jsMediaTypes = regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$")

func init() {
	registerBackend(BackendStandard, newStandardMinifier)
}

// standardMinifier wraps a tdewolff minifier set up once per layer.
// *minify.M is safe for concurrent use once all minifiers are added.
type standardMinifier struct {
	m      *minify.M
	events EventHandler
}

func newStandardMinifier(cfg *config) Minifier {
	opts := cfg.standard

	m := minify.New()
	m.Add(htmlMediaType, &html.Minifier{
		KeepComments:        opts.KeepComments,
		KeepDefaultAttrVals: opts.KeepDefaultAttrValues,
		KeepDocumentTags:    opts.KeepHTMLAndHeadOpeningTags,
		KeepEndTags:         opts.KeepClosingTags,
		KeepQuotes:          opts.KeepQuotes,
		KeepWhitespace:      opts.KeepWhitespace,
	})
	if opts.MinifyCSS {
		m.AddFunc("text/css", css.Minify)
	}
	if opts.MinifyJS {
		m.AddFuncRegexp(jsMediaTypes, js.Minify)
	}

	return &standardMinifier{m: m, events: cfg.eventHandler}
}

// Minify never fails. The tokenizer recovers from malformed markup on its
// own; if the library still reports an error the input is returned as is.
func (s *standardMinifier) Minify(src []byte) ([]byte, error) {
	out, err := s.m.Bytes(htmlMediaType, src)
	if err != nil {
		s.events(Event{
			Type:    EventDebug,
			Message: "standard backend left body unminified",
			Args:    []any{"error", err},
		})
		return src, nil
	}

	return out, nil
}
