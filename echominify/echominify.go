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

// Package echominify attaches a minifyhtml.Layer to an echo server.
//
//	e := echo.New()
//	e.Use(echominify.New(minifyhtml.MustNew()))
//
// Errors returned by handlers are passed on unchanged. Echo renders them
// after the middleware has returned, so error pages are not minified.
package echominify

import (
	"github.com/labstack/echo/v4"

	"rivaas.dev/minifyhtml"
)

// New returns echo middleware that minifies the HTML responses of next.
func New(layer *minifyhtml.Layer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := c.Response()
			original := res.Writer
			w := layer.ResponseWriter(original, c.Request())
			res.Writer = w

			err := next(c)
			closeErr := w.Close()
			res.Writer = original

			if err != nil {
				return err
			}
			return closeErr
		}
	}
}
