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

package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"rivaas.dev/minifyhtml"
	"rivaas.dev/minifyhtml/internal/config"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// MINIFYHTML_UPSTREAM or MINIFYHTML_STANDARD__KEEP_COMMENTS.
const EnvPrefix = "MINIFYHTML_"

// consulKeyEnv names the Consul key holding a configuration document.
const consulKeyEnv = "MINIFYHTML_CONSUL_KEY"

// configSchema checks the shape of the merged configuration before binding.
//
//go:embed schema.json
var configSchema []byte

type proxyConfig struct {
	Listen          string        `config:"listen" default:":8080" validate:"required"`
	Upstream        string        `config:"upstream" validate:"required,url"`
	HealthPath      string        `config:"health_path" validate:"omitempty,startswith=/"`
	ShutdownTimeout time.Duration `config:"shutdown_timeout" default:"30s" validate:"gte=1s"`
	RequestID       string        `config:"request_id" default:"uuid" validate:"oneof=uuid ulid"`

	Backend     string `config:"backend" validate:"omitempty,oneof=standard onepass"`
	MaxBodySize int64  `config:"max_body_size" validate:"gte=0"`
	BrotliLevel int    `config:"brotli_level" default:"4" validate:"gte=0,lte=11"`

	Standard minifyhtml.StandardOptions `config:"standard"`
	OnePass  minifyhtml.OnePassOptions  `config:"onepass"`

	Log struct {
		Level  string `config:"level" default:"info"`
		Format string `config:"format" default:"text" validate:"oneof=text json"`
	} `config:"log"`

	Metrics struct {
		Exporter string        `config:"exporter" default:"prometheus" validate:"oneof=prometheus stdout otlp"`
		Endpoint string        `config:"endpoint"`
		Interval time.Duration `config:"interval" default:"30s" validate:"gte=1s"`
	} `config:"metrics"`

	Tracing struct {
		Enabled  bool   `config:"enabled"`
		Exporter string `config:"exporter" default:"stdout" validate:"oneof=stdout otlp otlp-http"`
		Endpoint string `config:"endpoint"`
	} `config:"tracing"`

	upstreamURL *url.URL
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := fld.Tag.Get("config"); name != "" {
			return name
		}
		return fld.Name
	})
	return v
}

// Validate checks the bound configuration.
func (c *proxyConfig) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s %s", fieldPath(fe), tagMessage(fe)))
		}
	}

	if u, err := url.Parse(c.Upstream); err == nil && u.Scheme != "" && u.Host != "" {
		c.upstreamURL = u
	} else if c.Upstream != "" {
		errs = append(errs, fmt.Errorf("upstream %q must be an absolute URL", c.Upstream))
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// fieldPath drops the struct name from the namespace: "log.format".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	default:
		return fmt.Sprintf("failed validation (%s)", fe.Tag())
	}
}

// layerOptions translates the configuration into minifyhtml options.
func (c *proxyConfig) layerOptions() []minifyhtml.Option {
	opts := []minifyhtml.Option{
		minifyhtml.WithStandardOptions(c.Standard),
		minifyhtml.WithOnePassOptions(c.OnePass),
		minifyhtml.WithMaxBodySize(c.MaxBodySize),
		minifyhtml.WithBrotliLevel(c.BrotliLevel),
	}
	if b, err := minifyhtml.ParseBackend(c.Backend); err == nil {
		opts = append(opts, minifyhtml.WithBackend(b))
	}
	return opts
}

// loadConfig layers the optional file, the Consul key named by
// MINIFYHTML_CONSUL_KEY, and the environment, in that order.
func loadConfig(ctx context.Context, path string, getenv func(string) string) (*proxyConfig, error) {
	cfg := &proxyConfig{}

	opts := []config.Option{
		config.WithJSONSchema(configSchema),
		config.WithBinding(cfg),
	}
	if path != "" {
		opts = append(opts, config.WithFile(path))
	}
	if key := getenv(consulKeyEnv); key != "" {
		opts = append(opts, config.WithConsul(key))
	}
	opts = append(opts, config.WithEnv(EnvPrefix))

	c, err := config.New(opts...)
	if err != nil {
		return nil, err
	}
	if err = c.Load(ctx); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}
