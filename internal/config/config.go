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

// Package config loads layered configuration into a struct.
//
// Sources are loaded in the order they are given; later sources override
// earlier ones key by key. Keys are case-insensitive. The merged map is
// bound to the target struct through its `config` tags, `default` tags
// fill zero fields, and a Validate method, when present, runs last.
//
//	var cfg proxyConfig
//	c, err := config.New(
//	    config.WithFile("minifyhtml.yaml"),
//	    config.WithConsul("minifyhtml/proxy.yaml"),
//	    config.WithEnv("MINIFYHTML_"),
//	    config.WithBinding(&cfg),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := c.Load(ctx); err != nil {
//	    return err
//	}
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/go-viper/mapstructure/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spf13/cast"

	"rivaas.dev/minifyhtml/internal/config/codec"
	"rivaas.dev/minifyhtml/internal/config/source"
)

// Source loads one layer of configuration.
type Source interface {
	Load(ctx context.Context) (map[string]any, error)
}

// Validator is implemented by bound structs that check themselves.
type Validator interface {
	Validate() error
}

// Option configures a Config.
type Option func(c *Config) error

// Config loads configuration from its sources and binds it.
// It is not safe for concurrent Load calls.
type Config struct {
	sources []Source
	binding any
	values  map[string]any
	schema  *jsonschema.Schema
}

// extensionFormats maps file extensions to decoders.
var extensionFormats = map[string]codec.Type{
	".yaml": codec.TypeYAML,
	".yml":  codec.TypeYAML,
	".json": codec.TypeJSON,
	".toml": codec.TypeTOML,
}

func detectFormat(path string) (codec.Type, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if format, ok := extensionFormats[ext]; ok {
		return format, nil
	}
	return "", fmt.Errorf("cannot detect format from extension %q", ext)
}

// WithSource adds a custom source.
func WithSource(src Source) Option {
	return func(c *Config) error {
		c.sources = append(c.sources, src)
		return nil
	}
}

// WithFile adds a file source. The format is detected from the extension
// and ${VAR} references in path are expanded.
func WithFile(path string) Option {
	return func(c *Config) error {
		path = os.ExpandEnv(path)

		format, err := detectFormat(path)
		if err != nil {
			return NewError("file-source", "detect-format", err)
		}
		decoder, err := codec.Get(format)
		if err != nil {
			return NewError("file-source", "get-decoder", err)
		}

		c.sources = append(c.sources, source.NewFile(path, decoder))
		return nil
	}
}

// WithContent adds in-memory content decoded as codecType.
func WithContent(data []byte, codecType codec.Type) Option {
	return func(c *Config) error {
		decoder, err := codec.Get(codecType)
		if err != nil {
			return NewError("content-source", "get-decoder", err)
		}

		c.sources = append(c.sources, source.NewFileContent(data, decoder))
		return nil
	}
}

// WithEnv adds the environment variables starting with prefix.
func WithEnv(prefix string) Option {
	return func(c *Config) error {
		c.sources = append(c.sources, source.NewOSEnvVar(prefix))
		return nil
	}
}

// WithConsul adds a Consul key. The format is detected from the key's
// extension. The option is skipped when CONSUL_HTTP_ADDR is not set, so a
// local setup runs without Consul.
func WithConsul(key string) Option {
	return func(c *Config) error {
		if os.Getenv("CONSUL_HTTP_ADDR") == "" {
			return nil
		}

		format, err := detectFormat(key)
		if err != nil {
			return NewError("consul-source", "detect-format", err)
		}

		return WithConsulAs(key, format)(c)
	}
}

// WithConsulAs adds a Consul key decoded as codecType. Caster types bind
// a single value named after the last key segment.
func WithConsulAs(key string, codecType codec.Type) Option {
	return func(c *Config) error {
		if os.Getenv("CONSUL_HTTP_ADDR") == "" {
			return nil
		}

		decoder, err := codec.Get(codecType)
		if err != nil {
			return NewError("consul-source", "get-decoder", err)
		}
		src, err := source.NewConsul(os.ExpandEnv(key), decoder, nil)
		if err != nil {
			return NewError("consul-source", "new", err)
		}

		c.sources = append(c.sources, src)
		return nil
	}
}

// WithJSONSchema validates the merged values against a JSON Schema before
// they are bound. Keys are lowercase by the time the schema sees them.
func WithJSONSchema(schema []byte) Option {
	return func(c *Config) error {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
		if err != nil {
			return NewError("json-schema", "parse", err)
		}

		compiler := jsonschema.NewCompiler()
		if err = compiler.AddResource("config.json", doc); err != nil {
			return NewError("json-schema", "add-resource", err)
		}
		compiled, err := compiler.Compile("config.json")
		if err != nil {
			return NewError("json-schema", "compile", err)
		}

		c.schema = compiled
		return nil
	}
}

// WithBinding binds the loaded configuration to v, a pointer to a struct.
func WithBinding(v any) Option {
	return func(c *Config) error {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
			return NewError("binding", "configure", fmt.Errorf("binding must be a pointer to a struct, got %T", v))
		}
		c.binding = v
		return nil
	}
}

// New returns a Config built from options. Option errors are joined.
func New(options ...Option) (*Config, error) {
	c := &Config{values: map[string]any{}}

	var errs error
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(c); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	if errs != nil {
		return nil, errs
	}

	return c, nil
}

// Load loads every source, merges them and binds the result.
// On error the previous values and binding are left untouched.
func (c *Config) Load(ctx context.Context) error {
	values, err := c.loadSources(ctx)
	if err != nil {
		return err
	}

	if c.schema != nil {
		if err = c.schema.Validate(values); err != nil {
			return NewError("json-schema", "validate", err)
		}
	}

	if c.binding != nil {
		target := reflect.New(reflect.TypeOf(c.binding).Elem())
		if err = bind(values, target.Interface()); err != nil {
			return NewError("binding", "bind", err)
		}
		if v, ok := target.Interface().(Validator); ok {
			if err = v.Validate(); err != nil {
				return NewError("binding", "validate", err)
			}
		}
		reflect.ValueOf(c.binding).Elem().Set(target.Elem())
	}

	c.values = values

	return nil
}

// Values returns the merged configuration of the last successful Load.
func (c *Config) Values() map[string]any {
	return c.values
}

func (c *Config) loadSources(ctx context.Context) (map[string]any, error) {
	merged := make(map[string]any)
	for i, src := range c.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conf, err := src.Load(ctx)
		if err != nil {
			return nil, NewError(fmt.Sprintf("source[%d]", i), "load", err)
		}
		if conf == nil {
			continue
		}

		if err = mergo.Map(&merged, normalizeMapKeys(conf), mergo.WithOverride); err != nil {
			return nil, NewError(fmt.Sprintf("source[%d]", i), "merge", err)
		}
	}

	return merged, nil
}

// normalizeMapKeys lowercases keys recursively.
func normalizeMapKeys(m map[string]any) map[string]any {
	normalized := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			v = normalizeMapKeys(nested)
		}
		normalized[strings.ToLower(k)] = v
	}
	return normalized
}

func bind(values map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "config",
		Squash:           true,
		WeaklyTypedInput: true,
		Result:           target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToURLHookFunc(),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err = decoder.Decode(values); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}

	return setDefaults(reflect.ValueOf(target).Elem())
}

// setDefaults fills zero fields from their `default` tag, recursing into
// nested structs.
func setDefaults(val reflect.Value) error {
	typ := val.Type()
	for i := range val.NumField() {
		field := val.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct {
			if err := setDefaults(field); err != nil {
				return err
			}
			continue
		}

		tag := typ.Field(i).Tag.Get("default")
		if tag == "" || !field.IsZero() {
			continue
		}
		if err := setDefaultValue(field, tag); err != nil {
			return fmt.Errorf("failed to set default for field %s: %w", typ.Field(i).Name, err)
		}
	}

	return nil
}

func setDefaultValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeFor[time.Duration]() {
			d, err := cast.ToDurationE(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := cast.ToInt64E(value)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := cast.ToUint64E(value)
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Bool:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported type for default tag: %s", field.Kind())
	}

	return nil
}
