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

package codec

import (
	"fmt"

	"github.com/spf13/cast"
)

// CastType is the Go type a single value is converted to.
type CastType string

// revive:disable:exported
const (
	CastTypeBool       CastType = "bool"
	TypeCasterBool     Type     = "caster-bool"
	CastTypeDuration   CastType = "duration"
	TypeCasterDuration Type     = "caster-duration"
	CastTypeInt        CastType = "int"
	TypeCasterInt      Type     = "caster-int"
	CastTypeInt64      CastType = "int64"
	TypeCasterInt64    Type     = "caster-int64"
	CastTypeString     CastType = "string"
	TypeCasterString   Type     = "caster-string"
)

func init() {
	Register(TypeCasterBool, NewCaster(CastTypeBool))
	Register(TypeCasterDuration, NewCaster(CastTypeDuration))
	Register(TypeCasterInt, NewCaster(CastTypeInt))
	Register(TypeCasterInt64, NewCaster(CastTypeInt64))
	Register(TypeCasterString, NewCaster(CastTypeString))
}

// CasterCodec decodes one scalar value, such as a single Consul key holding
// max_body_size, into the configured type.
type CasterCodec struct {
	castType CastType
}

// NewCaster returns a CasterCodec converting to castType.
func NewCaster(castType CastType) *CasterCodec {
	return &CasterCodec{castType: castType}
}

// Decode implements Decoder. v must be a *any.
func (c *CasterCodec) Decode(data []byte, v any) error {
	m, ok := v.(*any)
	if !ok {
		return fmt.Errorf("CasterCodec.Decode: expected *any, got %T", v)
	}
	value := string(data)

	var err error
	switch c.castType {
	case CastTypeBool:
		*m, err = cast.ToBoolE(value)
	case CastTypeDuration:
		*m, err = cast.ToDurationE(value)
	case CastTypeInt:
		*m, err = cast.ToIntE(value)
	case CastTypeInt64:
		*m, err = cast.ToInt64E(value)
	case CastTypeString:
		*m, err = cast.ToStringE(value)
	default:
		err = fmt.Errorf("unsupported cast type %q", c.castType)
	}

	return err
}
