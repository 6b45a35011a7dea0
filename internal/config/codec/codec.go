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

// Package codec decodes configuration documents into maps.
//
// Decoders register themselves by Type from init. Sources look them up
// with Get, usually through the format detected from a file extension.
package codec

import "fmt"

// Type names a registered decoder.
type Type string

// Decoder converts encoded data into the value pointed to by v.
type Decoder interface {
	Decode(data []byte, v any) error
}

var decoders = make(map[Type]Decoder)

// Register makes a decoder available under name.
// It is meant to be called from init and is not safe for concurrent use.
func Register(name Type, decoder Decoder) {
	decoders[name] = decoder
}

// Get returns the decoder registered under name.
func Get(name Type) (Decoder, error) {
	decoder, exists := decoders[name]
	if !exists {
		return nil, fmt.Errorf("decoder not found for type: %s", name)
	}

	return decoder, nil
}
