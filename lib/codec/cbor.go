// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Section bodies come out of decrypted archives that have not been
// validated yet, so the decoder caps container sizes and nesting.
const (
	maxSectionItems   = 1 << 26
	maxSectionPairs   = 1 << 20
	maxSectionNesting = 64
)

var (
	// Core deterministic encoding: equal values always produce equal
	// bytes, which the payload digest relies on.
	cborEncoder = mustEncMode(cbor.CoreDetEncOptions())

	cborDecoder = mustDecMode(cbor.DecOptions{
		DefaultMapType:   reflect.TypeFor[map[string]any](),
		MaxArrayElements: maxSectionItems,
		MaxMapPairs:      maxSectionPairs,
		MaxNestedLevels:  maxSectionNesting,
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
	})
)

func mustEncMode(options cbor.EncOptions) cbor.EncMode {
	mode, err := options.EncMode()
	if err != nil {
		panic("codec: cbor encoder options: " + err.Error())
	}
	return mode
}

func mustDecMode(options cbor.DecOptions) cbor.DecMode {
	mode, err := options.DecMode()
	if err != nil {
		panic("codec: cbor decoder options: " + err.Error())
	}
	return mode
}

// Marshal encodes v as deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return cborEncoder.Marshal(v)
}

// Unmarshal decodes exactly one CBOR item from data into v. Untyped
// maps decode as map[string]any.
func Unmarshal(data []byte, v any) error {
	return cborDecoder.Unmarshal(data, v)
}
