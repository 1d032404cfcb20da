// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// CanonicalJSON encodes v as compact JSON with object keys sorted at
// every level and without HTML escaping. Struct field order is
// irrelevant: the value is normalised through a generic representation
// before the final encoding.
func CanonicalJSON(v any) ([]byte, error) {
	first, err := encodeJSON(v)
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(first))
	decoder.UseNumber()
	var generic any
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("normalising canonical JSON: %w", err)
	}
	return encodeJSON(generic)
}

// DecodeJSON decodes data into v, preserving numbers exactly when v is
// an any-typed target and rejecting trailing content.
func DecodeJSON(data []byte, v any) error {
	return decodeJSON(data, v, false)
}

// DecodeStrictJSON is [DecodeJSON] that also rejects object fields
// with no matching struct field.
func DecodeStrictJSON(data []byte, v any) error {
	return decodeJSON(data, v, true)
}

func decodeJSON(data []byte, v any, strict bool) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if strict {
		decoder.DisallowUnknownFields()
	}
	if err := decoder.Decode(v); err != nil {
		return err
	}
	if _, err := decoder.Token(); err != io.EOF {
		return fmt.Errorf("unexpected content after JSON value")
	}
	return nil
}

func encodeJSON(v any) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buffer.Bytes(), []byte("\n")), nil
}
