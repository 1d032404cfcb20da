// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the two deterministic serializations used
// inside QYN-1 archives.
//
//   - Canonical JSON for everything a human or another implementation
//     may need to read: wrapper envelopes, metadata (and therefore the
//     associated data bound to ciphertext), compression models and the
//     payload table. Object keys are sorted, there is no insignificant
//     whitespace and no HTML escaping. The same logical value always
//     produces identical bytes, which is what lets a model digest or an
//     AAD string be recomputed from a parsed value.
//   - Core Deterministic CBOR (RFC 8949 §4.2) for the payload channel
//     sections, which are internal to the payload and only ever read by
//     this module.
//
// For canonical JSON:
//
//	data, err := codec.CanonicalJSON(value)
//
// For CBOR:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// # Struct Tag Rules
//
// A `cbor` tag marks a type that is only ever serialized as CBOR. A
// `json` tag marks a type that may be serialized as both; fxamacker/cbor
// reads `json` tags when `cbor` tags are absent. Never use both on the
// same field.
package codec
