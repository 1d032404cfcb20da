// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package payload holds the out-of-band values of an encoded stream.
//
// Tokens carry structure; everything else (identifier text, literal
// values, list lengths, optional-field flags) travels in typed channels
// so a consumer can read one channel without materialising the others.
// Every value is recorded with the index of the token it belongs to.
//
// On the wire, the payload record (entries, channel bits and the
// structured channel) is canonical JSON and each sectioned channel is a
// deterministic CBOR body. Identifier and string channels hold indices
// into the archive's string table.
package payload
