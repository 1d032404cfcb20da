// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash provides the SHA-256 digests that QYN-1 archives
// record about their content.
//
// Two digests appear in every archive's metadata: the source hash (the
// digest of the original source bytes, checked by verify and exposed to
// dependency resolvers) and the compression model digest (the digest of
// the canonical JSON model, checked against the decrypted compression
// section). Both are lowercase hex.
//
//   - [Sum] and [SumHex] hash in-memory bytes
//   - [HashFile] streams a file through SHA-256 with constant memory
//   - [FormatDigest] and [ParseDigest] convert between [32]byte and hex
//   - [Equal] compares two hex digests in constant time
//
// This package has no dependencies on other packages in this module.
package binhash
