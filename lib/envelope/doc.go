// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package envelope is the authenticated-encryption layer of QYN-1.
//
// The current scheme (version 2) derives a 32-byte master key from the
// passphrase with Argon2id over a random 16-byte salt, expands it with
// HKDF-SHA256 over a second, independent 16-byte salt and the info
// string "qyn1-envelope:v2", and seals the payload with
// ChaCha20-Poly1305 under a random 12-byte nonce. The caller's metadata
// is passed as associated data, so any change to it invalidates the tag.
//
// Version 1 archives used PBKDF2-HMAC-SHA256 (200 000 rounds) directly
// as the cipher key. [Decrypt] still reads them and [Encrypt] can still
// produce them for fixtures, but new archives always use version 2.
//
// Every decryption failure, whatever its cause, is reported through
// [ErrDecrypt] with one fixed message, so callers cannot tell a wrong
// passphrase from a tampered archive.
//
// Derived keys live in lib/secret buffers and are zeroed before the
// call returns.
package envelope
