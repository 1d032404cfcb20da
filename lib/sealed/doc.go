// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed stores archive passphrases encrypted to age recipients.
//
// A sealed passphrase file lets automation decode archives without the
// passphrase ever sitting in plaintext on disk or in an environment
// variable: the file holds the passphrase encrypted to one or more age
// x25519 public keys, and only a holder of a matching identity can
// recover it. The "age" key provider in lib/keyprovider reads these
// files.
//
// Key exports:
//
//   - [GenerateKeypair] -- new age x25519 keypair in a secret.Buffer
//   - [Seal] / [Open] -- encrypt a passphrase to recipients, decrypt it
//   - [WriteFile] / [ReadFile] -- the on-disk sealed passphrase format
//   - [ReadIdentity] -- load an AGE-SECRET-KEY-1 identity file
//   - [ParsePublicKey] / [ParsePrivateKey] -- key validation
//
// Private keys and recovered passphrases are returned as secret.Buffer
// values, zeroed on Close.
package sealed
