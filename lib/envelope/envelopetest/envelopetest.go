// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package envelopetest provides encryption settings for tests.
package envelopetest

import "github.com/bureau-foundation/quenyan/lib/envelope"

// FastArgon2 is the cheapest Argon2id configuration the envelope
// accepts. Archives sealed with it decrypt like any other; they are
// only cheap to brute force.
var FastArgon2 = envelope.Argon2Params{TimeCost: 1, MemoryCost: 64, Parallelism: 1}

// Fast returns encryption options using [FastArgon2].
func Fast() envelope.Options {
	return envelope.Options{Argon2: FastArgon2}
}
