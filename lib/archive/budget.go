// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"

	"github.com/bureau-foundation/quenyan/lib/envelope"
)

// Budget bounds the resources a decode may consume. Archives come from
// untrusted storage and every size they declare is checked against the
// budget before it is allocated.
type Budget struct {
	MaxSymbols          int `yaml:"max_symbols"`
	MaxModelBytes       int `yaml:"max_model_bytes"`
	MaxCompressedBytes  int `yaml:"max_compressed_bytes"`
	MaxStringTableBytes int `yaml:"max_string_table_bytes"`
	MaxPayloadBytes     int `yaml:"max_payload_bytes"`

	// Key derivation runs before authentication, so its cost is taken
	// from the unauthenticated wrapper. MaxKDFWork bounds Argon2id as
	// KiB of memory filled across all passes.
	MaxKDFWork   int `yaml:"max_kdf_work"`
	MaxKDFRounds int `yaml:"max_kdf_rounds"`
}

// DefaultBudget returns the limits used when none are configured.
func DefaultBudget() Budget {
	return Budget{
		MaxSymbols:          10_000_000,
		MaxModelBytes:       4_000_000,
		MaxCompressedBytes:  64_000_000,
		MaxStringTableBytes: 64_000_000,
		MaxPayloadBytes:     64_000_000,
		MaxKDFWork:          1 << 22,
		MaxKDFRounds:        1_000_000,
	}
}

// withDefaults fills zero limits from DefaultBudget.
func (b Budget) withDefaults() Budget {
	defaults := DefaultBudget()
	if b.MaxSymbols <= 0 {
		b.MaxSymbols = defaults.MaxSymbols
	}
	if b.MaxModelBytes <= 0 {
		b.MaxModelBytes = defaults.MaxModelBytes
	}
	if b.MaxCompressedBytes <= 0 {
		b.MaxCompressedBytes = defaults.MaxCompressedBytes
	}
	if b.MaxStringTableBytes <= 0 {
		b.MaxStringTableBytes = defaults.MaxStringTableBytes
	}
	if b.MaxPayloadBytes <= 0 {
		b.MaxPayloadBytes = defaults.MaxPayloadBytes
	}
	if b.MaxKDFWork <= 0 {
		b.MaxKDFWork = defaults.MaxKDFWork
	}
	if b.MaxKDFRounds <= 0 {
		b.MaxKDFRounds = defaults.MaxKDFRounds
	}
	return b
}

// BudgetError reports a declared size over its limit.
type BudgetError struct {
	Resource string
	Limit    int
	Actual   int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("resource budget exceeded: %s is %d, limit %d", e.Resource, e.Actual, e.Limit)
}

func check(resource string, actual, limit int) error {
	if actual > limit {
		return &BudgetError{Resource: resource, Limit: limit, Actual: actual}
	}
	return nil
}

func (b Budget) symbols(count int) error {
	return check("symbols", count, b.MaxSymbols)
}

func (b Budget) model(size int) error {
	return check("model bytes", size, b.MaxModelBytes)
}

func (b Budget) compressed(size int) error {
	return check("compressed bytes", size, b.MaxCompressedBytes)
}

func (b Budget) stringTable(size int) error {
	return check("string table bytes", size, b.MaxStringTableBytes)
}

func (b Budget) payload(size int) error {
	return check("payload bytes", size, b.MaxPayloadBytes)
}

func (b Budget) keyDerivation(result *envelope.Result) error {
	work := envelope.RequiredWork(result)
	if err := check("argon2 work", work.Argon2, b.MaxKDFWork); err != nil {
		return err
	}
	return check("pbkdf2 rounds", work.Rounds, b.MaxKDFRounds)
}
