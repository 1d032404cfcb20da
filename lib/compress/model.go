// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"fmt"

	"github.com/bureau-foundation/quenyan/lib/binhash"
	"github.com/bureau-foundation/quenyan/lib/codec"
)

// Mode selects how a rANS model is derived.
type Mode string

const (
	// ModeAdaptive builds frequencies from the file's own tokens.
	ModeAdaptive Mode = "adaptive"

	// ModeStatic uses a packaged global model with no per-file
	// adaptation. Only the model identifier is stored.
	ModeStatic Mode = "static"

	// ModeHybrid starts from a packaged global model and stores sparse
	// overrides for the symbols whose adaptive frequency differs.
	ModeHybrid Mode = "hybrid"
)

// ParseMode parses a model mode name. The empty string means adaptive.
func ParseMode(name string) (Mode, error) {
	switch Mode(name) {
	case "", ModeAdaptive:
		return ModeAdaptive, nil
	case ModeStatic, ModeHybrid:
		return Mode(name), nil
	default:
		return "", fmt.Errorf("unknown model mode %q (expected adaptive, static or hybrid)", name)
	}
}

// Model is the serialisable description of a backend's probability
// assignment. Each backend uses a subset of the fields; unused fields
// are omitted from the JSON form so that the canonical encoding, and
// therefore [Model.Digest], depends only on what the backend stored.
type Model struct {
	Mode          string         `json:"mode,omitempty"`
	ModelID       string         `json:"model_id,omitempty"`
	PrecisionBits int            `json:"precision_bits,omitempty"`
	AlphabetSize  int            `json:"alphabet_size,omitempty"`
	Frequencies   []int          `json:"frequencies,omitempty"`
	Overrides     map[string]int `json:"overrides,omitempty"`

	ChunkSize int     `json:"chunk_size,omitempty"`
	Chunks    []Chunk `json:"chunks,omitempty"`

	TableLog int   `json:"table_log,omitempty"`
	Counts   []int `json:"counts,omitempty"`

	Level int `json:"level,omitempty"`
}

// Chunk describes one independently coded chunk of a chunked-rans
// stream.
type Chunk struct {
	Offset      int   `json:"offset"`
	Length      int   `json:"length"`
	SymbolCount int   `json:"symbol_count"`
	Frequencies []int `json:"frequencies"`
}

// modeChunked is the mode marker written by the chunked-rans backend.
const modeChunked = "chunked"

// Canonical returns the canonical JSON encoding of the model.
func (m *Model) Canonical() ([]byte, error) {
	return codec.CanonicalJSON(m)
}

// Digest returns the hex SHA-256 of the canonical encoding. Archives
// record the digest in their authenticated metadata so a payload
// carrying a substituted model is rejected.
func (m *Model) Digest() (string, error) {
	canonical, err := m.Canonical()
	if err != nil {
		return "", fmt.Errorf("encoding model: %w", err)
	}
	return binhash.SumHex(canonical), nil
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	clone := *m
	clone.Frequencies = append([]int(nil), m.Frequencies...)
	clone.Counts = append([]int(nil), m.Counts...)
	if m.Overrides != nil {
		clone.Overrides = make(map[string]int, len(m.Overrides))
		for key, value := range m.Overrides {
			clone.Overrides[key] = value
		}
	}
	if m.Chunks != nil {
		clone.Chunks = make([]Chunk, len(m.Chunks))
		for index, chunk := range m.Chunks {
			chunk.Frequencies = append([]int(nil), chunk.Frequencies...)
			clone.Chunks[index] = chunk
		}
	}
	return &clone
}

// ParseModel decodes a model from its JSON form. Unknown fields and
// trailing content are rejected.
func ParseModel(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, errorf("", "empty model")
	}
	var model Model
	if err := codec.DecodeStrictJSON(data, &model); err != nil {
		return nil, errorf("", "malformed model: %v", err)
	}
	return &model, nil
}
