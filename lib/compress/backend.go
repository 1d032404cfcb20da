// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"fmt"
	"io"
	"sort"
)

// Backend compresses token streams. Implementations are stateless
// between calls and safe for concurrent use.
//
// Encode may complete the model with data that only exists after coding
// (chunk tables); callers persist the model after Encode returns.
type Backend interface {
	Name() string
	BuildModel(tokens []int, alphabetSize int) (*Model, error)
	Encode(tokens []int, model *Model) ([]byte, error)
	Decode(data []byte, model *Model, count int) ([]int, error)
}

// Options tunes backend construction. Zero values select defaults;
// options that do not apply to the named backend are ignored.
type Options struct {
	// PrecisionBits is the rANS table precision (8..16, default 12).
	PrecisionBits int

	// ChunkSize is the chunked-rans chunk length in tokens.
	ChunkSize int

	// TableLog is the fse table log (clamped to 8..16, default 12).
	TableLog int

	// Level is the zstd encoder level (1..22, default 3).
	Level int
}

// Backend names.
const (
	NameRANS        = "rans"
	NameChunkedRANS = "chunked-rans"
	NameFSE         = "fse"
	NameZstd        = "zstd"
	NameLZ4         = "lz4"
)

// DefaultBackend is the backend used when none is configured.
const DefaultBackend = NameRANS

var backendFactories = map[string]func(Options) (Backend, error){
	NameRANS:        newRANSBackend,
	NameChunkedRANS: newChunkedBackend,
	NameFSE:         newFSEBackend,
	NameZstd:        newZstdBackend,
	NameLZ4:         newLZ4Backend,
}

// Lookup returns the backend registered under name.
func Lookup(name string, options Options) (Backend, error) {
	factory, ok := backendFactories[name]
	if !ok {
		return nil, errorf("", "unknown compression backend %q (available: %v)", name, Names())
	}
	return factory(options)
}

// Names returns the registered backend names in sorted order.
func Names() []string {
	names := make([]string, 0, len(backendFactories))
	for name := range backendFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SupportsModelMode reports whether the named backend honours static
// and hybrid models. Other backends always build adaptive models.
func SupportsModelMode(name string) bool {
	return name == NameRANS
}

// PrepareModel builds the model for tokens under the requested mode.
// Backends without mode support fall back to adaptive; the mode
// actually used is returned alongside the model.
func PrepareModel(backend Backend, mode Mode, tokens []int, alphabetSize int) (*Model, Mode, error) {
	if mode == "" || !SupportsModelMode(backend.Name()) {
		mode = ModeAdaptive
	}
	adaptive, err := backend.BuildModel(tokens, alphabetSize)
	if err != nil {
		return nil, "", err
	}
	switch mode {
	case ModeAdaptive:
		return adaptive, mode, nil

	case ModeStatic:
		global, err := LoadGlobalModel(DefaultGlobalModelID)
		if err != nil {
			return nil, "", err
		}
		return &Model{
			Mode:          string(ModeStatic),
			ModelID:       global.ModelID,
			PrecisionBits: global.PrecisionBits,
			AlphabetSize:  alphabetSize,
		}, mode, nil

	case ModeHybrid:
		global, err := LoadGlobalModel(DefaultGlobalModelID)
		if err != nil {
			return nil, "", err
		}
		return &Model{
			Mode:          string(ModeHybrid),
			ModelID:       global.ModelID,
			PrecisionBits: adaptive.PrecisionBits,
			AlphabetSize:  alphabetSize,
			Overrides:     SparseOverrides(adaptive.Frequencies, global.FrequenciesFor(alphabetSize)),
		}, mode, nil

	default:
		return nil, "", fmt.Errorf("unknown model mode %q", mode)
	}
}

// TokenSource yields a token stream in chunks. NextChunk returns at
// most size tokens and io.EOF once the stream is exhausted.
type TokenSource interface {
	NextChunk(size int) ([]int, error)
}

// SliceSource adapts an in-memory token slice to [TokenSource].
type SliceSource struct {
	tokens []int
}

// NewSliceSource returns a source over tokens.
func NewSliceSource(tokens []int) *SliceSource {
	return &SliceSource{tokens: tokens}
}

// NextChunk implements [TokenSource].
func (s *SliceSource) NextChunk(size int) ([]int, error) {
	if len(s.tokens) == 0 {
		return nil, io.EOF
	}
	size = min(size, len(s.tokens))
	chunk := s.tokens[:size]
	s.tokens = s.tokens[size:]
	return chunk, nil
}
