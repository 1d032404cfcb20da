// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"errors"
	"io"
)

// DefaultChunkSize is the chunked-rans chunk length in tokens.
const DefaultChunkSize = 65536

// ChunkedBackend is the chunked-rans backend. Each chunk is coded with
// its own adaptive table, so encoding can proceed from a [TokenSource]
// one chunk at a time.
type ChunkedBackend struct {
	chunkSize     int
	precisionBits int
}

func newChunkedBackend(options Options) (Backend, error) {
	return NewChunkedBackend(options)
}

// NewChunkedBackend returns a chunked-rans backend. It is also reachable
// through [Lookup]; the concrete type exposes [ChunkedBackend.EncodeStream].
func NewChunkedBackend(options Options) (*ChunkedBackend, error) {
	chunkSize := options.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < 0 {
		return nil, errorf(NameChunkedRANS, "chunk size must be positive, got %d", chunkSize)
	}
	precision := options.PrecisionBits
	if precision == 0 {
		precision = DefaultPrecisionBits
	}
	if precision < MinPrecisionBits || precision > MaxPrecisionBits {
		return nil, errorf(NameChunkedRANS, "precision bits must be between %d and %d, got %d",
			MinPrecisionBits, MaxPrecisionBits, precision)
	}
	return &ChunkedBackend{chunkSize: chunkSize, precisionBits: precision}, nil
}

func (b *ChunkedBackend) Name() string { return NameChunkedRANS }

// BuildModel returns a model with no chunks; Encode fills them in.
func (b *ChunkedBackend) BuildModel(tokens []int, alphabetSize int) (*Model, error) {
	if alphabetSize <= 0 || alphabetSize > 1<<b.precisionBits {
		return nil, errorf(NameChunkedRANS, "alphabet size %d out of range for %d-bit precision",
			alphabetSize, b.precisionBits)
	}
	return &Model{
		Mode:          modeChunked,
		ChunkSize:     b.chunkSize,
		PrecisionBits: b.precisionBits,
		AlphabetSize:  alphabetSize,
	}, nil
}

func (b *ChunkedBackend) Encode(tokens []int, model *Model) ([]byte, error) {
	return b.EncodeStream(NewSliceSource(tokens), model)
}

// EncodeStream codes every chunk produced by source and records the
// chunk tables in model.
func (b *ChunkedBackend) EncodeStream(source TokenSource, model *Model) ([]byte, error) {
	if model == nil || model.AlphabetSize <= 0 {
		return nil, errorf(NameChunkedRANS, "model has no alphabet size")
	}
	chunkSize := model.ChunkSize
	if chunkSize <= 0 {
		chunkSize = b.chunkSize
	}
	precision := model.PrecisionBits
	if precision == 0 {
		precision = b.precisionBits
	}

	var compressed []byte
	var chunks []Chunk
	for {
		tokens, err := source.NextChunk(chunkSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errorf(NameChunkedRANS, "reading token chunk %d: %v", len(chunks), err)
		}
		if len(tokens) == 0 {
			continue
		}
		table, err := BuildTable(tokens, model.AlphabetSize, precision)
		if err != nil {
			return nil, rename(err, NameChunkedRANS)
		}
		encoded, err := table.Encode(tokens)
		if err != nil {
			return nil, rename(err, NameChunkedRANS)
		}
		chunks = append(chunks, Chunk{
			Offset:      len(compressed),
			Length:      len(encoded),
			SymbolCount: len(tokens),
			Frequencies: table.Frequencies,
		})
		compressed = append(compressed, encoded...)
	}
	model.Chunks = chunks
	if compressed == nil {
		compressed = []byte{}
	}
	return compressed, nil
}

// Decode validates the chunk layout against data and count before
// decoding any chunk. Chunks must tile data exactly.
func (b *ChunkedBackend) Decode(data []byte, model *Model, count int) ([]int, error) {
	if model == nil {
		return nil, errorf(NameChunkedRANS, "empty model")
	}
	if model.Mode != modeChunked {
		return nil, errorf(NameChunkedRANS, "model mode %q is not %q", model.Mode, modeChunked)
	}
	precision := model.PrecisionBits
	if precision == 0 {
		precision = b.precisionBits
	}

	expectedOffset, total := 0, 0
	for index, chunk := range model.Chunks {
		if chunk.Offset != expectedOffset || chunk.Length < 4 || chunk.Length > len(data)-chunk.Offset {
			return nil, errorf(NameChunkedRANS, "chunk %d spans [%d, +%d) outside the %d-byte stream",
				index, chunk.Offset, chunk.Length, len(data))
		}
		if chunk.SymbolCount <= 0 {
			return nil, errorf(NameChunkedRANS, "chunk %d has symbol count %d", index, chunk.SymbolCount)
		}
		if model.AlphabetSize > 0 && len(chunk.Frequencies) != model.AlphabetSize {
			return nil, errorf(NameChunkedRANS, "chunk %d has %d frequencies for an alphabet of %d",
				index, len(chunk.Frequencies), model.AlphabetSize)
		}
		expectedOffset += chunk.Length
		total += chunk.SymbolCount
		if total > count {
			break
		}
	}
	if total != count {
		return nil, errorf(NameChunkedRANS, "decoded symbol count mismatch: chunks declare %d, expected %d", total, count)
	}
	if expectedOffset != len(data) {
		return nil, errorf(NameChunkedRANS, "chunks cover %d of %d stream bytes", expectedOffset, len(data))
	}

	decoded := make([]int, 0, count)
	for index, chunk := range model.Chunks {
		table, err := TableFromFrequencies(chunk.Frequencies, precision)
		if err != nil {
			return nil, errorf(NameChunkedRANS, "chunk %d: %s", index, reason(err))
		}
		symbols, err := table.Decode(data[chunk.Offset:chunk.Offset+chunk.Length], chunk.SymbolCount)
		if err != nil {
			return nil, errorf(NameChunkedRANS, "chunk %d: %s", index, reason(err))
		}
		decoded = append(decoded, symbols...)
	}
	return decoded, nil
}

func reason(err error) string {
	var compressionError *Error
	if errors.As(err, &compressionError) {
		return compressionError.Reason
	}
	return err.Error()
}
