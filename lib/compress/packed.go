// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"encoding/binary"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// The zstd and lz4 backends compress the token stream packed as one
// unsigned varint per token. The stored form is
//
//	uvarint(packed length) | body tag (1 byte) | uvarint(body length) | body
//
// where the tag records whether the body is compressed or, for input
// the compressor cannot shrink, stored as is.
type bodyTag uint8

const (
	bodyStored bodyTag = 0
	bodyLZ4    bodyTag = 1
	bodyZstd   bodyTag = 2
)

// DefaultZstdLevel is the zstd level used when none is configured.
const DefaultZstdLevel = 3

// maxZstdWindow bounds decoder memory for untrusted streams.
const maxZstdWindow = 64 << 20

func packTokens(tokens []int, alphabetSize int, backend string) ([]byte, error) {
	packed := make([]byte, 0, len(tokens)+len(tokens)/4)
	for _, token := range tokens {
		if token < 0 || token >= alphabetSize {
			return nil, errorf(backend, "symbol %d outside alphabet of %d", token, alphabetSize)
		}
		packed = binary.AppendUvarint(packed, uint64(token))
	}
	return packed, nil
}

func unpackTokens(packed []byte, count, alphabetSize int, backend string) ([]int, error) {
	tokens := make([]int, 0, count)
	for offset := 0; offset < len(packed); {
		value, width := binary.Uvarint(packed[offset:])
		if width <= 0 {
			return nil, errorf(backend, "malformed token varint at byte %d", offset)
		}
		if value >= uint64(alphabetSize) {
			return nil, errorf(backend, "decoded symbol %d outside alphabet of %d", value, alphabetSize)
		}
		if len(tokens) == count {
			return nil, errorf(backend, "decoded symbol count mismatch: more than %d symbols", count)
		}
		tokens = append(tokens, int(value))
		offset += width
	}
	if len(tokens) != count {
		return nil, errorf(backend, "decoded symbol count mismatch: got %d, expected %d", len(tokens), count)
	}
	return tokens, nil
}

// frameBody prepends the packed length and tag to body.
func frameBody(packedLength int, tag bodyTag, body []byte) []byte {
	output := binary.AppendUvarint(make([]byte, 0, len(body)+2*binary.MaxVarintLen64+1), uint64(packedLength))
	output = append(output, byte(tag))
	output = binary.AppendUvarint(output, uint64(len(body)))
	return append(output, body...)
}

// splitBody parses the packed length and tag. The packed length is
// checked against count before the caller allocates for it: every token
// packs into at least one byte and, given the alphabet bound, at most
// three.
func splitBody(data []byte, count int, backend string) (int, bodyTag, []byte, error) {
	if count < 0 {
		return 0, 0, nil, errorf(backend, "negative symbol count %d", count)
	}
	packedLength, width := binary.Uvarint(data)
	if width <= 0 || width >= len(data) {
		return 0, 0, nil, errorf(backend, "encoded stream too short")
	}
	if packedLength < uint64(count) || packedLength > uint64(count)*3 {
		return 0, 0, nil, errorf(backend, "packed length %d inconsistent with %d symbols", packedLength, count)
	}
	tag := bodyTag(data[width])
	rest := data[width+1:]
	bodyLength, width := binary.Uvarint(rest)
	if width <= 0 || bodyLength != uint64(len(rest)-width) {
		return 0, 0, nil, errorf(backend, "body length does not match the %d remaining bytes", len(rest))
	}
	return int(packedLength), tag, rest[width:], nil
}

func alphabetOf(model *Model, backend string) (int, error) {
	if model == nil || model.AlphabetSize <= 0 || model.AlphabetSize > maxAlphabetSize {
		return 0, errorf(backend, "model has no valid alphabet size")
	}
	return model.AlphabetSize, nil
}

type zstdBackend struct {
	level int
}

func newZstdBackend(options Options) (Backend, error) {
	level := options.Level
	if level == 0 {
		level = DefaultZstdLevel
	}
	if level < 1 || level > 22 {
		return nil, errorf(NameZstd, "level must be between 1 and 22, got %d", level)
	}
	return &zstdBackend{level: level}, nil
}

var (
	zstdEncoders sync.Map // level -> *zstd.Encoder

	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(0),
			zstd.WithDecoderMaxMemory(maxZstdWindow),
		)
	})
)

// zstdEncoder returns the shared encoder for level. zstd.Encoder is
// safe for concurrent EncodeAll calls.
func zstdEncoder(level int) (*zstd.Encoder, error) {
	if cached, ok := zstdEncoders.Load(level); ok {
		return cached.(*zstd.Encoder), nil
	}
	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, errorf(NameZstd, "initialising encoder: %v", err)
	}
	actual, _ := zstdEncoders.LoadOrStore(level, encoder)
	return actual.(*zstd.Encoder), nil
}

func (b *zstdBackend) Name() string { return NameZstd }

func (b *zstdBackend) BuildModel(tokens []int, alphabetSize int) (*Model, error) {
	if alphabetSize <= 0 || alphabetSize > maxAlphabetSize {
		return nil, errorf(NameZstd, "alphabet size %d out of range", alphabetSize)
	}
	return &Model{AlphabetSize: alphabetSize, Level: b.level}, nil
}

func (b *zstdBackend) Encode(tokens []int, model *Model) ([]byte, error) {
	alphabetSize, err := alphabetOf(model, NameZstd)
	if err != nil {
		return nil, err
	}
	packed, err := packTokens(tokens, alphabetSize, NameZstd)
	if err != nil {
		return nil, err
	}
	level := model.Level
	if level == 0 {
		level = b.level
	}
	encoder, err := zstdEncoder(level)
	if err != nil {
		return nil, err
	}
	compressed := encoder.EncodeAll(packed, nil)
	if len(compressed) >= len(packed) {
		return frameBody(len(packed), bodyStored, packed), nil
	}
	return frameBody(len(packed), bodyZstd, compressed), nil
}

func (b *zstdBackend) Decode(data []byte, model *Model, count int) ([]int, error) {
	alphabetSize, err := alphabetOf(model, NameZstd)
	if err != nil {
		return nil, err
	}
	packedLength, tag, body, err := splitBody(data, count, NameZstd)
	if err != nil {
		return nil, err
	}
	var packed []byte
	switch tag {
	case bodyStored:
		packed = body
	case bodyZstd:
		decoder, err := zstdDecoder()
		if err != nil {
			return nil, errorf(NameZstd, "initialising decoder: %v", err)
		}
		packed, err = decoder.DecodeAll(body, make([]byte, 0, packedLength))
		if err != nil {
			return nil, errorf(NameZstd, "decompressing: %v", err)
		}
	default:
		return nil, errorf(NameZstd, "unknown body tag %d", tag)
	}
	if len(packed) != packedLength {
		return nil, errorf(NameZstd, "decompressed %d bytes, expected %d", len(packed), packedLength)
	}
	return unpackTokens(packed, count, alphabetSize, NameZstd)
}

type lz4Backend struct{}

func newLZ4Backend(Options) (Backend, error) { return lz4Backend{}, nil }

func (lz4Backend) Name() string { return NameLZ4 }

func (lz4Backend) BuildModel(tokens []int, alphabetSize int) (*Model, error) {
	if alphabetSize <= 0 || alphabetSize > maxAlphabetSize {
		return nil, errorf(NameLZ4, "alphabet size %d out of range", alphabetSize)
	}
	return &Model{AlphabetSize: alphabetSize}, nil
}

func (lz4Backend) Encode(tokens []int, model *Model) ([]byte, error) {
	alphabetSize, err := alphabetOf(model, NameLZ4)
	if err != nil {
		return nil, err
	}
	packed, err := packTokens(tokens, alphabetSize, NameLZ4)
	if err != nil {
		return nil, err
	}
	destination := make([]byte, lz4.CompressBlockBound(len(packed)))
	written, err := lz4.CompressBlock(packed, destination, nil)
	if err != nil {
		return nil, errorf(NameLZ4, "compressing: %v", err)
	}
	// CompressBlock reports zero for incompressible input.
	if written == 0 || written >= len(packed) {
		return frameBody(len(packed), bodyStored, packed), nil
	}
	return frameBody(len(packed), bodyLZ4, destination[:written]), nil
}

func (lz4Backend) Decode(data []byte, model *Model, count int) ([]int, error) {
	alphabetSize, err := alphabetOf(model, NameLZ4)
	if err != nil {
		return nil, err
	}
	packedLength, tag, body, err := splitBody(data, count, NameLZ4)
	if err != nil {
		return nil, err
	}
	var packed []byte
	switch tag {
	case bodyStored:
		packed = body
	case bodyLZ4:
		packed = make([]byte, packedLength)
		read, err := lz4.UncompressBlock(body, packed)
		if err != nil {
			return nil, errorf(NameLZ4, "decompressing: %v", err)
		}
		packed = packed[:read]
	default:
		return nil, errorf(NameLZ4, "unknown body tag %d", tag)
	}
	if len(packed) != packedLength {
		return nil, errorf(NameLZ4, "decompressed %d bytes, expected %d", len(packed), packedLength)
	}
	return unpackTokens(packed, count, alphabetSize, NameLZ4)
}
