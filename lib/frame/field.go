// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// FieldWriter builds a section payload from little-endian fields.
type FieldWriter struct {
	buffer []byte
}

// Uint8 appends one byte.
func (w *FieldWriter) Uint8(value uint8) { w.buffer = append(w.buffer, value) }

// Uint32 appends a little-endian uint32.
func (w *FieldWriter) Uint32(value uint32) {
	w.buffer = binary.LittleEndian.AppendUint32(w.buffer, value)
}

// String16 appends a UTF-8 string with a uint16 length prefix.
func (w *FieldWriter) String16(value string) error {
	if len(value) > math.MaxUint16 {
		return formatErrorf("string field of %d bytes exceeds the 16-bit length prefix", len(value))
	}
	w.buffer = binary.LittleEndian.AppendUint16(w.buffer, uint16(len(value)))
	w.buffer = append(w.buffer, value...)
	return nil
}

// Bytes32 appends a byte string with a uint32 length prefix.
func (w *FieldWriter) Bytes32(value []byte) error {
	if uint64(len(value)) > math.MaxUint32 {
		return formatErrorf("field of %d bytes exceeds the 32-bit length prefix", len(value))
	}
	w.Uint32(uint32(len(value)))
	w.buffer = append(w.buffer, value...)
	return nil
}

// Raw appends bytes without a prefix.
func (w *FieldWriter) Raw(value []byte) { w.buffer = append(w.buffer, value...) }

// Bytes returns the accumulated payload.
func (w *FieldWriter) Bytes() []byte { return w.buffer }

// FieldReader consumes little-endian fields from a section payload.
// Every read error is a [*FormatError] naming the section.
type FieldReader struct {
	section SectionID
	data    []byte
	offset  int
}

// NewFieldReader returns a reader over the payload of section.
func NewFieldReader(section Section) *FieldReader {
	return &FieldReader{section: section.ID, data: section.Payload}
}

func (r *FieldReader) take(count uint64, what string) ([]byte, error) {
	if count > uint64(len(r.data)-r.offset) {
		return nil, formatErrorf("section %s truncated reading %s at offset %d", r.section, what, r.offset)
	}
	chunk := r.data[r.offset : r.offset+int(count)]
	r.offset += int(count)
	return chunk, nil
}

// Uint8 reads one byte.
func (r *FieldReader) Uint8(what string) (uint8, error) {
	chunk, err := r.take(1, what)
	if err != nil {
		return 0, err
	}
	return chunk[0], nil
}

// Uint32 reads a little-endian uint32.
func (r *FieldReader) Uint32(what string) (uint32, error) {
	chunk, err := r.take(4, what)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(chunk), nil
}

// String16 reads a uint16-prefixed UTF-8 string.
func (r *FieldReader) String16(what string) (string, error) {
	prefix, err := r.take(2, what+" length")
	if err != nil {
		return "", err
	}
	chunk, err := r.take(uint64(binary.LittleEndian.Uint16(prefix)), what)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(chunk) {
		return "", formatErrorf("section %s field %s is not valid UTF-8", r.section, what)
	}
	return string(chunk), nil
}

// Bytes32 reads a uint32-prefixed byte string.
func (r *FieldReader) Bytes32(what string) ([]byte, error) {
	length, err := r.Uint32(what + " length")
	if err != nil {
		return nil, err
	}
	return r.take(uint64(length), what)
}

// Raw reads exactly count bytes.
func (r *FieldReader) Raw(count int, what string) ([]byte, error) {
	return r.take(uint64(count), what)
}

// Done fails if unread bytes remain.
func (r *FieldReader) Done() error {
	if r.offset != len(r.data) {
		return formatErrorf("section %s has %d trailing bytes", r.section, len(r.data)-r.offset)
	}
	return nil
}
