// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/bureau-foundation/quenyan/lib/version"
)

// Frame magics.
var (
	WrapperMagic = [4]byte{'Q', 'Y', 'N', '1'}
	PayloadMagic = [4]byte{'M', 'C', 'S', 0x00}
)

const (
	// HeaderSize is the fixed size of a frame header in bytes.
	HeaderSize = 16

	// TrailerSize is the size of the CRC trailer.
	TrailerSize = 4
)

// Flags are independent header bits. Wrapper and payload frames assign
// their own meanings to the same bit positions.
type Flags uint16

const (
	// FlagEncrypted marks a wrapper whose body holds an encryption
	// envelope.
	FlagEncrypted Flags = 1 << 0

	// FlagMetadataAuthenticated marks a wrapper whose metadata is bound
	// to the ciphertext as associated data.
	FlagMetadataAuthenticated Flags = 1 << 1

	// FlagCanonicalSections marks a payload whose body is a section
	// sequence. Payloads without it carry the legacy JSON body.
	FlagCanonicalSections Flags = 1 << 0
)

const (
	knownWrapperFlags = FlagEncrypted | FlagMetadataAuthenticated
	knownPayloadFlags = FlagCanonicalSections
)

// FormatError reports a structurally invalid frame or section stream.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "format error: " + e.Reason
}

func formatErrorf(format string, args ...any) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// Header is the decoded fixed-size frame header.
type Header struct {
	Magic      [4]byte
	Version    version.Version
	Flags      Flags
	Features   Features
	BodyLength uint32
}

// Encode produces a complete frame for body. The header's BodyLength
// is computed from body and any value in header is ignored.
func Encode(header Header, body []byte) ([]byte, error) {
	v := header.Version
	if v.Major < 0 || v.Major > math.MaxUint8 || v.Minor < 0 || v.Minor > math.MaxUint8 || v.Patch < 0 || v.Patch > math.MaxUint16 {
		return nil, formatErrorf("version %s does not fit the frame header", v)
	}
	if uint64(len(body)) > math.MaxUint32 {
		return nil, formatErrorf("body of %d bytes exceeds the 32-bit length field", len(body))
	}
	if unknown := header.Features.Unknown(); unknown != 0 {
		return nil, formatErrorf("unknown feature bits 0x%04x", uint16(unknown))
	}

	output := make([]byte, HeaderSize, HeaderSize+len(body)+TrailerSize)
	copy(output[0:4], header.Magic[:])
	output[4] = byte(v.Major)
	output[5] = byte(v.Minor)
	binary.BigEndian.PutUint16(output[6:8], uint16(v.Patch))
	binary.BigEndian.PutUint32(output[8:12], uint32(header.Flags)<<16|uint32(header.Features))
	binary.BigEndian.PutUint32(output[12:16], uint32(len(body)))
	output = append(output, body...)
	output = binary.BigEndian.AppendUint32(output, crc32.ChecksumIEEE(body))
	return output, nil
}

// Decode parses one frame from the front of data. It checks the magic,
// the declared length and the CRC, and returns the header, the body and
// whatever bytes follow the frame. Feature and flag bits are returned as
// found; [Validate] rejects the ones this build does not understand.
func Decode(data []byte, expectedMagic [4]byte) (Header, []byte, []byte, error) {
	if len(data) < HeaderSize+TrailerSize {
		return Header{}, nil, nil, formatErrorf("data too small to contain a frame (%d bytes)", len(data))
	}
	var header Header
	copy(header.Magic[:], data[0:4])
	if header.Magic != expectedMagic {
		return Header{}, nil, nil, formatErrorf("invalid magic %q, expected %q", header.Magic[:], expectedMagic[:])
	}
	header.Version = version.Version{
		Major: int(data[4]),
		Minor: int(data[5]),
		Patch: int(binary.BigEndian.Uint16(data[6:8])),
	}
	word := binary.BigEndian.Uint32(data[8:12])
	header.Features = Features(word & 0xFFFF)
	header.Flags = Flags(word >> 16)
	header.BodyLength = binary.BigEndian.Uint32(data[12:16])

	end := uint64(HeaderSize) + uint64(header.BodyLength)
	if end+TrailerSize > uint64(len(data)) {
		return Header{}, nil, nil, formatErrorf("frame truncated before CRC (declared body %d bytes, have %d)",
			header.BodyLength, len(data)-HeaderSize)
	}
	body := data[HeaderSize:end]
	stored := binary.BigEndian.Uint32(data[end : end+TrailerSize])
	if computed := crc32.ChecksumIEEE(body); computed != stored {
		return Header{}, nil, nil, formatErrorf("frame CRC mismatch (stored %08x, computed %08x)", stored, computed)
	}
	return header, body, data[end+TrailerSize:], nil
}

// Validate checks a decoded header against the frame kind identified by
// expectedMagic: the magic must match and no unknown feature or flag
// bits may be set.
func Validate(header Header, expectedMagic [4]byte) (Header, error) {
	if header.Magic != expectedMagic {
		return header, formatErrorf("invalid magic %q, expected %q", header.Magic[:], expectedMagic[:])
	}
	if unknown := header.Features.Unknown(); unknown != 0 {
		return header, formatErrorf("unknown feature bits 0x%04x", uint16(unknown))
	}
	known := knownPayloadFlags
	if expectedMagic == WrapperMagic {
		known = knownWrapperFlags
	}
	if extra := header.Flags &^ known; extra != 0 {
		return header, formatErrorf("unknown header flags 0x%04x", uint16(extra))
	}
	return header, nil
}

// HasMagic reports whether data begins with magic.
func HasMagic(data []byte, magic [4]byte) bool {
	return bytes.HasPrefix(data, magic[:])
}
