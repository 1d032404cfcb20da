// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SectionID identifies the content of a section. Core sections occupy
// 0x0001-0x00FF and payload channel sections 0x0100-0x01FF.
type SectionID uint16

const (
	SectionStreamHeader SectionID = 0x0001
	SectionCompression  SectionID = 0x0002
	SectionTokens       SectionID = 0x0003
	SectionStringTable  SectionID = 0x0004
	SectionPayloads     SectionID = 0x0005
	SectionSourceMap    SectionID = 0x0006
	SectionMetadata     SectionID = 0x0007

	SectionIdentifiers SectionID = 0x0101
	SectionStrings     SectionID = 0x0102
	SectionIntegers    SectionID = 0x0103
	SectionCounts      SectionID = 0x0104
	SectionFlags       SectionID = 0x0105
)

// SectionHeaderSize is the size of a section header in bytes.
const SectionHeaderSize = 8

// StreamHeaderHasSourceMap is set on the stream header section when a
// source map section follows.
const StreamHeaderHasSourceMap uint16 = 0x1

var sectionNames = map[SectionID]string{
	SectionStreamHeader: "stream-header",
	SectionCompression:  "compression",
	SectionTokens:       "tokens",
	SectionStringTable:  "string-table",
	SectionPayloads:     "payloads",
	SectionSourceMap:    "source-map",
	SectionMetadata:     "metadata",
	SectionIdentifiers:  "identifiers",
	SectionStrings:      "strings",
	SectionIntegers:     "integers",
	SectionCounts:       "counts",
	SectionFlags:        "flags",
}

func (id SectionID) String() string {
	if name, ok := sectionNames[id]; ok {
		return name
	}
	return fmt.Sprintf("section-0x%04x", uint16(id))
}

// Reserved reports whether id falls in one of the reserved ranges.
func (id SectionID) Reserved() bool {
	return (id >= 0x0001 && id <= 0x00FF) || (id >= 0x0100 && id <= 0x01FF)
}

// Section is one typed block of a payload body.
type Section struct {
	ID      SectionID
	Flags   uint16
	Payload []byte
}

// EncodeSections concatenates sections into a payload body.
func EncodeSections(sections []Section) ([]byte, error) {
	size := 0
	for _, section := range sections {
		if uint64(len(section.Payload)) > math.MaxUint32 {
			return nil, formatErrorf("section %s payload of %d bytes exceeds the 32-bit length field",
				section.ID, len(section.Payload))
		}
		size += SectionHeaderSize + len(section.Payload)
	}
	output := make([]byte, 0, size)
	for _, section := range sections {
		output = binary.LittleEndian.AppendUint16(output, uint16(section.ID))
		output = binary.LittleEndian.AppendUint16(output, section.Flags)
		output = binary.LittleEndian.AppendUint32(output, uint32(len(section.Payload)))
		output = append(output, section.Payload...)
	}
	return output, nil
}

// DecodeSections splits a payload body into sections. Payload slices
// alias data.
func DecodeSections(data []byte) ([]Section, error) {
	var sections []Section
	offset := 0
	for offset < len(data) {
		if len(data)-offset < SectionHeaderSize {
			return nil, formatErrorf("truncated section header at offset %d", offset)
		}
		id := SectionID(binary.LittleEndian.Uint16(data[offset:]))
		flags := binary.LittleEndian.Uint16(data[offset+2:])
		length := uint64(binary.LittleEndian.Uint32(data[offset+4:]))
		offset += SectionHeaderSize
		if length > uint64(len(data)-offset) {
			return nil, formatErrorf("truncated section payload for %s (declared %d bytes, have %d)",
				id, length, len(data)-offset)
		}
		sections = append(sections, Section{
			ID:      id,
			Flags:   flags,
			Payload: data[offset : offset+int(length)],
		})
		offset += int(length)
	}
	return sections, nil
}

// ValidateSections rejects duplicate identifiers and identifiers outside
// the reserved ranges.
func ValidateSections(sections []Section) error {
	seen := make(map[SectionID]bool, len(sections))
	for _, section := range sections {
		if !section.ID.Reserved() {
			return formatErrorf("section identifier 0x%04x is outside the reserved ranges", uint16(section.ID))
		}
		if seen[section.ID] {
			return formatErrorf("duplicate section %s", section.ID)
		}
		seen[section.ID] = true
	}
	return nil
}

// SectionMap indexes validated sections by identifier.
type SectionMap map[SectionID]Section

// IndexSections validates sections and indexes them by identifier.
func IndexSections(sections []Section) (SectionMap, error) {
	if err := ValidateSections(sections); err != nil {
		return nil, err
	}
	index := make(SectionMap, len(sections))
	for _, section := range sections {
		index[section.ID] = section
	}
	return index, nil
}

// Require returns the section with id or a format error naming it.
func (m SectionMap) Require(id SectionID) (Section, error) {
	section, ok := m[id]
	if !ok {
		return Section{}, formatErrorf("missing required section %s", id)
	}
	return section, nil
}
