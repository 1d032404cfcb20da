// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/bureau-foundation/quenyan/lib/codec"
	"github.com/bureau-foundation/quenyan/lib/compress"
	"github.com/bureau-foundation/quenyan/lib/frame"
	"github.com/bureau-foundation/quenyan/lib/payload"
)

// hashTypeSHA256 is the only source hash type.
const hashTypeSHA256 = 0

// Extras is the optional compression extras object.
type Extras struct {
	ModelMode    string         `json:"model_mode,omitempty"`
	Optimisation *compress.Plan `json:"optimisation,omitempty"`
}

// contents is the decrypted payload independent of its layout.
type contents struct {
	dictionaryVersion     string
	encoderVersion        string
	sourceLanguage        string
	sourceLanguageVersion string
	sourceHash            string
	symbolCount           int

	backend     string
	model       []byte
	extras      *Extras
	compressed  []byte
	stringTable []byte

	record   []byte
	channels map[payload.Channel][]byte

	sourceMap []byte
	metadata  *Metadata
}

var channelSections = map[payload.Channel]frame.SectionID{
	payload.Identifier: frame.SectionIdentifiers,
	payload.String:     frame.SectionStrings,
	payload.Number:     frame.SectionIntegers,
	payload.Count:      frame.SectionCounts,
	payload.Flag:       frame.SectionFlags,
}

// features derives the feature set the contents require.
func (c *contents) features() frame.Features {
	var features frame.Features
	if c.extras != nil {
		features |= frame.FeatureExtras
		if c.extras.Optimisation != nil {
			features |= frame.FeatureOptimisation
		}
	}
	if c.backend == compress.NameFSE {
		features |= frame.FeatureFSE
	}
	if c.sourceMap != nil {
		features |= frame.FeatureSourceMap
	}
	return features
}

func encodeSourceHash(value string) ([]byte, error) {
	if value == "" {
		return make([]byte, 32), nil
	}
	digest, err := hex.DecodeString(value)
	if err != nil || len(digest) != 32 {
		return nil, fmt.Errorf("source hash %q is not a hex SHA-256 digest", value)
	}
	return digest, nil
}

func lengthPrefixed(id frame.SectionID, data []byte) (frame.Section, error) {
	var w frame.FieldWriter
	if err := w.Bytes32(data); err != nil {
		return frame.Section{}, err
	}
	return frame.Section{ID: id, Payload: w.Bytes()}, nil
}

// sections lays the contents out in section order.
func (c *contents) sections() ([]frame.Section, error) {
	var header frame.FieldWriter
	for _, field := range []string{c.dictionaryVersion, c.encoderVersion, c.sourceLanguage, c.sourceLanguageVersion} {
		if err := header.String16(field); err != nil {
			return nil, fmt.Errorf("encoding stream header: %w", err)
		}
	}
	header.Uint32(uint32(c.symbolCount))
	header.Uint8(hashTypeSHA256)
	digest, err := encodeSourceHash(c.sourceHash)
	if err != nil {
		return nil, err
	}
	header.Raw(digest)
	var headerFlags uint16
	if c.sourceMap != nil {
		headerFlags |= frame.StreamHeaderHasSourceMap
	}
	sections := []frame.Section{{ID: frame.SectionStreamHeader, Flags: headerFlags, Payload: header.Bytes()}}

	var compression frame.FieldWriter
	if err := compression.String16(c.backend); err != nil {
		return nil, fmt.Errorf("encoding compression section: %w", err)
	}
	compression.Uint32(uint32(c.symbolCount))
	if err := compression.Bytes32(c.model); err != nil {
		return nil, err
	}
	var extras []byte
	if c.extras != nil {
		if extras, err = codec.CanonicalJSON(c.extras); err != nil {
			return nil, fmt.Errorf("encoding compression extras: %w", err)
		}
	}
	if err := compression.Bytes32(extras); err != nil {
		return nil, err
	}
	sections = append(sections, frame.Section{ID: frame.SectionCompression, Payload: compression.Bytes()})

	type blob struct {
		id   frame.SectionID
		data []byte
	}
	prefixed := []blob{
		{frame.SectionTokens, c.compressed},
		{frame.SectionStringTable, c.stringTable},
		{frame.SectionPayloads, c.record},
	}
	for _, channel := range payload.Sectioned {
		if data, ok := c.channels[channel]; ok {
			prefixed = append(prefixed, blob{channelSections[channel], data})
		}
	}
	if c.sourceMap != nil {
		prefixed = append(prefixed, blob{frame.SectionSourceMap, c.sourceMap})
	}
	for _, entry := range prefixed {
		section, err := lengthPrefixed(entry.id, entry.data)
		if err != nil {
			return nil, err
		}
		sections = append(sections, section)
	}

	metadata, err := c.metadata.Canonical()
	if err != nil {
		return nil, fmt.Errorf("encoding metadata section: %w", err)
	}
	section, err := lengthPrefixed(frame.SectionMetadata, metadata)
	if err != nil {
		return nil, err
	}
	return append(sections, section), nil
}

func readPrefixed(section frame.Section, what string) ([]byte, error) {
	reader := frame.NewFieldReader(section)
	data, err := reader.Bytes32(what)
	if err != nil {
		return nil, err
	}
	if err := reader.Done(); err != nil {
		return nil, err
	}
	return data, nil
}

// parseSections reads the contents of a section body. Sections outside
// the known set are ignored.
func parseSections(body []byte, budget Budget) (*contents, error) {
	decoded, err := frame.DecodeSections(body)
	if err != nil {
		return nil, err
	}
	index, err := frame.IndexSections(decoded)
	if err != nil {
		return nil, err
	}
	c := &contents{channels: make(map[payload.Channel][]byte)}

	header, err := index.Require(frame.SectionStreamHeader)
	if err != nil {
		return nil, err
	}
	if err := c.readStreamHeader(header); err != nil {
		return nil, err
	}
	section, err := index.Require(frame.SectionCompression)
	if err != nil {
		return nil, err
	}
	if err := c.readCompression(section, budget); err != nil {
		return nil, err
	}

	required := []struct {
		id     frame.SectionID
		target *[]byte
		limit  func(int) error
	}{
		{frame.SectionTokens, &c.compressed, budget.compressed},
		{frame.SectionStringTable, &c.stringTable, budget.stringTable},
		{frame.SectionPayloads, &c.record, budget.payload},
	}
	for _, entry := range required {
		section, err := index.Require(entry.id)
		if err != nil {
			return nil, err
		}
		if err := entry.limit(len(section.Payload)); err != nil {
			return nil, err
		}
		if *entry.target, err = readPrefixed(section, entry.id.String()); err != nil {
			return nil, err
		}
	}

	for _, channel := range payload.Sectioned {
		section, ok := index[channelSections[channel]]
		if !ok {
			continue
		}
		if err := budget.payload(len(section.Payload)); err != nil {
			return nil, err
		}
		if c.channels[channel], err = readPrefixed(section, section.ID.String()); err != nil {
			return nil, err
		}
	}

	sourceMap, hasSourceMap := index[frame.SectionSourceMap]
	if hasSourceMap != (header.Flags&frame.StreamHeaderHasSourceMap != 0) {
		return nil, formatErrorf("source map section present is %t but stream header flag is %t",
			hasSourceMap, !hasSourceMap)
	}
	if hasSourceMap {
		if err := budget.payload(len(sourceMap.Payload)); err != nil {
			return nil, err
		}
		if c.sourceMap, err = readPrefixed(sourceMap, "source map"); err != nil {
			return nil, err
		}
	}

	if section, ok := index[frame.SectionMetadata]; ok {
		data, err := readPrefixed(section, "metadata")
		if err != nil {
			return nil, err
		}
		if c.metadata, err = ParseMetadata(data); err != nil {
			return nil, fmt.Errorf("metadata section: %w", err)
		}
	}
	return c, nil
}

func (c *contents) readStreamHeader(section frame.Section) error {
	reader := frame.NewFieldReader(section)
	targets := []struct {
		target *string
		what   string
	}{
		{&c.dictionaryVersion, "dictionary version"},
		{&c.encoderVersion, "encoder version"},
		{&c.sourceLanguage, "source language"},
		{&c.sourceLanguageVersion, "source language version"},
	}
	for _, field := range targets {
		value, err := reader.String16(field.what)
		if err != nil {
			return err
		}
		*field.target = value
	}
	count, err := reader.Uint32("symbol count")
	if err != nil {
		return err
	}
	c.symbolCount = int(count)
	hashType, err := reader.Uint8("hash type")
	if err != nil {
		return err
	}
	if hashType != hashTypeSHA256 {
		return formatErrorf("unsupported source hash type %d", hashType)
	}
	digest, err := reader.Raw(32, "source hash")
	if err != nil {
		return err
	}
	if !bytes.Equal(digest, make([]byte, 32)) {
		c.sourceHash = hex.EncodeToString(digest)
	}
	return reader.Done()
}

func (c *contents) readCompression(section frame.Section, budget Budget) error {
	reader := frame.NewFieldReader(section)
	backend, err := reader.String16("backend")
	if err != nil {
		return err
	}
	c.backend = backend
	count, err := reader.Uint32("symbol count")
	if err != nil {
		return err
	}
	if int(count) != c.symbolCount {
		return formatErrorf("symbol count %d in compression section differs from stream header %d", count, c.symbolCount)
	}
	if c.model, err = reader.Bytes32("model"); err != nil {
		return err
	}
	if err := budget.model(len(c.model)); err != nil {
		return err
	}
	extras, err := reader.Bytes32("extras")
	if err != nil {
		return err
	}
	if err := reader.Done(); err != nil {
		return err
	}
	if len(extras) > 0 {
		c.extras = &Extras{}
		if err := codec.DecodeStrictJSON(extras, c.extras); err != nil {
			return formatErrorf("malformed compression extras: %v", err)
		}
	}
	return nil
}
