// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/quenyan/lib/codec"
	"github.com/bureau-foundation/quenyan/lib/payload"
)

// Layout selects how the payload is stored.
type Layout int

const (
	// LayoutSections is the current layout: a wrapper frame around a
	// payload frame holding sections.
	LayoutSections Layout = iota
	// LayoutJSONBody is a wrapper frame around a payload frame whose
	// body is a single JSON document. Written by 1.0 and 1.1 tools.
	LayoutJSONBody
	// LayoutJSONWrapper is an unframed JSON wrapper whose plaintext is
	// the JSON document itself. The wrapper carries no metadata and the
	// ciphertext is bound to [LegacyAssociatedData].
	LayoutJSONWrapper
)

func (l Layout) String() string {
	switch l {
	case LayoutSections:
		return "sections"
	case LayoutJSONBody:
		return "json-body"
	case LayoutJSONWrapper:
		return "json-wrapper"
	}
	return fmt.Sprintf("layout(%d)", int(l))
}

// legacyBody is the JSON payload document of the older layouts.
type legacyBody struct {
	Version               string            `json:"version"`
	DictionaryVersion     string            `json:"dictionary_version"`
	EncoderVersion        string            `json:"encoder_version"`
	SourceLanguage        string            `json:"source_language"`
	SourceLanguageVersion string            `json:"source_language_version"`
	SourceHash            string            `json:"source_hash"`
	Compression           legacyCompression `json:"compression"`
	CompressedTokens      []byte            `json:"compressed_tokens"`
	StringTable           []byte            `json:"string_table"`
	Payloads              json.RawMessage   `json:"payloads"`
	PayloadChannels       map[string][]byte `json:"payload_channels,omitempty"`
	SourceMap             []byte            `json:"source_map,omitempty"`
	Metadata              *Metadata         `json:"metadata,omitempty"`
}

type legacyCompression struct {
	Backend     string          `json:"backend"`
	Model       json.RawMessage `json:"model"`
	SymbolCount int             `json:"symbol_count"`
	Extras      *Extras         `json:"extras,omitempty"`
}

func (c *contents) legacyJSON(packageVersion string) ([]byte, error) {
	body := legacyBody{
		Version:               packageVersion,
		DictionaryVersion:     c.dictionaryVersion,
		EncoderVersion:        c.encoderVersion,
		SourceLanguage:        c.sourceLanguage,
		SourceLanguageVersion: c.sourceLanguageVersion,
		SourceHash:            c.sourceHash,
		Compression: legacyCompression{
			Backend:     c.backend,
			Model:       c.model,
			SymbolCount: c.symbolCount,
			Extras:      c.extras,
		},
		CompressedTokens: c.compressed,
		StringTable:      c.stringTable,
		Payloads:         c.record,
		SourceMap:        c.sourceMap,
		Metadata:         c.metadata,
	}
	if len(c.channels) > 0 {
		body.PayloadChannels = make(map[string][]byte, len(c.channels))
		for channel, data := range c.channels {
			body.PayloadChannels[channel.String()] = data
		}
	}
	encoded, err := codec.CanonicalJSON(body)
	if err != nil {
		return nil, fmt.Errorf("encoding legacy payload: %w", err)
	}
	return encoded, nil
}

// parseLegacy reads a JSON payload document. It returns the version the
// document declares alongside its contents.
func parseLegacy(data []byte, budget Budget) (*contents, string, error) {
	var body legacyBody
	if err := codec.DecodeStrictJSON(data, &body); err != nil {
		return nil, "", formatErrorf("malformed legacy payload: %v", err)
	}
	if body.Version == "" {
		return nil, "", formatErrorf("legacy payload has no version")
	}
	if len(body.Compression.Model) == 0 || len(body.Payloads) == 0 {
		return nil, "", formatErrorf("legacy payload is missing its model or payload record")
	}
	checks := []error{
		budget.symbols(body.Compression.SymbolCount),
		budget.model(len(body.Compression.Model)),
		budget.compressed(len(body.CompressedTokens)),
		budget.stringTable(len(body.StringTable)),
		budget.payload(len(body.Payloads)),
	}
	for _, err := range checks {
		if err != nil {
			return nil, "", err
		}
	}
	if body.Compression.SymbolCount < 0 {
		return nil, "", formatErrorf("negative symbol count %d", body.Compression.SymbolCount)
	}
	if body.Metadata != nil {
		if err := body.Metadata.Validate(); err != nil {
			return nil, "", err
		}
	}

	c := &contents{
		dictionaryVersion:     body.DictionaryVersion,
		encoderVersion:        body.EncoderVersion,
		sourceLanguage:        body.SourceLanguage,
		sourceLanguageVersion: body.SourceLanguageVersion,
		sourceHash:            body.SourceHash,
		symbolCount:           body.Compression.SymbolCount,
		backend:               body.Compression.Backend,
		model:                 body.Compression.Model,
		extras:                body.Compression.Extras,
		compressed:            body.CompressedTokens,
		stringTable:           body.StringTable,
		record:                body.Payloads,
		channels:              make(map[payload.Channel][]byte, len(body.PayloadChannels)),
		sourceMap:             body.SourceMap,
		metadata:              body.Metadata,
	}
	for name, data := range body.PayloadChannels {
		if len(name) != 1 || payload.Channel(name[0]).Bit() == 0 {
			return nil, "", formatErrorf("unknown payload channel %q", name)
		}
		if err := budget.payload(len(data)); err != nil {
			return nil, "", err
		}
		c.channels[payload.Channel(name[0])] = data
	}
	return c, body.Version, nil
}
