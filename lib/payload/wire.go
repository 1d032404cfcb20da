// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package payload

import (
	"fmt"

	"github.com/bureau-foundation/quenyan/lib/codec"
	"github.com/bureau-foundation/quenyan/lib/stringtable"
)

// EncodingVersion tags payload records written by this package.
const EncodingVersion = "qyn1.1-multi-channel"

// Record is the payload record section: the entry index, the channel
// presence bits and the structured channel. The sectioned channels are
// stored separately.
type Record struct {
	EncodingVersion   string          `json:"encoding_version"`
	ChannelBits       uint8           `json:"channel_bits"`
	Entries           []Entry         `json:"entries"`
	StructuredChannel FragmentChannel `json:"structured_channel"`
}

// FragmentChannel is the structured channel as stored in the record.
type FragmentChannel struct {
	SymbolCount int        `json:"symbol_count"`
	Values      []Fragment `json:"values"`
}

// channelBody is the CBOR body of one channel section. Identifier and
// string channels store string table indices.
type channelBody[T any] struct {
	SymbolCount int `cbor:"symbol_count"`
	Values      []T `cbor:"values"`
}

// Encoded is the serialised form of a channel set.
type Encoded struct {
	// Record is the canonical JSON payload record.
	Record []byte
	// Sections holds the CBOR body of every non-empty sectioned
	// channel.
	Sections map[Channel][]byte
}

// Encode serialises channels against a string table that must contain
// every identifier and string value.
func Encode(channels *Channels, table *stringtable.Table) (*Encoded, error) {
	entries := channels.Entries
	if entries == nil {
		entries = []Entry{}
	}
	fragments := channels.Fragments
	if fragments == nil {
		fragments = []Fragment{}
	}
	record, err := codec.CanonicalJSON(Record{
		EncodingVersion:   EncodingVersion,
		ChannelBits:       channels.Bits(),
		Entries:           entries,
		StructuredChannel: FragmentChannel{SymbolCount: len(fragments), Values: fragments},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding payload record: %w", err)
	}

	encoded := &Encoded{Record: record, Sections: make(map[Channel][]byte)}
	for _, channel := range Sectioned {
		if channels.Len(channel) == 0 {
			continue
		}
		var body any
		switch channel {
		case Identifier:
			indices, err := indexAll(table, channels.Identifiers)
			if err != nil {
				return nil, err
			}
			body = channelBody[int]{SymbolCount: len(indices), Values: indices}
		case String:
			indices, err := indexAll(table, channels.Strings)
			if err != nil {
				return nil, err
			}
			body = channelBody[int]{SymbolCount: len(indices), Values: indices}
		case Number:
			body = channelBody[string]{SymbolCount: len(channels.Numbers), Values: channels.Numbers}
		case Count:
			body = channelBody[int]{SymbolCount: len(channels.Counts), Values: channels.Counts}
		case Flag:
			body = channelBody[bool]{SymbolCount: len(channels.Flags), Values: channels.Flags}
		}
		data, err := codec.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s channel: %w", channel, err)
		}
		encoded.Sections[channel] = data
	}
	return encoded, nil
}

func indexAll(table *stringtable.Table, values []string) ([]int, error) {
	indices := make([]int, len(values))
	for position, value := range values {
		index, ok := table.Index(value)
		if !ok {
			return nil, fmt.Errorf("payload value %q is missing from the string table", truncate(value))
		}
		indices[position] = index
	}
	return indices, nil
}

func truncate(value string) string {
	if len(value) > 32 {
		return value[:32] + "..."
	}
	return value
}

// Decode rebuilds channels from a payload record and its channel
// sections. A section must be present exactly when its channel bit is
// set.
func Decode(recordData []byte, sections map[Channel][]byte, table *stringtable.Table) (*Channels, error) {
	var record Record
	if err := codec.DecodeStrictJSON(recordData, &record); err != nil {
		return nil, fmt.Errorf("%w: payload record: %v", ErrMalformed, err)
	}
	if record.EncodingVersion != EncodingVersion {
		return nil, fmt.Errorf("%w: unsupported encoding version %q", ErrMalformed, record.EncodingVersion)
	}
	if record.ChannelBits&BitToken == 0 {
		return nil, fmt.Errorf("%w: token channel bit not set", ErrMalformed)
	}
	if record.StructuredChannel.SymbolCount != len(record.StructuredChannel.Values) {
		return nil, fmt.Errorf("%w: structured channel declares %d values, holds %d",
			ErrMalformed, record.StructuredChannel.SymbolCount, len(record.StructuredChannel.Values))
	}

	channels := &Channels{Entries: record.Entries, Fragments: record.StructuredChannel.Values}
	for _, channel := range Sectioned {
		data, present := sections[channel]
		wanted := record.ChannelBits&channel.Bit() != 0
		if present != wanted {
			return nil, fmt.Errorf("%w: %s channel bit is %t but section present is %t", ErrMalformed, channel, wanted, present)
		}
		if !present {
			continue
		}
		var err error
		switch channel {
		case Identifier:
			channels.Identifiers, err = decodeText(data, table)
		case String:
			channels.Strings, err = decodeText(data, table)
		case Number:
			channels.Numbers, err = decodeBody[string](data)
		case Count:
			channels.Counts, err = decodeBody[int](data)
		case Flag:
			channels.Flags, err = decodeBody[bool](data)
		}
		if err != nil {
			return nil, fmt.Errorf("%s channel: %w", channel, err)
		}
	}
	return channels, nil
}

func decodeBody[T any](data []byte) ([]T, error) {
	var body channelBody[T]
	if err := codec.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if body.SymbolCount != len(body.Values) {
		return nil, fmt.Errorf("%w: declares %d values, holds %d", ErrMalformed, body.SymbolCount, len(body.Values))
	}
	if len(body.Values) == 0 {
		return nil, fmt.Errorf("%w: empty channel section", ErrMalformed)
	}
	return body.Values, nil
}

func decodeText(data []byte, table *stringtable.Table) ([]string, error) {
	indices, err := decodeBody[int](data)
	if err != nil {
		return nil, err
	}
	values := make([]string, len(indices))
	for position, index := range indices {
		value, ok := table.Lookup(index)
		if !ok {
			return nil, fmt.Errorf("%w: string table index %d out of range", ErrMalformed, index)
		}
		values[position] = value
	}
	return values, nil
}
