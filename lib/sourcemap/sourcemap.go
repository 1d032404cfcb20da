// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sourcemap relates tokens of an encoded stream to the source
// spans they were produced from. A map has exactly one entry per token,
// in token order; it is never needed to rebuild a tree.
package sourcemap

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/bureau-foundation/quenyan/lib/codec"
	"github.com/bureau-foundation/quenyan/lib/syntax"
)

// Version is written into every serialised map.
const Version = "1.0"

// DefaultMaxBytes bounds the decompressed size [Parse] accepts.
const DefaultMaxBytes = 256 << 20

// ErrCorrupt is wrapped by every decoding failure.
var ErrCorrupt = errors.New("corrupt source map")

// Entry maps one token to a source span. Node is the node kind, or
// "synthetic" for tokens without a node of their own.
type Entry struct {
	Token       int
	Key         string
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
	Node        string
}

type entryJSON struct {
	Token int    `json:"token"`
	Key   string `json:"key"`
	Start [2]int `json:"start"`
	End   [2]int `json:"end"`
	Node  string `json:"node"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Token: e.Token,
		Key:   e.Key,
		Start: [2]int{e.StartLine, e.StartColumn},
		End:   [2]int{e.EndLine, e.EndColumn},
		Node:  e.Node,
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Entry{
		Token:       raw.Token,
		Key:         raw.Key,
		StartLine:   raw.Start[0],
		StartColumn: raw.Start[1],
		EndLine:     raw.End[0],
		EndColumn:   raw.End[1],
		Node:        raw.Node,
	}
	return nil
}

// Contains reports whether the entry's span covers a position.
func (e Entry) Contains(line, column int) bool {
	if e.StartLine == 0 {
		return false
	}
	after := line > e.StartLine || line == e.StartLine && column >= e.StartColumn
	before := line < e.EndLine || line == e.EndLine && column < e.EndColumn
	return after && before
}

// Map is a complete source map.
type Map struct {
	Version           string  `json:"version"`
	SourceHash        string  `json:"source_hash"`
	DictionaryVersion string  `json:"dictionary_version"`
	EncoderVersion    string  `json:"encoder_version"`
	Mappings          []Entry `json:"mappings"`
}

// Summary is the inspector view of a map.
type Summary struct {
	Version           string `json:"version"`
	Entries           int    `json:"entries"`
	Synthetic         int    `json:"synthetic"`
	SourceHash        string `json:"source_hash"`
	DictionaryVersion string `json:"dictionary_version"`
	EncoderVersion    string `json:"encoder_version"`
	Lines             int    `json:"lines"`
}

// Summary returns aggregate counts.
func (m *Map) Summary() Summary {
	summary := Summary{
		Version:           m.Version,
		Entries:           len(m.Mappings),
		SourceHash:        m.SourceHash,
		DictionaryVersion: m.DictionaryVersion,
		EncoderVersion:    m.EncoderVersion,
	}
	for _, entry := range m.Mappings {
		if entry.Node == "synthetic" {
			summary.Synthetic++
		}
		summary.Lines = max(summary.Lines, entry.EndLine)
	}
	return summary
}

// Validate checks that entries are numbered 0..n-1 for a stream of
// tokenCount tokens.
func (m *Map) Validate(tokenCount int) error {
	if len(m.Mappings) != tokenCount {
		return fmt.Errorf("%w: %d entries for %d tokens", ErrCorrupt, len(m.Mappings), tokenCount)
	}
	for index, entry := range m.Mappings {
		if entry.Token != index {
			return fmt.Errorf("%w: entry %d is numbered %d", ErrCorrupt, index, entry.Token)
		}
	}
	return nil
}

// At returns the innermost entry covering a position: the covering
// entry emitted last.
func (m *Map) At(line, column int) (Entry, bool) {
	var found Entry
	ok := false
	for _, entry := range m.Mappings {
		if entry.Contains(line, column) {
			found, ok = entry, true
		}
	}
	return found, ok
}

// Marshal returns the zlib-compressed JSON form.
func (m *Map) Marshal() ([]byte, error) {
	encoded, err := codec.CanonicalJSON(m)
	if err != nil {
		return nil, fmt.Errorf("encoding source map: %w", err)
	}
	var buffer bytes.Buffer
	writer, err := zlib.NewWriterLevel(&buffer, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := writer.Write(encoded); err != nil {
		return nil, fmt.Errorf("compressing source map: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("compressing source map: %w", err)
	}
	return buffer.Bytes(), nil
}

// Parse decodes a map with the default size limit.
func Parse(data []byte) (*Map, error) {
	return ParseLimited(data, DefaultMaxBytes)
}

// ParseLimited decodes a map whose JSON form is at most maxBytes.
func ParseLimited(data []byte, maxBytes int64) (*Map, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer reader.Close()
	decoded, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if int64(len(decoded)) > maxBytes {
		return nil, fmt.Errorf("%w: decompressed size exceeds %d bytes", ErrCorrupt, maxBytes)
	}
	var m Map
	if err := codec.DecodeJSON(decoded, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if m.Version == "" {
		m.Version = Version
	}
	return &m, nil
}

// Builder records entries while a stream is encoded.
type Builder struct {
	entries []Entry
}

// Record adds the entry for the next token. A nil node records a
// synthetic entry with a zero span.
func (b *Builder) Record(token int, key string, node syntax.Node) {
	entry := Entry{Token: token, Key: key, Node: "synthetic"}
	if node != nil {
		span := node.Location()
		entry.StartLine, entry.StartColumn = span.Line, span.Column
		entry.EndLine, entry.EndColumn = span.EndLine, span.EndColumn
		entry.Node = node.Kind()
	}
	b.entries = append(b.entries, entry)
}

// Len is the number of recorded entries.
func (b *Builder) Len() int { return len(b.entries) }

// Build returns the map of everything recorded so far.
func (b *Builder) Build(sourceHash, dictionaryVersion, encoderVersion string) *Map {
	return &Map{
		Version:           Version,
		SourceHash:        sourceHash,
		DictionaryVersion: dictionaryVersion,
		EncoderVersion:    encoderVersion,
		Mappings:          append([]Entry(nil), b.entries...),
	}
}
