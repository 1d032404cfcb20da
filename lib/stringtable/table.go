// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package stringtable stores the distinct strings of an archive once.
// Payload channels refer to strings by index; the table itself is
// ordered by descending frequency, prefix-compressed against the
// previous entry, and its suffix bytes are grouped by a coarse content
// class and entropy coded with rANS per group.
//
// Strings are byte sequences. Values need not be valid UTF-8, so bytes
// literals share the table with text.
package stringtable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bureau-foundation/quenyan/lib/compress"
)

// formatVersion is the first varint of every encoded table.
const formatVersion = 1

// DefaultMaxBytes bounds the total decoded suffix bytes [Parse]
// accepts.
const DefaultMaxBytes = 64 << 20

// ErrCorrupt is wrapped by every decoding failure.
var ErrCorrupt = errors.New("corrupt string table")

// Class is a coarse content category. Suffixes of one class are coded
// together because they share a byte distribution.
type Class uint8

const (
	ClassGeneric Class = iota
	ClassIdentifier
	ClassPath
	ClassProse
	ClassStructured
	classCount
)

var classNames = [...]string{"generic", "identifier", "path", "prose", "structured"}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprintf("class(%d)", c)
}

// Classify assigns a string its content class.
func Classify(value string) Class {
	text := strings.TrimSpace(value)
	if text == "" {
		return ClassGeneric
	}
	if isIdentifierLike(text) {
		return ClassIdentifier
	}
	if strings.Contains(text, "://") || strings.ContainsAny(text, `/\`) {
		return ClassPath
	}
	lowered := strings.ToLower(text)
	if strings.HasPrefix(lowered, "{") || strings.HasPrefix(lowered, "[") {
		return ClassStructured
	}
	for _, verb := range []string{"select", "insert", "update", "delete", "with"} {
		if strings.HasPrefix(lowered, verb) {
			return ClassStructured
		}
	}
	var space, punctuation bool
	for _, r := range text {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			space = true
		case !isAlphanumeric(r):
			punctuation = true
		}
	}
	if space && punctuation {
		return ClassProse
	}
	return ClassGeneric
}

func isIdentifierLike(text string) bool {
	for index := 0; index < len(text); index++ {
		c := text[index]
		if !(c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}

func isAlphanumeric(r rune) bool {
	return r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r > 0x7f
}

// LengthBucket buckets a string's byte length: 0 for up to 8 bytes, 1
// up to 32, 2 up to 128 and 3 beyond.
func LengthBucket(value string) int {
	switch n := len(value); {
	case n <= 8:
		return 0
	case n <= 32:
		return 1
	case n <= 128:
		return 2
	default:
		return 3
	}
}

// Entry is one stored string.
type Entry struct {
	Value        string
	Frequency    int
	PrefixLength int
	Class        Class
	LengthBucket int
}

// Table is an immutable string table.
type Table struct {
	entries []Entry
	index   map[string]int
}

// Build returns a table holding every distinct value, most frequent
// first, ties broken by byte order.
func Build(values []string) *Table {
	counts := make(map[string]int)
	for _, value := range values {
		counts[value]++
	}
	ordered := make([]string, 0, len(counts))
	for value := range counts {
		ordered = append(ordered, value)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		return a < b
	})
	entries := make([]Entry, len(ordered))
	previous := ""
	for position, value := range ordered {
		entries[position] = Entry{
			Value:        value,
			Frequency:    counts[value],
			PrefixLength: commonPrefix(previous, value),
			Class:        Classify(value),
			LengthBucket: LengthBucket(value),
		}
		previous = value
	}
	return newTable(entries)
}

func newTable(entries []Entry) *Table {
	index := make(map[string]int, len(entries))
	for position, entry := range entries {
		if _, exists := index[entry.Value]; !exists {
			index[entry.Value] = position
		}
	}
	return &Table{entries: entries, index: index}
}

func commonPrefix(a, b string) int {
	limit := min(len(a), len(b))
	for index := 0; index < limit; index++ {
		if a[index] != b[index] {
			return index
		}
	}
	return limit
}

// Len is the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// Index returns the position of value.
func (t *Table) Index(value string) (int, bool) {
	position, ok := t.index[value]
	return position, ok
}

// Lookup returns the string at position.
func (t *Table) Lookup(position int) (string, bool) {
	if position < 0 || position >= len(t.entries) {
		return "", false
	}
	return t.entries[position].Value, true
}

// Entries returns a copy of the entries in table order.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// TotalBytes is the summed length of every stored string.
func (t *Table) TotalBytes() int {
	total := 0
	for _, entry := range t.entries {
		total += len(entry.Value)
	}
	return total
}

// MarshalBinary encodes the table:
//
//	version | count | count × (prefix, suffix length, frequency, class, bucket)
//	| groups | groups × (class, byte count, model length, model JSON,
//	  data length, rANS data)
//
// Every integer is an unsigned varint. Groups appear in class order and
// only for classes with at least one suffix byte.
func (t *Table) MarshalBinary() ([]byte, error) {
	var out []byte
	out = binary.AppendUvarint(out, formatVersion)
	out = binary.AppendUvarint(out, uint64(len(t.entries)))

	grouped := make([][]int, classCount)
	for _, entry := range t.entries {
		suffix := entry.Value[entry.PrefixLength:]
		out = binary.AppendUvarint(out, uint64(entry.PrefixLength))
		out = binary.AppendUvarint(out, uint64(len(suffix)))
		out = binary.AppendUvarint(out, uint64(entry.Frequency))
		out = binary.AppendUvarint(out, uint64(entry.Class))
		out = binary.AppendUvarint(out, uint64(entry.LengthBucket))
		symbols := grouped[entry.Class]
		for index := 0; index < len(suffix); index++ {
			symbols = append(symbols, int(suffix[index]))
		}
		grouped[entry.Class] = symbols
	}

	groups := 0
	for _, symbols := range grouped {
		if len(symbols) > 0 {
			groups++
		}
	}
	out = binary.AppendUvarint(out, uint64(groups))

	backend, err := compress.Lookup(compress.NameRANS, compress.Options{})
	if err != nil {
		return nil, err
	}
	for class, symbols := range grouped {
		if len(symbols) == 0 {
			continue
		}
		model, err := backend.BuildModel(symbols, 256)
		if err != nil {
			return nil, fmt.Errorf("modelling %s strings: %w", Class(class), err)
		}
		encoded, err := backend.Encode(symbols, model)
		if err != nil {
			return nil, fmt.Errorf("coding %s strings: %w", Class(class), err)
		}
		modelJSON, err := model.Canonical()
		if err != nil {
			return nil, fmt.Errorf("encoding %s model: %w", Class(class), err)
		}
		out = binary.AppendUvarint(out, uint64(class))
		out = binary.AppendUvarint(out, uint64(len(symbols)))
		out = binary.AppendUvarint(out, uint64(len(modelJSON)))
		out = append(out, modelJSON...)
		out = binary.AppendUvarint(out, uint64(len(encoded)))
		out = append(out, encoded...)
	}
	return out, nil
}

// Parse decodes a table with the default size limit.
func Parse(data []byte) (*Table, error) {
	return ParseLimited(data, DefaultMaxBytes)
}

// ParseLimited decodes a table whose suffix bytes total at most
// maxBytes. An empty input is an empty table.
func ParseLimited(data []byte, maxBytes int) (*Table, error) {
	if len(data) == 0 {
		return newTable(nil), nil
	}
	r := &reader{data: data}
	if v := r.uvarint("version"); r.err == nil && v != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	count := r.uvarint("entry count")
	// Each entry takes at least five bytes of metadata.
	if r.err == nil && count > uint64(len(data)/5) {
		return nil, fmt.Errorf("%w: entry count %d exceeds input size", ErrCorrupt, count)
	}
	if r.err != nil {
		return nil, r.err
	}

	type meta struct {
		prefix, suffix, frequency, bucket int
		class                             Class
	}
	metas := make([]meta, count)
	expected := make([]int, classCount)
	total := 0
	for index := range metas {
		m := meta{
			prefix:    r.bounded("prefix length", maxBytes),
			suffix:    r.bounded("suffix length", maxBytes),
			frequency: r.bounded("frequency", 1<<30),
		}
		class := r.uvarint("class")
		m.bucket = r.bounded("length bucket", 3)
		if r.err != nil {
			return nil, r.err
		}
		if class >= uint64(classCount) {
			return nil, fmt.Errorf("%w: entry %d has class %d", ErrCorrupt, index, class)
		}
		m.class = Class(class)
		total += m.suffix
		if total > maxBytes {
			return nil, fmt.Errorf("%w: suffix bytes exceed limit of %d", ErrCorrupt, maxBytes)
		}
		expected[m.class] += m.suffix
		metas[index] = m
	}

	groups := r.bounded("group count", int(classCount))
	if r.err != nil {
		return nil, r.err
	}
	backend, err := compress.Lookup(compress.NameRANS, compress.Options{})
	if err != nil {
		return nil, err
	}
	streams := make([][]int, classCount)
	seen := make([]bool, classCount)
	for range groups {
		class := r.bounded("group class", int(classCount)-1)
		byteCount := r.bounded("group byte count", maxBytes)
		modelJSON := r.bytes("group model")
		encoded := r.bytes("group data")
		if r.err != nil {
			return nil, r.err
		}
		if seen[class] {
			return nil, fmt.Errorf("%w: duplicate %s group", ErrCorrupt, Class(class))
		}
		seen[class] = true
		if byteCount != expected[class] {
			return nil, fmt.Errorf("%w: %s group holds %d bytes, entries need %d", ErrCorrupt, Class(class), byteCount, expected[class])
		}
		model, err := compress.ParseModel(modelJSON)
		if err != nil {
			return nil, fmt.Errorf("%w: %s group model: %v", ErrCorrupt, Class(class), err)
		}
		if len(model.Frequencies) != 256 {
			return nil, fmt.Errorf("%w: %s group model covers %d symbols", ErrCorrupt, Class(class), len(model.Frequencies))
		}
		symbols, err := backend.Decode(encoded, model, byteCount)
		if err != nil {
			return nil, fmt.Errorf("%w: %s group: %v", ErrCorrupt, Class(class), err)
		}
		streams[class] = symbols
	}
	if r.pos != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(data)-r.pos)
	}
	for class, need := range expected {
		if need > 0 && !seen[class] {
			return nil, fmt.Errorf("%w: missing %s group", ErrCorrupt, Class(class))
		}
	}

	entries := make([]Entry, len(metas))
	positions := make([]int, classCount)
	previous := ""
	var builder strings.Builder
	for index, m := range metas {
		if m.prefix > len(previous) {
			return nil, fmt.Errorf("%w: entry %d prefix %d exceeds previous length %d", ErrCorrupt, index, m.prefix, len(previous))
		}
		stream := streams[m.class]
		start := positions[m.class]
		builder.Reset()
		builder.Grow(m.prefix + m.suffix)
		builder.WriteString(previous[:m.prefix])
		for _, symbol := range stream[start : start+m.suffix] {
			builder.WriteByte(byte(symbol))
		}
		positions[m.class] = start + m.suffix
		value := builder.String()
		entries[index] = Entry{
			Value:        value,
			Frequency:    m.frequency,
			PrefixLength: m.prefix,
			Class:        m.class,
			LengthBucket: m.bucket,
		}
		previous = value
	}
	return newTable(entries), nil
}

// reader decodes varints and length-prefixed blobs, latching the first
// error.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) uvarint(field string) uint64 {
	if r.err != nil {
		return 0
	}
	value, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		r.err = fmt.Errorf("%w: malformed %s", ErrCorrupt, field)
		return 0
	}
	r.pos += n
	return value
}

func (r *reader) bounded(field string, limit int) int {
	value := r.uvarint(field)
	if r.err == nil && value > uint64(limit) {
		r.err = fmt.Errorf("%w: %s %d exceeds %d", ErrCorrupt, field, value, limit)
		return 0
	}
	return int(value)
}

func (r *reader) bytes(field string) []byte {
	length := r.uvarint(field + " length")
	if r.err != nil {
		return nil
	}
	if length > uint64(len(r.data)-r.pos) {
		r.err = fmt.Errorf("%w: %s truncated", ErrCorrupt, field)
		return nil
	}
	blob := r.data[r.pos : r.pos+int(length)]
	r.pos += int(length)
	return blob
}
