// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package payload

import (
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by every channel consistency failure.
var ErrMalformed = errors.New("malformed payload channels")

// Channel identifies one payload stream.
type Channel byte

const (
	Identifier Channel = 'I'
	String     Channel = 'S'
	Number     Channel = 'N'
	Count      Channel = 'C'
	Flag       Channel = 'F'
	// Structured carries constructs the dictionary could not express,
	// as source text.
	Structured Channel = 'R'
)

// Sectioned lists the channels stored in their own archive sections, in
// section order. The structured channel travels inside the payload
// record.
var Sectioned = []Channel{Identifier, String, Number, Count, Flag}

var allChannels = []Channel{Identifier, String, Number, Count, Flag, Structured}

// Channel bits recorded in the payload record. BitToken is always set.
const (
	BitToken      uint8 = 0x01
	BitIdentifier uint8 = 0x02
	BitString     uint8 = 0x04
	BitNumber     uint8 = 0x08
	BitCount      uint8 = 0x10
	BitFlag       uint8 = 0x20
)

// Bit returns the channel's presence bit, or 0 for the structured
// channel.
func (c Channel) Bit() uint8 {
	switch c {
	case Identifier:
		return BitIdentifier
	case String:
		return BitString
	case Number:
		return BitNumber
	case Count:
		return BitCount
	case Flag:
		return BitFlag
	}
	return 0
}

func (c Channel) String() string { return string(rune(c)) }

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case Identifier, String, Number, Count, Flag, Structured:
		return true
	}
	return false
}

func (c Channel) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid payload channel %q", byte(c))
	}
	return []byte{byte(c)}, nil
}

func (c *Channel) UnmarshalText(text []byte) error {
	if len(text) != 1 || !Channel(text[0]).Valid() {
		return fmt.Errorf("%w: unknown channel %q", ErrMalformed, text)
	}
	*c = Channel(text[0])
	return nil
}

// Entry records which token a payload value belongs to. Type names the
// node field the value came from ("id", "attr", "value").
type Entry struct {
	Token   int     `json:"token"`
	Channel Channel `json:"channel"`
	Type    string  `json:"type"`
}

// Fragment is the source text of a construct the dictionary could not
// express. Kind is "stmt" or "expr".
type Fragment struct {
	Kind   string `json:"kind" cbor:"kind"`
	Source string `json:"source" cbor:"source"`
}

// Channels holds a stream's payloads partitioned by channel. Entries
// lists every value in emission order; each channel slice holds that
// channel's values in the same relative order.
type Channels struct {
	Entries     []Entry
	Identifiers []string
	Strings     []string
	Numbers     []string
	Counts      []int
	Flags       []bool
	Fragments   []Fragment
}

func (c *Channels) add(token int, channel Channel, field string) {
	c.Entries = append(c.Entries, Entry{Token: token, Channel: channel, Type: field})
}

func (c *Channels) AddIdentifier(token int, field, value string) {
	c.add(token, Identifier, field)
	c.Identifiers = append(c.Identifiers, value)
}

func (c *Channels) AddString(token int, field, value string) {
	c.add(token, String, field)
	c.Strings = append(c.Strings, value)
}

func (c *Channels) AddNumber(token int, field, value string) {
	c.add(token, Number, field)
	c.Numbers = append(c.Numbers, value)
}

func (c *Channels) AddCount(token int, field string, value int) {
	c.add(token, Count, field)
	c.Counts = append(c.Counts, value)
}

func (c *Channels) AddFlag(token int, field string, value bool) {
	c.add(token, Flag, field)
	c.Flags = append(c.Flags, value)
}

func (c *Channels) AddFragment(token int, field string, value Fragment) {
	c.add(token, Structured, field)
	c.Fragments = append(c.Fragments, value)
}

// Len returns the number of values in a channel.
func (c *Channels) Len(channel Channel) int {
	switch channel {
	case Identifier:
		return len(c.Identifiers)
	case String:
		return len(c.Strings)
	case Number:
		return len(c.Numbers)
	case Count:
		return len(c.Counts)
	case Flag:
		return len(c.Flags)
	case Structured:
		return len(c.Fragments)
	}
	return 0
}

// Bits returns the channel presence bits.
func (c *Channels) Bits() uint8 {
	bits := BitToken
	for _, channel := range Sectioned {
		if c.Len(channel) > 0 {
			bits |= channel.Bit()
		}
	}
	return bits
}

// TextValues returns every identifier and string value, the inputs of
// the archive's string table.
func (c *Channels) TextValues() []string {
	values := make([]string, 0, len(c.Identifiers)+len(c.Strings))
	values = append(values, c.Identifiers...)
	return append(values, c.Strings...)
}

// Validate checks that entries and channel values agree and that every
// entry refers to one of tokenCount tokens. A parent's payloads may
// follow its children's, so entry tokens are not ordered.
func (c *Channels) Validate(tokenCount int) error {
	seen := make(map[Channel]int)
	for index, entry := range c.Entries {
		if !entry.Channel.Valid() {
			return fmt.Errorf("%w: entry %d has unknown channel %q", ErrMalformed, index, byte(entry.Channel))
		}
		if entry.Token < 0 || entry.Token >= tokenCount {
			return fmt.Errorf("%w: entry %d refers to token %d of %d", ErrMalformed, index, entry.Token, tokenCount)
		}
		seen[entry.Channel]++
	}
	for _, channel := range allChannels {
		if seen[channel] != c.Len(channel) {
			return fmt.Errorf("%w: %d %s entries for %d values", ErrMalformed, seen[channel], channel, c.Len(channel))
		}
	}
	for index, count := range c.Counts {
		if count < 0 {
			return fmt.Errorf("%w: count %d is negative (%d)", ErrMalformed, index, count)
		}
	}
	return nil
}

// Value is one payload resolved to its data.
type Value struct {
	Entry
	Data any
}

// Values returns every payload in emission order with its data.
// Channels must be valid.
func (c *Channels) Values() []Value {
	var next [256]int
	values := make([]Value, len(c.Entries))
	for index, entry := range c.Entries {
		position := next[entry.Channel]
		next[entry.Channel]++
		var data any
		switch entry.Channel {
		case Identifier:
			data = c.Identifiers[position]
		case String:
			data = c.Strings[position]
		case Number:
			data = c.Numbers[position]
		case Count:
			data = c.Counts[position]
		case Flag:
			data = c.Flags[position]
		case Structured:
			data = c.Fragments[position]
		}
		values[index] = Value{Entry: entry, Data: data}
	}
	return values
}

// Equal reports whether two channel sets hold the same payloads.
func Equal(a, b *Channels) bool {
	if len(a.Entries) != len(b.Entries) {
		return false
	}
	for index := range a.Entries {
		if a.Entries[index] != b.Entries[index] {
			return false
		}
	}
	return equalSlices(a.Identifiers, b.Identifiers) &&
		equalSlices(a.Strings, b.Strings) &&
		equalSlices(a.Numbers, b.Numbers) &&
		equalSlices(a.Counts, b.Counts) &&
		equalSlices(a.Flags, b.Flags) &&
		equalSlices(a.Fragments, b.Fragments)
}

func equalSlices[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for index := range a {
		if a[index] != b[index] {
			return false
		}
	}
	return true
}

// Cursor reads channel values in emission order.
type Cursor struct {
	channels *Channels
	next     [256]int
}

// NewCursor returns a cursor at the start of every channel.
func NewCursor(channels *Channels) *Cursor {
	return &Cursor{channels: channels}
}

func (r *Cursor) take(channel Channel) (int, error) {
	position := r.next[channel]
	if position >= r.channels.Len(channel) {
		return 0, fmt.Errorf("%w: %s channel exhausted after %d values", ErrMalformed, channel, position)
	}
	r.next[channel]++
	return position, nil
}

func (r *Cursor) Identifier() (string, error) {
	position, err := r.take(Identifier)
	if err != nil {
		return "", err
	}
	return r.channels.Identifiers[position], nil
}

func (r *Cursor) Text() (string, error) {
	position, err := r.take(String)
	if err != nil {
		return "", err
	}
	return r.channels.Strings[position], nil
}

func (r *Cursor) Number() (string, error) {
	position, err := r.take(Number)
	if err != nil {
		return "", err
	}
	return r.channels.Numbers[position], nil
}

func (r *Cursor) Count() (int, error) {
	position, err := r.take(Count)
	if err != nil {
		return 0, err
	}
	return r.channels.Counts[position], nil
}

func (r *Cursor) Flag() (bool, error) {
	position, err := r.take(Flag)
	if err != nil {
		return false, err
	}
	return r.channels.Flags[position], nil
}

func (r *Cursor) Fragment() (Fragment, error) {
	position, err := r.take(Structured)
	if err != nil {
		return Fragment{}, err
	}
	return r.channels.Fragments[position], nil
}

// Finish reports values left unread in any channel.
func (r *Cursor) Finish() error {
	for _, channel := range allChannels {
		if left := r.channels.Len(channel) - r.next[channel]; left > 0 {
			return fmt.Errorf("%w: %d unread %s values", ErrMalformed, left, channel)
		}
	}
	return nil
}
