// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package payload

import (
	"errors"
	"testing"

	"github.com/bureau-foundation/quenyan/lib/stringtable"
)

func sample() *Channels {
	channels := &Channels{}
	channels.AddCount(0, "body", 2)
	channels.AddIdentifier(1, "name", "f")
	channels.AddFlag(1, "returns", false)
	channels.AddIdentifier(2, "arg", "x")
	channels.AddString(3, "value", "\x00raw\xff")
	channels.AddNumber(4, "value", "12345678901234567890")
	channels.AddFragment(5, "stmt", Fragment{Kind: "stmt", Source: "match x:\n    case 1: pass"})
	return channels
}

func TestEncodeDecode(t *testing.T) {
	channels := sample()
	if err := channels.Validate(6); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if bits := channels.Bits(); bits != BitToken|BitIdentifier|BitString|BitNumber|BitCount|BitFlag {
		t.Errorf("Bits = %#x", bits)
	}

	table := stringtable.Build(channels.TextValues())
	encoded, err := Encode(channels, table)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(encoded.Sections) != 5 {
		t.Errorf("encoded %d channel sections, want 5", len(encoded.Sections))
	}
	decoded, err := Decode(encoded.Record, encoded.Sections, table)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !Equal(channels, decoded) {
		t.Errorf("decoded channels differ:\n got %+v\nwant %+v", decoded, channels)
	}

	again, err := Encode(decoded, table)
	if err != nil {
		t.Fatal(err)
	}
	if string(again.Record) != string(encoded.Record) {
		t.Error("payload record is not deterministic")
	}
	for channel, data := range encoded.Sections {
		if string(again.Sections[channel]) != string(data) {
			t.Errorf("%s section is not deterministic", channel)
		}
	}
}

func TestDecodeRejectsInconsistentSections(t *testing.T) {
	channels := sample()
	table := stringtable.Build(channels.TextValues())
	encoded, err := Encode(channels, table)
	if err != nil {
		t.Fatal(err)
	}

	missing := make(map[Channel][]byte)
	for channel, data := range encoded.Sections {
		if channel != Count {
			missing[channel] = data
		}
	}
	if _, err := Decode(encoded.Record, missing, table); !errors.Is(err, ErrMalformed) {
		t.Errorf("missing section: error = %v", err)
	}

	if _, err := Decode(encoded.Record, encoded.Sections, stringtable.Build([]string{"f"})); !errors.Is(err, ErrMalformed) {
		t.Errorf("short string table: error = %v", err)
	}

	if _, err := Decode([]byte(`{"encoding_version":"qyn1.0"}`), nil, table); !errors.Is(err, ErrMalformed) {
		t.Errorf("old encoding version: error = %v", err)
	}
	if _, err := Decode([]byte(`{"encoding_version":"qyn1.1-multi-channel","channel_bits":1,"entries":[{"token":0,"channel":"Q","type":"x"}],"structured_channel":{"symbol_count":0,"values":[]}}`), nil, table); !errors.Is(err, ErrMalformed) {
		t.Errorf("unknown channel: error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	channels := sample()
	if err := channels.Validate(5); !errors.Is(err, ErrMalformed) {
		t.Errorf("token beyond stream: error = %v", err)
	}
	channels = sample()
	channels.Counts = append(channels.Counts, 3)
	if err := channels.Validate(6); !errors.Is(err, ErrMalformed) {
		t.Errorf("value without entry: error = %v", err)
	}
	channels = sample()
	channels.Entries[1].Token = -1
	if err := channels.Validate(6); !errors.Is(err, ErrMalformed) {
		t.Errorf("negative token: error = %v", err)
	}
	channels = sample()
	channels.Entries[1].Channel = 'Z'
	if err := channels.Validate(6); !errors.Is(err, ErrMalformed) {
		t.Errorf("unknown channel: error = %v", err)
	}
}

func TestCursor(t *testing.T) {
	channels := sample()
	cursor := NewCursor(channels)
	if name, err := cursor.Identifier(); err != nil || name != "f" {
		t.Errorf("Identifier = %q, %v", name, err)
	}
	if err := cursor.Finish(); !errors.Is(err, ErrMalformed) {
		t.Errorf("Finish with unread values: %v", err)
	}
	if _, err := cursor.Identifier(); err != nil {
		t.Fatal(err)
	}
	if _, err := cursor.Identifier(); !errors.Is(err, ErrMalformed) {
		t.Errorf("exhausted Identifier: %v", err)
	}

	values := channels.Values()
	if len(values) != len(channels.Entries) || values[5].Data != "12345678901234567890" || values[6].Channel != Structured {
		t.Errorf("Values = %+v", values)
	}
}
