// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

// channelSample mirrors the shape of a payload channel section.
type channelSample struct {
	Values []string `cbor:"values"`
	Count  int      `cbor:"count"`
}

// dualSample uses json tags, which serve both encodings.
type dualSample struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := channelSample{Values: []string{"alpha", "βeta", ""}, Count: 3}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded channelSample
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Count != 3 || len(decoded.Values) != 3 || decoded.Values[1] != "βeta" {
		t.Errorf("roundtrip mismatch: got %+v", decoded)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"zeta": 1, "alpha": []int{3, 2, 1}, "mid": "x"}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 20 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("CBOR encoding is not deterministic")
		}
	}
}

func TestUnmarshalAnyUsesStringMaps(t *testing.T) {
	data, err := Marshal(dualSample{Version: 2, Name: "qyn"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := decoded.(map[string]any); !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	data, err := Marshal(1)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var value int
	if err := Unmarshal(append(data, 0x01), &value); err == nil {
		t.Error("Unmarshal accepted trailing bytes")
	}
}

// --- Canonical JSON ---

func TestCanonicalJSONSortsKeys(t *testing.T) {
	type record struct {
		Zeta  string         `json:"zeta"`
		Alpha int            `json:"alpha"`
		Inner map[string]any `json:"inner"`
	}
	data, err := CanonicalJSON(record{Zeta: "<z>", Alpha: 1, Inner: map[string]any{"b": 2, "a": 1.5}})
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `{"alpha":1,"inner":{"a":1.5,"b":2},"zeta":"<z>"}`
	if string(data) != want {
		t.Errorf("CanonicalJSON = %s, want %s", data, want)
	}
}

func TestCanonicalJSONPreservesLargeIntegers(t *testing.T) {
	data, err := CanonicalJSON(map[string]any{"n": uint64(18446744073709551615)})
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	if string(data) != `{"n":18446744073709551615}` {
		t.Errorf("CanonicalJSON = %s", data)
	}
}

func TestDecodeJSONRejectsTrailing(t *testing.T) {
	var value map[string]any
	if err := DecodeJSON([]byte(`{"a":1}`), &value); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	for _, bad := range []string{`{"a":1} {}`, `{"a":1}]`, `{"a":1}x`} {
		if err := DecodeJSON([]byte(bad), &value); err == nil {
			t.Errorf("DecodeJSON(%q) accepted trailing content", bad)
		}
	}
}
