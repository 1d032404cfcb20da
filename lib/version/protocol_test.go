// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"errors"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Version
		wantErr bool
	}{
		{"1.2.0", Version{1, 2, 0}, false},
		{"10.0.3", Version{10, 0, 3}, false},
		{"1.2", Version{}, true},
		{"1.2.x", Version{}, true},
		{"-1.0.0", Version{}, true},
		{"", Version{}, true},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			got, err := Parse(test.input)
			if test.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %v, want error", test.input, got)
				}
				var versionError *Error
				if !errors.As(err, &versionError) {
					t.Errorf("error type = %T, want *Error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", test.input, err)
			}
			if got != test.want {
				t.Errorf("Parse(%q) = %v, want %v", test.input, got, test.want)
			}
		})
	}
}

func TestParseAnyShorthand(t *testing.T) {
	got, err := ParseAny("1.1")
	if err != nil {
		t.Fatalf("ParseAny: %v", err)
	}
	if got != (Version{1, 1, 0}) {
		t.Errorf("ParseAny(\"1.1\") = %v", got)
	}
	if _, err := ParseAny("1"); err == nil {
		t.Error("ParseAny(\"1\") should fail")
	}
}

func TestShortOmitsZeroPatch(t *testing.T) {
	if got := (Version{1, 2, 0}).Short(); got != "1.2" {
		t.Errorf("Short = %q, want 1.2", got)
	}
	if got := (Version{1, 2, 3}).Short(); got != "1.2.3" {
		t.Errorf("Short = %q, want 1.2.3", got)
	}
}

func TestOrdering(t *testing.T) {
	ordered := []Version{{0, 9, 9}, {1, 0, 0}, {1, 0, 1}, {1, 1, 0}, {1, 10, 0}, {2, 0, 0}}
	for i := range ordered {
		for j := range ordered {
			got := ordered[i].Compare(ordered[j])
			want := sign(i - j)
			if got != want {
				t.Errorf("%v.Compare(%v) = %d, want %d", ordered[i], ordered[j], got, want)
			}
		}
	}
	shuffled := []Version{{2, 0, 0}, {1, 0, 1}, {0, 9, 9}, {1, 10, 0}, {1, 0, 0}, {1, 1, 0}}
	Sort(shuffled)
	for index := range ordered {
		if shuffled[index] != ordered[index] {
			t.Fatalf("Sort = %v, want %v", shuffled, ordered)
		}
	}
}

func TestEnsureSupported(t *testing.T) {
	accepted := []Version{{1, 0, 0}, {1, 1, 0}, {1, 1, 5}, {1, 2, 0}}
	for _, v := range accepted {
		if err := EnsureSupported(v); err != nil {
			t.Errorf("EnsureSupported(%v): %v", v, err)
		}
	}

	rejected := map[Version]string{
		{0, 9, 0}: "major",
		{2, 0, 0}: "major",
		{1, 3, 0}: "newer",
		{1, 2, 1}: "newer",
	}
	for v, fragment := range rejected {
		err := EnsureSupported(v)
		if err == nil {
			t.Errorf("EnsureSupported(%v) succeeded, want rejection", v)
			continue
		}
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("EnsureSupported(%v) = %q, want mention of %q", v, err, fragment)
		}
	}
}

func TestNegotiate(t *testing.T) {
	got, err := Negotiate(nil)
	if err != nil || got != Current {
		t.Fatalf("Negotiate(nil) = %v, %v; want %v", got, err, Current)
	}

	got, err = Negotiate([]Version{{1, 0, 0}, {1, 1, 0}, {3, 0, 0}})
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if got != (Version{1, 1, 0}) {
		t.Errorf("Negotiate picked %v, want 1.1.0", got)
	}

	if _, err := Negotiate([]Version{{0, 1, 0}, {4, 0, 0}}); err == nil {
		t.Error("Negotiate with no overlap should fail")
	}
}

func TestCompatibilityMatrix(t *testing.T) {
	matrix := CompatibilityMatrix(nil, nil)
	if !matrix["1.2.0"]["1.0.0"] {
		t.Error("1.2.0 decoder should read 1.0.0 payloads")
	}
	if matrix["1.0.0"]["1.2.0"] {
		t.Error("1.0.0 decoder must not read 1.2.0 payloads")
	}
	if !matrix["1.1.0"]["1.1.0"] {
		t.Error("a decoder reads its own version")
	}

	cross := CompatibilityMatrix([]Version{{2, 0, 0}}, []Version{{1, 2, 0}})
	if cross["2.0.0"]["1.2.0"] {
		t.Error("different majors are never compatible")
	}
}

func TestTextRoundTrip(t *testing.T) {
	var v Version
	if err := v.UnmarshalText([]byte("1.1")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	text, err := v.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(text) != "1.1.0" {
		t.Errorf("MarshalText = %q, want 1.1.0", text)
	}
}
