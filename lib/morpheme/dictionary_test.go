// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package morpheme

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/quenyan/lib/version"
)

func TestLoadCompatibleRevisions(t *testing.T) {
	tests := []struct{ requested, want string }{
		{"", "1.0"},
		{"1.0", "1.0"},
		{"1.0.0", "1.0"},
		{"1.1", "1.1"},
		{"1.2.0", "1.2"},
	}
	for _, test := range tests {
		dictionary, err := Load(test.requested, Options{})
		if err != nil {
			t.Fatalf("Load(%q): %v", test.requested, err)
		}
		if dictionary.Version() != test.want {
			t.Errorf("Load(%q).Version() = %q, want %q", test.requested, dictionary.Version(), test.want)
		}
		if dictionary.Len() < 200 {
			t.Errorf("Load(%q) has only %d entries", test.requested, dictionary.Len())
		}
	}
}

func TestLoadRejectsUnknownRevisions(t *testing.T) {
	for _, requested := range []string{"2.0", "0.9", "1.3", "one"} {
		_, err := Load(requested, Options{})
		var versionErr *version.Error
		if !errors.As(err, &versionErr) {
			t.Errorf("Load(%q) error = %v, want *version.Error", requested, err)
		}
	}
}

func TestCodesFollowEntryOrder(t *testing.T) {
	dictionary, err := Load("1.0", Options{})
	if err != nil {
		t.Fatal(err)
	}
	first, ok := dictionary.Entry(0)
	if !ok || first.Key != "construct:function" || first.Morpheme != "kar" || first.Code != 0 {
		t.Errorf("Entry(0) = %+v", first)
	}
	for code, entry := range dictionary.Entries() {
		if entry.Code != code {
			t.Fatalf("entry %q has code %d at position %d", entry.Key, entry.Code, code)
		}
		if got, _ := dictionary.Code(entry.Key); got != code {
			t.Fatalf("Code(%q) = %d, want %d", entry.Key, got, code)
		}
	}
	if _, ok := dictionary.Entry(dictionary.Len()); ok {
		t.Error("Entry accepted an out-of-range code")
	}
	if dictionary.Key(-1) != "" {
		t.Error("Key accepted a negative code")
	}
	entry, ok := dictionary.EntryForMorpheme("kar")
	if !ok || entry.Key != "construct:function" {
		t.Errorf("EntryForMorpheme(kar) = %+v, %v", entry, ok)
	}
}

func TestResolvePolicy(t *testing.T) {
	lenient, err := Load("1.0", Options{})
	if err != nil {
		t.Fatal(err)
	}
	resolution, err := lenient.Resolve("flow:return", false)
	if err != nil || resolution.Substituted || lenient.Key(resolution.Code) != "flow:return" {
		t.Errorf("Resolve(flow:return) = %+v, %v", resolution, err)
	}

	resolution, err = lenient.Resolve("construct:quantum_entangle", false)
	if err != nil {
		t.Fatalf("lenient Resolve: %v", err)
	}
	if !resolution.Substituted || resolution.Code != lenient.FallbackCode() || resolution.Key != "construct:quantum_entangle" {
		t.Errorf("lenient Resolve = %+v", resolution)
	}

	var unknown *UnknownKeyError
	if _, err := lenient.Resolve("construct:quantum_entangle", true); !errors.As(err, &unknown) {
		t.Errorf("per-call strict Resolve error = %v", err)
	}

	strict, err := Load("1.0", Options{Strict: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := strict.Resolve("construct:quantum_entangle", false); !errors.As(err, &unknown) || unknown.Key != "construct:quantum_entangle" {
		t.Errorf("strict dictionary Resolve error = %v", err)
	}
	if lenient.Strict() || !strict.Strict() {
		t.Error("strictness leaked between dictionaries")
	}
}

func TestHumanize(t *testing.T) {
	dictionary, err := Load("1.0", Options{})
	if err != nil {
		t.Fatal(err)
	}
	code, _ := dictionary.Code("construct:function")
	got := dictionary.Humanize([]int{code, -5})
	if got[0] != "kar<construct:function>" || got[1] != "?<-5>" {
		t.Errorf("Humanize = %v", got)
	}
}

func TestEnsureSupported(t *testing.T) {
	if err := EnsureSupported("1.1", version.Current); err != nil {
		t.Errorf("EnsureSupported(1.1, current): %v", err)
	}
	if err := EnsureSupported("1.0", version.Version{Major: 1, Minor: 3}); err == nil {
		t.Error("EnsureSupported accepted a package newer than the window")
	}
	window := CompatibilityMap()["1.0"]
	if window[0] != "1.0.0" || window[1] != version.Current.String() {
		t.Errorf("CompatibilityMap()[1.0] = %v", window)
	}
	if versions := Versions(); len(versions) != 6 || versions[0] != "1.0" {
		t.Errorf("Versions = %v", versions)
	}
}

func TestLoadFile(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "custom.jsonc")
	custom := `{
  // Two-entry dictionary.
  "version": "9.1",
  "entries": [
    {"key": "flow:return", "morpheme": "nan"},
    {"key": "meta:unknown", "morpheme": "ulca", "frequency": 3},
  ],
}`
	if err := os.WriteFile(path, []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	dictionary, err := LoadFile(path, Options{})
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if dictionary.Version() != "9.1" || dictionary.Len() != 2 || dictionary.FallbackCode() != 1 {
		t.Errorf("custom dictionary = %s with %d entries, fallback %d", dictionary.Version(), dictionary.Len(), dictionary.FallbackCode())
	}

	broken := filepath.Join(directory, "broken.yaml")
	content := "version: \"1.0\"\nentries:\n  - {key: \"flow:return\", morpheme: nan}\n  - {key: \"flow:return\", morpheme: nai}\n"
	if err := os.WriteFile(broken, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = LoadFile(broken, Options{})
	if err == nil {
		t.Fatal("LoadFile accepted a dictionary with duplicate keys and no fallback")
	}
	for _, want := range []string{"already defined", FallbackKey} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}
