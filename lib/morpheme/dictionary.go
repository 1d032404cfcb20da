// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package morpheme

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/quenyan/lib/version"
)

// FallbackKey is the reserved entry substituted for keys a dictionary
// does not contain. Every dictionary must define it.
const FallbackKey = "meta:unknown"

// DefaultVersion is loaded when no dictionary version is requested.
const DefaultVersion = "1.0"

//go:embed dictionaries/*.yaml
var dictionaryFiles embed.FS

// resources maps each published dictionary revision to the embedded
// data set it reuses.
var resources = map[string]string{
	"1.0":   "1.0",
	"1.0.0": "1.0",
	"1.1":   "1.0",
	"1.1.0": "1.0",
	"1.2":   "1.0",
	"1.2.0": "1.0",
}

var resourceFiles = map[string]string{
	"1.0": "dictionaries/v1_0.yaml",
}

// windows bounds the package versions each data set may be written
// into.
var windows = map[string][2]version.Version{
	"1.0": {version.Minimum, version.Current},
}

// Entry is one dictionary mapping. Code is the entry's position and is
// assigned on load; it is the token value written to archives.
type Entry struct {
	Key       string   `yaml:"key" json:"key"`
	Morpheme  string   `yaml:"morpheme" json:"morpheme"`
	Root      string   `yaml:"root" json:"root"`
	Gloss     string   `yaml:"gloss" json:"gloss"`
	ASTNodes  []string `yaml:"ast_nodes" json:"ast_nodes"`
	Frequency int      `yaml:"frequency" json:"frequency"`
	Code      int      `yaml:"-" json:"code"`
}

// Human renders the entry as "morpheme<key>".
func (e Entry) Human() string {
	return e.Morpheme + "<" + e.Key + ">"
}

type document struct {
	Version string  `yaml:"version" json:"version"`
	Entries []Entry `yaml:"entries" json:"entries"`
}

// Options configure [Load] and [LoadFile].
type Options struct {
	// Strict makes every lookup of a missing key fail instead of
	// resolving to [FallbackKey]. Encoders may also request strictness
	// per call.
	Strict bool
}

// Dictionary is an immutable, caller-owned key table. It is safe for
// concurrent use once loaded.
type Dictionary struct {
	version  string
	strict   bool
	entries  []Entry
	byKey    map[string]int
	byMorph  map[string]int
	fallback int
}

// UnknownKeyError is returned by strict lookups of a key the
// dictionary lacks.
type UnknownKeyError struct {
	Key     string
	Version string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("unknown morpheme key %q in dictionary %s", e.Key, e.Version)
}

// Resolution is the outcome of resolving one key. Substituted is set
// when the key was missing and Code is the fallback entry's.
type Resolution struct {
	Code        int
	Key         string
	Substituted bool
}

// Load returns the embedded dictionary for a published revision
// ("1.0", "1.2.0"). The reported [Dictionary.Version] is the requested
// revision in short form.
func Load(requested string, options Options) (*Dictionary, error) {
	if requested == "" {
		requested = DefaultVersion
	}
	if err := EnsureSupported(requested, version.Current); err != nil {
		return nil, err
	}
	expected, resource, err := resolve(requested)
	if err != nil {
		return nil, err
	}
	data, err := dictionaryFiles.ReadFile(resourceFiles[resource])
	if err != nil {
		return nil, fmt.Errorf("reading dictionary %s: %w", resource, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing dictionary %s: %w", resource, err)
	}
	declared := doc.Version
	if declared == "" {
		declared = resource
	}
	if declared != expected && declared != resource {
		return nil, fmt.Errorf("dictionary payload version mismatch: expected %s or %s, got %s", expected, resource, declared)
	}
	return build(expected, doc.Entries, options)
}

// LoadFile reads a dictionary from a YAML file, or from JSON with
// comments when the extension is .json or .jsonc. The file's own
// version field names the dictionary.
func LoadFile(path string, options Options) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	var doc document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), &doc)
	default:
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing dictionary %s: %w", path, err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("dictionary %s: missing version", path)
	}
	dictionary, err := build(doc.Version, doc.Entries, options)
	if err != nil {
		return nil, fmt.Errorf("dictionary %s: %w", path, err)
	}
	return dictionary, nil
}

func build(name string, entries []Entry, options Options) (*Dictionary, error) {
	d := &Dictionary{
		version:  name,
		strict:   options.Strict,
		entries:  make([]Entry, len(entries)),
		byKey:    make(map[string]int, len(entries)),
		byMorph:  make(map[string]int, len(entries)),
		fallback: -1,
	}
	var errs []error
	for index, entry := range entries {
		if entry.Key == "" || entry.Morpheme == "" {
			errs = append(errs, fmt.Errorf("entry %d: key and morpheme are required", index))
			continue
		}
		if previous, exists := d.byKey[entry.Key]; exists {
			errs = append(errs, fmt.Errorf("entry %d: key %q already defined by entry %d", index, entry.Key, previous))
			continue
		}
		entry.Code = index
		entry.ASTNodes = append([]string(nil), entry.ASTNodes...)
		d.entries[index] = entry
		d.byKey[entry.Key] = index
		if _, exists := d.byMorph[entry.Morpheme]; !exists {
			d.byMorph[entry.Morpheme] = index
		}
	}
	if index, ok := d.byKey[FallbackKey]; ok {
		d.fallback = index
	} else {
		errs = append(errs, fmt.Errorf("dictionary must contain a %s entry", FallbackKey))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return d, nil
}

// resolve maps a requested revision to its short form and the embedded
// data set serving it.
func resolve(requested string) (expected, resource string, err error) {
	parsed, err := version.ParseAny(requested)
	if err != nil {
		return "", "", err
	}
	lookup := parsed.Short()
	resource, ok := resources[lookup]
	if !ok {
		return "", "", &version.Error{Value: requested, Reason: "unsupported dictionary version"}
	}
	return parsed.Short(), resource, nil
}

// EnsureSupported reports whether a dictionary revision may be written
// into a package of the given version.
func EnsureSupported(requested string, packageVersion version.Version) error {
	_, resource, err := resolve(requested)
	if err != nil {
		return err
	}
	window, ok := windows[resource]
	if !ok {
		return &version.Error{Value: requested, Reason: "unsupported dictionary version"}
	}
	if packageVersion.Less(window[0]) || window[1].Less(packageVersion) {
		return &version.Error{
			Value:  requested,
			Reason: fmt.Sprintf("dictionary incompatible with package %s", packageVersion),
		}
	}
	return nil
}

// CompatibilityMap returns the package version window, as
// [minimum, maximum], of every embedded data set.
func CompatibilityMap() map[string][2]string {
	result := make(map[string][2]string, len(windows))
	for name, window := range windows {
		result[name] = [2]string{window[0].String(), window[1].String()}
	}
	return result
}

// Versions returns every published revision Load accepts.
func Versions() []string {
	names := make([]string, 0, len(resources))
	for name := range resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Version is the dictionary revision in short form.
func (d *Dictionary) Version() string { return d.version }

// Strict reports whether lookups of missing keys fail by default.
func (d *Dictionary) Strict() bool { return d.strict }

// Len is the number of entries and therefore the token alphabet size.
func (d *Dictionary) Len() int { return len(d.entries) }

// FallbackCode is the code of [FallbackKey].
func (d *Dictionary) FallbackCode() int { return d.fallback }

// Entries returns a copy of every entry in code order.
func (d *Dictionary) Entries() []Entry {
	return append([]Entry(nil), d.entries...)
}

// Entry returns the entry for a code.
func (d *Dictionary) Entry(code int) (Entry, bool) {
	if code < 0 || code >= len(d.entries) {
		return Entry{}, false
	}
	return d.entries[code], true
}

// Key returns the key for a code, or "" when the code is out of range.
func (d *Dictionary) Key(code int) string {
	if code < 0 || code >= len(d.entries) {
		return ""
	}
	return d.entries[code].Key
}

// Code returns the code of an exact key.
func (d *Dictionary) Code(key string) (int, bool) {
	code, ok := d.byKey[key]
	return code, ok
}

// EntryForKey returns the entry for an exact key.
func (d *Dictionary) EntryForKey(key string) (Entry, bool) {
	code, ok := d.byKey[key]
	if !ok {
		return Entry{}, false
	}
	return d.entries[code], true
}

// EntryForMorpheme returns the first entry spelled with a morpheme.
func (d *Dictionary) EntryForMorpheme(morpheme string) (Entry, bool) {
	code, ok := d.byMorph[morpheme]
	if !ok {
		return Entry{}, false
	}
	return d.entries[code], true
}

// Resolve looks up key. A missing key is an [*UnknownKeyError] when
// strict is set or the dictionary is strict; otherwise it resolves to
// the fallback entry with Substituted set.
func (d *Dictionary) Resolve(key string, strict bool) (Resolution, error) {
	if code, ok := d.byKey[key]; ok {
		return Resolution{Code: code, Key: key}, nil
	}
	if strict || d.strict {
		return Resolution{}, &UnknownKeyError{Key: key, Version: d.version}
	}
	return Resolution{Code: d.fallback, Key: key, Substituted: true}, nil
}

// Humanize renders codes as "morpheme<key>". Out-of-range codes render
// as "?<code>".
func (d *Dictionary) Humanize(codes []int) []string {
	human := make([]string, len(codes))
	for index, code := range codes {
		entry, ok := d.Entry(code)
		if !ok {
			human[index] = fmt.Sprintf("?<%d>", code)
			continue
		}
		human[index] = entry.Human()
	}
	return human
}
