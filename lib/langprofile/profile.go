// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package langprofile describes how a source language's syntax tree
// maps onto morpheme dictionary keys.
//
// A [Profile] is data: node kinds, operators and literal kinds each map
// to one dictionary key, and the mapping must be invertible so a
// decoder can rebuild the node from the key alone. Profiles also carry
// file-extension, alias and MIME metadata for choosing a profile from a
// path, and the source encodings tried by [Profile.DecodeSource].
//
// Profiles are loaded from YAML or JSONC manifests. The python profile
// is built in; [Registry] adds caller-supplied manifests on top.
package langprofile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/jsonc"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/quenyan/lib/syntax"
)

// ErrNotText is returned by [Profile.DecodeSource] for input that none
// of the profile's encodings can decode, or that decodes to text
// containing NUL characters.
var ErrNotText = errors.New("source is not text in any supported encoding")

// Literals names the dictionary keys used for constant kinds.
type Literals struct {
	BoolTrue  string `yaml:"bool_true" json:"bool_true"`
	BoolFalse string `yaml:"bool_false" json:"bool_false"`
	Null      string `yaml:"null" json:"null"`
	String    string `yaml:"string" json:"string"`
	Bytes     string `yaml:"bytes" json:"bytes"`
	Integer   string `yaml:"integer" json:"integer"`
	Float     string `yaml:"float" json:"float"`
	Complex   string `yaml:"complex" json:"complex"`
	Ellipsis  string `yaml:"ellipsis" json:"ellipsis"`
	Template  string `yaml:"template" json:"template"`
	// Fallback is the key emitted for constructs the profile has no
	// entry for.
	Fallback string `yaml:"fallback" json:"fallback"`
}

// Profile is an immutable language description. Build one with
// [ParseManifest] or [LoadManifest]; a Profile literal must be passed
// through [Profile.Compile] before lookups work.
type Profile struct {
	Name               string            `yaml:"language" json:"language"`
	Version            string            `yaml:"version" json:"version"`
	Aliases            []string          `yaml:"aliases" json:"aliases"`
	Extensions         []string          `yaml:"extensions" json:"extensions"`
	MIMETypes          []string          `yaml:"mime_types" json:"mime_types"`
	PreferredEncodings []string          `yaml:"preferred_encodings" json:"preferred_encodings"`
	Nodes              map[string]string `yaml:"nodes" json:"nodes"`
	BinaryOperators    map[string]string `yaml:"binary_operators" json:"binary_operators"`
	UnaryOperators     map[string]string `yaml:"unary_operators" json:"unary_operators"`
	BooleanOperators   map[string]string `yaml:"boolean_operators" json:"boolean_operators"`
	AugmentedOperators map[string]string `yaml:"augmented_operators" json:"augmented_operators"`
	// ComparisonOperators map Compare operators to keys. They are read
	// only after a Compare token, so they may reuse other keys.
	ComparisonOperators map[string]string `yaml:"comparison_operators" json:"comparison_operators"`
	Literals            Literals          `yaml:"literals" json:"literals"`
	// TypeAliases map lowercased type names to type keys. They annotate
	// traces and are never emitted as tokens.
	TypeAliases map[string]string `yaml:"type_aliases" json:"type_aliases"`
	Metadata    map[string]string `yaml:"metadata" json:"metadata"`

	constructs  map[string]Construct
	comparisons map[string]string
	typeNames   map[string]string
}

// ConstructClass says which table a key came from.
type ConstructClass uint8

const (
	// ClassNode keys name a node kind directly.
	ClassNode ConstructClass = iota + 1
	// ClassBinary keys produce a BinOp with the named operator.
	ClassBinary
	// ClassUnary keys produce a UnaryOp.
	ClassUnary
	// ClassBoolean keys produce a BoolOp.
	ClassBoolean
	// ClassAugmented keys produce an AugAssign.
	ClassAugmented
	// ClassConstant keys produce a Constant of the given kind.
	ClassConstant
)

// Construct is what a dictionary key decodes to under a profile.
type Construct struct {
	Class ConstructClass
	// Name is the node kind for ClassNode and the operator name for the
	// operator classes.
	Name string
	// Constant is set for ClassConstant.
	Constant syntax.ConstantKind
}

// Format selects a manifest syntax.
type Format int

const (
	FormatYAML Format = iota
	// FormatJSON accepts JSON with comments and trailing commas.
	FormatJSON
)

// ParseManifest decodes and compiles a profile manifest.
func ParseManifest(data []byte, format Format) (*Profile, error) {
	profile := &Profile{}
	switch format {
	case FormatYAML:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(profile); err != nil {
			return nil, fmt.Errorf("parsing profile manifest: %w", err)
		}
	case FormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(profile); err != nil {
			return nil, fmt.Errorf("parsing profile manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown manifest format %d", format)
	}
	if err := profile.Compile(); err != nil {
		return nil, err
	}
	return profile, nil
}

// LoadManifest reads a manifest file, choosing the format from its
// extension: .yaml and .yml are YAML, anything else is JSONC.
func LoadManifest(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile manifest: %w", err)
	}
	format := FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}
	profile, err := ParseManifest(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return profile, nil
}

// Compile normalises the profile's metadata, validates its tables and
// builds the reverse indexes. It is idempotent.
func (p *Profile) Compile() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Version == "" {
		p.Version = "1.0"
	}
	for index, alias := range p.Aliases {
		p.Aliases[index] = strings.ToLower(alias)
	}
	for index, extension := range p.Extensions {
		extension = strings.ToLower(extension)
		if !strings.HasPrefix(extension, ".") {
			extension = "." + extension
		}
		p.Extensions[index] = extension
	}
	for index, mimeType := range p.MIMETypes {
		p.MIMETypes[index] = strings.ToLower(mimeType)
	}
	if len(p.PreferredEncodings) == 0 {
		p.PreferredEncodings = []string{"utf-8"}
	}
	types := make(map[string]string, len(p.TypeAliases))
	for name, key := range p.TypeAliases {
		types[strings.ToLower(name)] = key
	}
	p.TypeAliases = types

	var problems []error
	if p.Name == "" {
		problems = append(problems, errors.New("profile has no language name"))
	}
	required := map[string]string{
		"bool_true": p.Literals.BoolTrue, "bool_false": p.Literals.BoolFalse,
		"null": p.Literals.Null, "string": p.Literals.String, "bytes": p.Literals.Bytes,
		"integer": p.Literals.Integer, "float": p.Literals.Float,
		"template": p.Literals.Template, "fallback": p.Literals.Fallback,
	}
	for _, name := range sortedKeys(required) {
		if required[name] == "" {
			problems = append(problems, fmt.Errorf("literals missing required key %q", name))
		}
	}
	for _, encodingName := range p.PreferredEncodings {
		if _, ok := sourceEncodings[normaliseEncoding(encodingName)]; !ok {
			problems = append(problems, fmt.Errorf("unsupported source encoding %q", encodingName))
		}
	}

	constructs := make(map[string]Construct)
	claim := func(key string, construct Construct, origin string) {
		if key == "" {
			return
		}
		if key == p.Literals.Fallback {
			problems = append(problems, fmt.Errorf("%s maps to the fallback key %q", origin, key))
			return
		}
		if existing, ok := constructs[key]; ok && existing != construct {
			problems = append(problems, fmt.Errorf("%s reuses key %q", origin, key))
			return
		}
		constructs[key] = construct
	}
	for _, kind := range sortedKeys(p.Nodes) {
		claim(p.Nodes[kind], Construct{Class: ClassNode, Name: kind}, "node "+kind)
	}
	operatorTables := []struct {
		class ConstructClass
		table map[string]string
		label string
	}{
		{ClassBinary, p.BinaryOperators, "binary operator"},
		{ClassUnary, p.UnaryOperators, "unary operator"},
		{ClassBoolean, p.BooleanOperators, "boolean operator"},
		{ClassAugmented, p.AugmentedOperators, "augmented operator"},
	}
	for _, table := range operatorTables {
		for _, name := range sortedKeys(table.table) {
			claim(table.table[name], Construct{Class: table.class, Name: name}, table.label+" "+name)
		}
	}
	literals := p.literalKeys()
	for kind := syntax.ConstInt; kind <= syntax.ConstEllipsis; kind++ {
		claim(literals[kind], Construct{Class: ClassConstant, Constant: kind}, "literal "+kind.String())
	}
	claim(p.Literals.Template, Construct{Class: ClassNode, Name: "FormattedString"}, "template literal")

	comparisons := make(map[string]string, len(p.ComparisonOperators))
	for _, name := range sortedKeys(p.ComparisonOperators) {
		key := p.ComparisonOperators[name]
		if other, ok := comparisons[key]; ok {
			problems = append(problems, fmt.Errorf("comparison operators %s and %s share key %q", other, name, key))
			continue
		}
		comparisons[key] = name
	}

	typeNames := make(map[string]string, len(p.TypeAliases))
	for _, name := range sortedKeys(p.TypeAliases) {
		key := p.TypeAliases[name]
		if _, ok := typeNames[key]; !ok {
			typeNames[key] = name
		}
	}

	if err := errors.Join(problems...); err != nil {
		return fmt.Errorf("invalid profile %q: %w", p.Name, err)
	}
	p.constructs = constructs
	p.comparisons = comparisons
	p.typeNames = typeNames
	return nil
}

func (p *Profile) literalKeys() map[syntax.ConstantKind]string {
	return map[syntax.ConstantKind]string{
		syntax.ConstTrue:     p.Literals.BoolTrue,
		syntax.ConstFalse:    p.Literals.BoolFalse,
		syntax.ConstNone:     p.Literals.Null,
		syntax.ConstString:   p.Literals.String,
		syntax.ConstBytes:    p.Literals.Bytes,
		syntax.ConstInt:      p.Literals.Integer,
		syntax.ConstFloat:    p.Literals.Float,
		syntax.ConstComplex:  p.Literals.Complex,
		syntax.ConstEllipsis: p.Literals.Ellipsis,
	}
}

// Fallback returns the key emitted for unmapped constructs.
func (p *Profile) Fallback() string { return p.Literals.Fallback }

// KeyFor returns the dictionary key for node. Operator nodes map
// through their operator, constants through their kind. It reports
// false when the profile has no key for the node.
func (p *Profile) KeyFor(node syntax.Node) (string, bool) {
	var key string
	switch n := node.(type) {
	case *syntax.BinOp:
		key = p.BinaryOperators[n.Op]
	case *syntax.UnaryOp:
		key = p.UnaryOperators[n.Op]
	case *syntax.BoolOp:
		key = p.BooleanOperators[n.Op]
	case *syntax.AugAssign:
		key = p.AugmentedOperators[n.Op]
	case *syntax.Constant:
		key = p.literalKeys()[n.Type]
	case *syntax.FormattedString:
		key = p.Literals.Template
	default:
		key = p.Nodes[node.Kind()]
	}
	return key, key != ""
}

// Lookup returns the construct a key decodes to.
func (p *Profile) Lookup(key string) (Construct, bool) {
	construct, ok := p.constructs[key]
	return construct, ok
}

// ComparisonKey returns the key for a Compare operator.
func (p *Profile) ComparisonKey(op string) (string, bool) {
	key, ok := p.ComparisonOperators[op]
	return key, ok
}

// ComparisonOperator returns the Compare operator for a key.
func (p *Profile) ComparisonOperator(key string) (string, bool) {
	op, ok := p.comparisons[key]
	return op, ok
}

// TypeKey returns the type key for a type name, case-insensitively.
func (p *Profile) TypeKey(name string) (string, bool) {
	key, ok := p.TypeAliases[strings.ToLower(name)]
	return key, ok
}

// TypeName returns a readable name for a type key.
func (p *Profile) TypeName(key string) (string, bool) {
	name, ok := p.typeNames[key]
	return name, ok
}

// Keys returns every key the profile can emit, sorted, including the
// fallback.
func (p *Profile) Keys() []string {
	seen := map[string]bool{p.Literals.Fallback: true}
	for key := range p.constructs {
		seen[key] = true
	}
	for _, key := range p.ComparisonOperators {
		seen[key] = true
	}
	return sortedKeys(seen)
}

// ClaimsExtension reports whether the profile lists extension.
func (p *Profile) ClaimsExtension(extension string) bool {
	extension = strings.ToLower(extension)
	if !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	for _, candidate := range p.Extensions {
		if candidate == extension {
			return true
		}
	}
	return false
}

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// sourceEncodings lists the decoders available to manifests by
// normalised name. A nil decoder means strict UTF-8.
var sourceEncodings = map[string]encoding.Encoding{
	"utf-8":   nil,
	"utf-16":  unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM),
	"latin-1": charmap.ISO8859_1,
}

func normaliseEncoding(name string) string {
	name = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", "-"))
	switch name {
	case "utf8", "utf-8-sig":
		return "utf-8"
	case "utf16":
		return "utf-16"
	case "latin1", "iso-8859-1", "iso8859-1":
		return "latin-1"
	}
	return name
}

// DecodeSource decodes raw file contents using the profile's preferred
// encodings in order, stripping any byte order mark. It returns the
// text and the name of the encoding that succeeded. UTF-16 is only
// accepted with a byte order mark.
func (p *Profile) DecodeSource(data []byte) (string, string, error) {
	for _, name := range p.PreferredEncodings {
		normalised := normaliseEncoding(name)
		decoder, known := sourceEncodings[normalised]
		if !known {
			continue
		}
		var text string
		if decoder == nil {
			if !utf8.Valid(data) {
				continue
			}
			text = string(bytes.TrimPrefix(data, utf8BOM))
		} else {
			decoded, err := decoder.NewDecoder().Bytes(data)
			if err != nil {
				continue
			}
			text = strings.TrimPrefix(string(decoded), "\ufeff")
		}
		if strings.ContainsRune(text, 0) {
			return "", "", ErrNotText
		}
		return text, normalised, nil
	}
	return "", "", ErrNotText
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
