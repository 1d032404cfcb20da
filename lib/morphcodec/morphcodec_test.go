// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package morphcodec

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/quenyan/lib/binhash"
	"github.com/bureau-foundation/quenyan/lib/langprofile"
	"github.com/bureau-foundation/quenyan/lib/morpheme"
	"github.com/bureau-foundation/quenyan/lib/payload"
	"github.com/bureau-foundation/quenyan/lib/syntax"
)

func loadDictionary(t *testing.T) *morpheme.Dictionary {
	t.Helper()
	dictionary, err := morpheme.Load("", morpheme.Options{})
	if err != nil {
		t.Fatalf("loading dictionary: %v", err)
	}
	return dictionary
}

// roundTrip encodes source and decodes the stream, failing the test
// unless the rebuilt tree matches the parsed one.
func roundTrip(t *testing.T, dictionary *morpheme.Dictionary, source string) *EncodedStream {
	t.Helper()
	stream, err := NewEncoder(dictionary).Encode([]byte(source), Options{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(dictionary, stream.Tokens, stream.Channels)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want, err := syntax.Parse(source)
	if err != nil {
		t.Fatal(err)
	}
	if !syntax.Equal(decoded, want) {
		t.Fatalf("decoded tree differs:\n got %s\nwant %s", truncate(syntax.Dump(decoded)), truncate(syntax.Dump(want)))
	}
	return stream
}

func truncate(text string) string {
	if len(text) > 400 {
		return text[:400] + "..."
	}
	return text
}

func TestRoundTripFixtures(t *testing.T) {
	dictionary := loadDictionary(t)
	paths, err := filepath.Glob(filepath.Join("..", "syntax", "testdata", "*.py"))
	if err != nil || len(paths) == 0 {
		t.Fatalf("no fixtures: %v", err)
	}
	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			source, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			stream := roundTrip(t, dictionary, string(source))
			if len(stream.Warnings) != 0 {
				t.Errorf("unexpected substitutions: %v", stream.Warnings)
			}
			if stream.SourceLanguage != "python" || stream.SourceEncoding != "utf-8" {
				t.Errorf("language %q, encoding %q", stream.SourceLanguage, stream.SourceEncoding)
			}
		})
	}
}

func TestFunctionStream(t *testing.T) {
	dictionary := loadDictionary(t)
	stream := roundTrip(t, dictionary, "def f(x):\n return x\n")

	var keys []string
	for _, code := range stream.Tokens {
		keys = append(keys, dictionary.Key(code))
	}
	want := []string{
		KeyStreamStart, KeyVersionHeader, KeyDictionaryVersion,
		"construct:module", "construct:function", "structure:parameter",
		"flow:return", "structure:identifier", KeyStreamEnd,
	}
	if !slices.Equal(keys, want) {
		t.Errorf("keys = %v\nwant %v", keys, want)
	}
	if got := stream.Channels.Identifiers; !slices.Equal(got, []string{"f", "x", "x"}) {
		t.Errorf("identifiers = %v", got)
	}
	if got := stream.Channels.Strings; !slices.Equal(got, []string{EncoderVersion, "1.0"}) {
		t.Errorf("strings = %v", got)
	}
	trace := stream.Trace()
	if !strings.HasSuffix(trace[6], "<flow:return>") {
		t.Errorf("trace[6] = %q", trace[6])
	}
	if stream.SourceHash == "" || len(stream.SourceHash) != 64 {
		t.Errorf("source hash %q", stream.SourceHash)
	}
}

func TestDeterministic(t *testing.T) {
	dictionary := loadDictionary(t)
	source, err := os.ReadFile(filepath.Join("..", "syntax", "testdata", "classes.py"))
	if err != nil {
		t.Fatal(err)
	}
	encoder := NewEncoder(dictionary)
	first, err := encoder.Encode(source, Options{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := encoder.Encode(source, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(first.Tokens, second.Tokens) {
		t.Error("token streams differ between runs")
	}
	if !payload.Equal(first.Channels, second.Channels) {
		t.Error("payload channels differ between runs")
	}
	if first.SourceHash != second.SourceHash {
		t.Error("source hash differs between runs")
	}
}

func TestSourceMap(t *testing.T) {
	dictionary := loadDictionary(t)
	stream, err := NewEncoder(dictionary).Encode([]byte("def f(x):\n    return x\n"), Options{SourceMap: true})
	if err != nil {
		t.Fatal(err)
	}
	if stream.SourceMap == nil {
		t.Fatal("no source map")
	}
	if err := stream.SourceMap.Validate(len(stream.Tokens)); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	entry := stream.SourceMap.Mappings[6]
	if entry.Key != "flow:return" || entry.StartLine != 2 || entry.StartColumn != 4 {
		t.Errorf("return entry = %+v", entry)
	}
	if stream.SourceMap.SourceHash != stream.SourceHash {
		t.Errorf("source map hash %q, stream hash %q", stream.SourceMap.SourceHash, stream.SourceHash)
	}

	plain, err := NewEncoder(dictionary).Encode([]byte("x = 1\n"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if plain.SourceMap != nil {
		t.Error("source map recorded without being requested")
	}
}

// withoutLambda returns the python profile with no key for Lambda.
func withoutLambda(t *testing.T) *langprofile.Profile {
	t.Helper()
	python, err := langprofile.Python()
	if err != nil {
		t.Fatal(err)
	}
	custom := *python
	custom.Name = "python-nolambda"
	custom.Nodes = maps.Clone(python.Nodes)
	delete(custom.Nodes, "Lambda")
	if err := custom.Compile(); err != nil {
		t.Fatal(err)
	}
	return &custom
}

func TestUnknownPolicy(t *testing.T) {
	dictionary := loadDictionary(t)
	profile := withoutLambda(t)
	source := "f = lambda x: x + 1\nprint(f(2))\n"

	t.Run("substitute", func(t *testing.T) {
		stream, err := NewEncoder(dictionary).Encode([]byte(source), Options{Profile: profile})
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if len(stream.Warnings) != 1 {
			t.Fatalf("warnings = %v", stream.Warnings)
		}
		warning := stream.Warnings[0]
		if warning.Key != "Lambda" || warning.Line != 1 || warning.Column != 4 {
			t.Errorf("warning = %+v", warning)
		}
		if stream.Tokens[warning.Token] != dictionary.FallbackCode() {
			t.Error("substituted token is not the fallback code")
		}
		if trace := stream.Trace()[warning.Token]; !strings.HasSuffix(trace, "<meta:unknown:Lambda>") {
			t.Errorf("trace = %q", trace)
		}
		if len(stream.Channels.Fragments) != 1 || stream.Channels.Fragments[0].Kind != "expr" {
			t.Errorf("fragments = %+v", stream.Channels.Fragments)
		}

		decoded, err := NewDecoder(dictionary, profile).Decode(stream.Tokens, stream.Channels)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		want, _ := syntax.Parse(source)
		if !syntax.Equal(decoded, want) {
			t.Errorf("decoded %s", syntax.Dump(decoded))
		}
	})

	t.Run("strict", func(t *testing.T) {
		_, err := NewEncoder(dictionary).Encode([]byte(source), Options{Profile: profile, Policy: PolicyStrict})
		var unknown *UnknownMorphemeError
		if !errors.As(err, &unknown) {
			t.Fatalf("error = %v, want *UnknownMorphemeError", err)
		}
		if unknown.Key != "Lambda" || unknown.Line != 1 || unknown.Column != 4 {
			t.Errorf("error = %+v", unknown)
		}
	})

	t.Run("strict dictionary", func(t *testing.T) {
		strict, err := morpheme.Load("", morpheme.Options{Strict: true})
		if err != nil {
			t.Fatal(err)
		}
		_, err = NewEncoder(strict).Encode([]byte(source), Options{Profile: profile})
		var unknown *UnknownMorphemeError
		if !errors.As(err, &unknown) {
			t.Fatalf("error = %v, want *UnknownMorphemeError", err)
		}
	})
}

func TestParsePolicy(t *testing.T) {
	for name, want := range map[string]Policy{"": PolicySubstitute, "substitute": PolicySubstitute, "STRICT": PolicyStrict} {
		got, err := ParsePolicy(name)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParsePolicy("lenient"); err == nil {
		t.Error("ParsePolicy accepted an unknown policy")
	}
}

func TestLargeStream(t *testing.T) {
	dictionary := loadDictionary(t)
	var source strings.Builder
	for line := range 16000 {
		fmt.Fprintf(&source, "value_%d = table.lookup(key, %d)\n", line, line)
	}
	stream := roundTrip(t, dictionary, source.String())
	if len(stream.Tokens) <= 100000 {
		t.Errorf("stream has %d tokens, want more than 100000", len(stream.Tokens))
	}
}

func TestDeepTree(t *testing.T) {
	dictionary := loadDictionary(t)
	depth := 150
	source := "x = " + strings.Repeat("[", depth) + "1" + strings.Repeat("]", depth) + "\n"
	roundTrip(t, dictionary, source)

	var nested strings.Builder
	for level := range 40 {
		fmt.Fprintf(&nested, "%sif x%d:\n", strings.Repeat(" ", level), level)
	}
	fmt.Fprintf(&nested, "%spass\n", strings.Repeat(" ", 40))
	roundTrip(t, dictionary, nested.String())
}

func TestEmptySources(t *testing.T) {
	dictionary := loadDictionary(t)
	for name, source := range map[string]string{
		"empty":    "",
		"comments": "# nothing here\n# at all\n",
		"blank":    "\n\n   \n",
	} {
		t.Run(name, func(t *testing.T) {
			stream := roundTrip(t, dictionary, source)
			if len(stream.Tokens) != 5 {
				t.Errorf("stream has %d tokens, want 5", len(stream.Tokens))
			}
		})
	}

	stream, err := NewEncoder(dictionary).EncodeTree(&syntax.Module{}, Options{})
	if err != nil {
		t.Fatalf("EncodeTree: %v", err)
	}
	if want := binhash.SumHex(nil); stream.SourceHash != want {
		t.Errorf("empty tree hashed as %s, want the hash of empty source %s", stream.SourceHash, want)
	}
}

func TestNonASCII(t *testing.T) {
	dictionary := loadDictionary(t)
	stream := roundTrip(t, dictionary, "naïve = 'héllo wörld'\nπ = 3.14\n名前 = naïve + '日本'\n")
	if !slices.Contains(stream.Channels.Identifiers, "名前") {
		t.Errorf("identifiers = %v", stream.Channels.Identifiers)
	}
}

func TestLargeLiteral(t *testing.T) {
	dictionary := loadDictionary(t)
	literal := strings.Repeat("quenya ", 300000)
	stream := roundTrip(t, dictionary, "text = '"+literal+"'\n")
	if len(stream.Channels.Strings) != 3 || stream.Channels.Strings[2] != literal {
		t.Error("literal not carried on the string channel")
	}
}

func TestEncodeErrors(t *testing.T) {
	encoder := NewEncoder(loadDictionary(t))

	_, err := encoder.Encode([]byte{'x', ' ', '=', ' ', 0xff, 0x80, '\n'}, Options{})
	if !errors.Is(err, langprofile.ErrNotText) {
		t.Errorf("invalid UTF-8: error = %v", err)
	}

	_, err = encoder.Encode([]byte("def f(:\n    pass\n"), Options{})
	var syntaxErr *syntax.Error
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("malformed source: error = %v", err)
	}
	if syntaxErr.Line != 1 {
		t.Errorf("syntax error line = %d", syntaxErr.Line)
	}
}

func TestDecodeRejectsCorruptStreams(t *testing.T) {
	dictionary := loadDictionary(t)
	stream, err := NewEncoder(dictionary).Encode([]byte("def f(x):\n    return x + 1\n"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	endCode, _ := dictionary.Code(KeyStreamEnd)
	returnCode, _ := dictionary.Code("flow:return")

	tests := []struct {
		name   string
		mutate func(tokens []int, channels *payload.Channels) ([]int, *payload.Channels)
	}{
		{"truncated", func(tokens []int, channels *payload.Channels) ([]int, *payload.Channels) {
			return tokens[:len(tokens)-1], channels
		}},
		{"trailing token", func(tokens []int, channels *payload.Channels) ([]int, *payload.Channels) {
			return append(tokens, endCode), channels
		}},
		{"code outside dictionary", func(tokens []int, channels *payload.Channels) ([]int, *payload.Channels) {
			tokens[4] = dictionary.Len() + 7
			return tokens, channels
		}},
		{"module replaced", func(tokens []int, channels *payload.Channels) ([]int, *payload.Channels) {
			tokens[3] = endCode
			return tokens, channels
		}},
		{"statement in expression position", func(tokens []int, channels *payload.Channels) ([]int, *payload.Channels) {
			tokens[len(tokens)-2] = returnCode
			return tokens, channels
		}},
		{"leftover payload", func(tokens []int, channels *payload.Channels) ([]int, *payload.Channels) {
			channels.AddCount(0, "extra", 1)
			return tokens, channels
		}},
		{"runaway count", func(tokens []int, channels *payload.Channels) ([]int, *payload.Channels) {
			channels.Counts[0] = 1 << 40
			return tokens, channels
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			channels := clone(stream.Channels)
			tokens, channels := test.mutate(slices.Clone(stream.Tokens), channels)
			_, err := Decode(dictionary, tokens, channels)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("error = %v, want ErrMalformed", err)
			}
		})
	}
}

func clone(channels *payload.Channels) *payload.Channels {
	return &payload.Channels{
		Entries:     slices.Clone(channels.Entries),
		Identifiers: slices.Clone(channels.Identifiers),
		Strings:     slices.Clone(channels.Strings),
		Numbers:     slices.Clone(channels.Numbers),
		Counts:      slices.Clone(channels.Counts),
		Flags:       slices.Clone(channels.Flags),
		Fragments:   slices.Clone(channels.Fragments),
	}
}
