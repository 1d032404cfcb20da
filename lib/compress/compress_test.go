// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"reflect"
	"testing"
)

const testAlphabet = 96

// skewedTokens returns a deterministic, Zipf-like token stream.
func skewedTokens(count int, seed uint64) []int {
	random := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	zipf := rand.NewZipf(random, 1.3, 2, testAlphabet-1)
	tokens := make([]int, count)
	for index := range tokens {
		tokens[index] = int(zipf.Uint64())
	}
	return tokens
}

func everyToken() []int {
	tokens := make([]int, testAlphabet)
	for index := range tokens {
		tokens[index] = index
	}
	return tokens
}

func repeated(token, count int) []int {
	tokens := make([]int, count)
	for index := range tokens {
		tokens[index] = token
	}
	return tokens
}

func requireCompressionError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var compressionError *Error
	if !errors.As(err, &compressionError) {
		t.Fatalf("error %v (%T) is not a *compress.Error", err, err)
	}
}

func lookup(t *testing.T, name string) Backend {
	t.Helper()
	backend, err := Lookup(name, Options{})
	if err != nil {
		t.Fatalf("Lookup(%q): %v", name, err)
	}
	return backend
}

// persist returns model after a canonical JSON round trip, which is the
// only form decoders ever see.
func persist(t *testing.T, model *Model) *Model {
	t.Helper()
	canonical, err := model.Canonical()
	if err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	stored, err := ParseModel(canonical)
	if err != nil {
		t.Fatalf("ParseModel(%s): %v", canonical, err)
	}
	return stored
}

func roundTrip(t *testing.T, backend Backend, tokens []int, alphabetSize int) ([]byte, *Model) {
	t.Helper()
	model, err := backend.BuildModel(tokens, alphabetSize)
	if err != nil {
		t.Fatalf("BuildModel: %v", err)
	}
	encoded, err := backend.Encode(tokens, model)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	stored := persist(t, model)
	decoded, err := backend.Decode(encoded, stored, len(tokens))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != len(tokens) {
		t.Fatalf("decoded %d tokens, want %d", len(decoded), len(tokens))
	}
	for index := range tokens {
		if decoded[index] != tokens[index] {
			t.Fatalf("token %d = %d, want %d", index, decoded[index], tokens[index])
		}
	}
	return encoded, stored
}

func TestBackendsRoundTrip(t *testing.T) {
	inputs := []struct {
		name   string
		tokens []int
	}{
		{"empty", nil},
		{"single", []int{5}},
		{"repeated", repeated(7, 3000)},
		{"every token", everyToken()},
		{"skewed", skewedTokens(20000, 1)},
	}
	for _, name := range Names() {
		for _, input := range inputs {
			t.Run(name+"/"+input.name, func(t *testing.T) {
				roundTrip(t, lookup(t, name), input.tokens, testAlphabet)
			})
		}
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	tokens := skewedTokens(4000, 2)
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			first, firstModel := roundTrip(t, lookup(t, name), tokens, testAlphabet)
			second, secondModel := roundTrip(t, lookup(t, name), tokens, testAlphabet)
			if string(first) != string(second) {
				t.Error("encoded bytes differ between runs")
			}
			firstDigest, _ := firstModel.Digest()
			secondDigest, _ := secondModel.Digest()
			if firstDigest != secondDigest {
				t.Errorf("model digests differ: %s vs %s", firstDigest, secondDigest)
			}
		})
	}
}

func TestEntropyBackendsCompress(t *testing.T) {
	tokens := skewedTokens(50000, 3)
	for _, name := range []string{NameRANS, NameChunkedRANS, NameFSE} {
		encoded, _ := roundTrip(t, lookup(t, name), tokens, testAlphabet)
		// One byte per token is the trivial encoding of this alphabet.
		if len(encoded) >= len(tokens) {
			t.Errorf("%s: %d bytes for %d skewed tokens", name, len(encoded), len(tokens))
		}
	}
}

func TestPackedBackendsBoundExpansion(t *testing.T) {
	// Every token in the test alphabet packs into one varint byte.
	// Without repeats a dictionary coder cannot shrink the stream, and
	// the body falls back to the stored form.
	framing := 2*binary.MaxVarintLen64 + 1
	skewed := skewedTokens(50000, 3)
	for _, name := range []string{NameZstd, NameLZ4} {
		encoded, _ := roundTrip(t, lookup(t, name), skewed, testAlphabet)
		if len(encoded) > len(skewed)+framing {
			t.Errorf("%s: %d bytes for %d packed bytes, more than the framing overhead", name, len(encoded), len(skewed))
		}

		pattern := make([]int, 0, 60000)
		for len(pattern) < 60000 {
			pattern = append(pattern, 3, 1, 4, 1, 5, 9, 2, 6)
		}
		encoded, _ = roundTrip(t, lookup(t, name), pattern, testAlphabet)
		if len(encoded) >= len(pattern)/10 {
			t.Errorf("%s: %d bytes for %d tokens of a repeating pattern", name, len(encoded), len(pattern))
		}
	}
}

func TestLookupRejectsUnknownBackend(t *testing.T) {
	_, err := Lookup("brotli", Options{})
	requireCompressionError(t, err)

	_, err = Lookup(NameRANS, Options{PrecisionBits: 20})
	requireCompressionError(t, err)

	_, err = Lookup(NameZstd, Options{Level: 40})
	requireCompressionError(t, err)
}

func TestRANSPrecisions(t *testing.T) {
	tokens := skewedTokens(3000, 4)
	for precision := MinPrecisionBits; precision <= MaxPrecisionBits; precision++ {
		backend, err := Lookup(NameRANS, Options{PrecisionBits: precision})
		if err != nil {
			t.Fatalf("Lookup precision %d: %v", precision, err)
		}
		_, model := roundTrip(t, backend, tokens, testAlphabet)
		if model.PrecisionBits != precision {
			t.Errorf("model precision = %d, want %d", model.PrecisionBits, precision)
		}
	}
}

func TestModelModes(t *testing.T) {
	tokens := skewedTokens(6000, 5)
	backend := lookup(t, NameRANS)

	for _, mode := range []Mode{ModeAdaptive, ModeStatic, ModeHybrid} {
		t.Run(string(mode), func(t *testing.T) {
			model, used, err := PrepareModel(backend, mode, tokens, testAlphabet)
			if err != nil {
				t.Fatalf("PrepareModel: %v", err)
			}
			if used != mode {
				t.Errorf("mode used = %s, want %s", used, mode)
			}
			encoded, err := backend.Encode(tokens, model)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			decoded, err := backend.Decode(encoded, persist(t, model), len(tokens))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(decoded, tokens) {
				t.Fatal("decoded stream differs")
			}
		})
	}
}

func TestStaticModelStoresNoFrequencies(t *testing.T) {
	model, _, err := PrepareModel(lookup(t, NameRANS), ModeStatic, skewedTokens(100, 6), testAlphabet)
	if err != nil {
		t.Fatalf("PrepareModel: %v", err)
	}
	if model.Frequencies != nil || model.ModelID != DefaultGlobalModelID || model.AlphabetSize != testAlphabet {
		t.Errorf("static model = %+v", model)
	}
}

func TestHybridOverridesReproduceAdaptiveTable(t *testing.T) {
	tokens := skewedTokens(6000, 7)
	backend := lookup(t, NameRANS)
	adaptive, err := backend.BuildModel(tokens, testAlphabet)
	if err != nil {
		t.Fatalf("BuildModel: %v", err)
	}
	hybrid, _, err := PrepareModel(backend, ModeHybrid, tokens, testAlphabet)
	if err != nil {
		t.Fatalf("PrepareModel: %v", err)
	}
	if len(hybrid.Overrides) == 0 || len(hybrid.Overrides) > testAlphabet {
		t.Fatalf("override count = %d", len(hybrid.Overrides))
	}

	table, err := backend.(*ransBackend).tableFor(hybrid)
	if err != nil {
		t.Fatalf("tableFor: %v", err)
	}
	if !reflect.DeepEqual(table.Frequencies, adaptive.Frequencies) {
		t.Error("hybrid table differs from the adaptive table it was derived from")
	}
}

func TestNonRANSBackendsForceAdaptive(t *testing.T) {
	for _, name := range []string{NameChunkedRANS, NameFSE, NameZstd, NameLZ4} {
		_, used, err := PrepareModel(lookup(t, name), ModeHybrid, []int{1, 2, 3}, testAlphabet)
		if err != nil {
			t.Fatalf("%s: PrepareModel: %v", name, err)
		}
		if used != ModeAdaptive {
			t.Errorf("%s: mode used = %s, want adaptive", name, used)
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, name := range []string{"", "adaptive", "static", "hybrid"} {
		if _, err := ParseMode(name); err != nil {
			t.Errorf("ParseMode(%q): %v", name, err)
		}
	}
	if _, err := ParseMode("psychic"); err == nil {
		t.Error("ParseMode accepted an unknown mode")
	}
}

func TestCorruptInputIsRejected(t *testing.T) {
	tokens := skewedTokens(2000, 8)
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			backend := lookup(t, name)
			encoded, model := roundTrip(t, backend, tokens, testAlphabet)

			_, err := backend.Decode(encoded[:len(encoded)-1], model, len(tokens))
			requireCompressionError(t, err)

			_, err = backend.Decode(append(append([]byte(nil), encoded...), 0x00), model, len(tokens))
			requireCompressionError(t, err)

			_, err = backend.Decode(encoded, model, len(tokens)+1)
			requireCompressionError(t, err)

			_, err = backend.Decode(nil, model, len(tokens))
			requireCompressionError(t, err)

			_, err = backend.Decode(encoded, nil, len(tokens))
			requireCompressionError(t, err)
		})
	}
}

func TestRandomBytesNeverPanic(t *testing.T) {
	random := rand.New(rand.NewPCG(9, 9))
	for _, name := range Names() {
		backend := lookup(t, name)
		_, model := roundTrip(t, backend, skewedTokens(500, 10), testAlphabet)
		for range 200 {
			garbage := make([]byte, random.IntN(64))
			for index := range garbage {
				garbage[index] = byte(random.Uint32())
			}
			decoded, err := backend.Decode(garbage, model, 500)
			if err == nil && len(decoded) != 500 {
				t.Fatalf("%s: partial output of %d tokens without error", name, len(decoded))
			}
		}
	}
}

func TestEncodeRejectsOutOfRangeSymbol(t *testing.T) {
	for _, name := range Names() {
		backend := lookup(t, name)
		model, err := backend.BuildModel([]int{1, 2}, 4)
		if err != nil {
			t.Fatalf("%s: BuildModel: %v", name, err)
		}
		_, err = backend.Encode([]int{1, 9}, model)
		requireCompressionError(t, err)
	}
}

func TestModelDigestTracksContent(t *testing.T) {
	model := &Model{PrecisionBits: 12, Frequencies: []int{4000, 96}}
	digest, err := model.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if len(digest) != 64 {
		t.Errorf("digest %q is not hex SHA-256", digest)
	}
	changed := model.Clone()
	changed.Frequencies[0]--
	changed.Frequencies[1]++
	other, _ := changed.Digest()
	if other == digest {
		t.Error("digest did not change with the frequencies")
	}
	if model.Frequencies[0] != 4000 {
		t.Error("Clone shares frequency storage")
	}
}

func TestParseModelRejectsMalformed(t *testing.T) {
	for _, input := range []string{"", "[]", `{"frequencies": "x"}`, `{"precision_bits": 12} {}`, `{"surprise": 1}`} {
		_, err := ParseModel([]byte(input))
		requireCompressionError(t, err)
	}
}

func TestTableFromFrequenciesNormalises(t *testing.T) {
	inputs := [][]int{
		{0, 0, 0},
		{1, 1, 1},
		{1_000_000, 1, 1, 1},
		{5, 0, 5, 0, 5},
		repeated(1, 4096),
	}
	for _, frequencies := range inputs {
		table, err := TableFromFrequencies(frequencies, 12)
		if err != nil {
			t.Fatalf("TableFromFrequencies(%d entries): %v", len(frequencies), err)
		}
		sum := 0
		for symbol, frequency := range table.Frequencies {
			if frequency < 1 {
				t.Errorf("symbol %d has frequency %d", symbol, frequency)
			}
			sum += frequency
		}
		if sum != 4096 {
			t.Errorf("frequencies sum to %d, want 4096", sum)
		}
	}

	if _, err := TableFromFrequencies(repeated(1, 4097), 12); err == nil {
		t.Error("alphabet larger than the table accepted")
	}
	if _, err := TableFromFrequencies([]int{1, -1}, 12); err == nil {
		t.Error("negative frequency accepted")
	}
	if _, err := TableFromFrequencies(nil, 12); err == nil {
		t.Error("empty frequencies accepted")
	}
}
