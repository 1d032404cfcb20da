// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package frame

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/bureau-foundation/quenyan/lib/version"
)

func encodeTestFrame(t *testing.T, body []byte) []byte {
	t.Helper()
	data, err := Encode(Header{
		Magic:    PayloadMagic,
		Version:  version.Version{Major: 1, Minor: 2, Patch: 0},
		Flags:    FlagCanonicalSections,
		Features: FeatureSourceMap | FeatureExtras,
	}, body)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func requireFormatError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var formatError *FormatError
	if !errors.As(err, &formatError) {
		t.Fatalf("error %v (%T) is not a *FormatError", err, err)
	}
}

func TestRoundTrip(t *testing.T) {
	body := []byte("section bytes go here")
	data := encodeTestFrame(t, body)

	if len(data) != HeaderSize+len(body)+TrailerSize {
		t.Fatalf("frame length = %d", len(data))
	}

	header, decodedBody, remainder, err := Decode(data, PayloadMagic)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decodedBody, body) {
		t.Errorf("body = %q, want %q", decodedBody, body)
	}
	if len(remainder) != 0 {
		t.Errorf("remainder = %d bytes, want 0", len(remainder))
	}
	if header.Version != (version.Version{Major: 1, Minor: 2}) {
		t.Errorf("version = %v", header.Version)
	}
	if header.Flags != FlagCanonicalSections {
		t.Errorf("flags = %v", header.Flags)
	}
	if !header.Features.Has(FeatureSourceMap | FeatureExtras) {
		t.Errorf("features = %v", header.Features)
	}
	if header.BodyLength != uint32(len(body)) {
		t.Errorf("body length = %d", header.BodyLength)
	}
	if _, err := Validate(header, PayloadMagic); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestDecodeReturnsRemainder(t *testing.T) {
	data := append(encodeTestFrame(t, []byte("abc")), 0xAA, 0xBB)
	_, _, remainder, err := Decode(data, PayloadMagic)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(remainder, []byte{0xAA, 0xBB}) {
		t.Errorf("remainder = %x", remainder)
	}
}

func TestEmptyBody(t *testing.T) {
	data := encodeTestFrame(t, nil)
	_, body, _, err := Decode(data, PayloadMagic)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("body = %x", body)
	}
}

func TestDecodeErrors(t *testing.T) {
	valid := encodeTestFrame(t, []byte("payload"))

	t.Run("too short", func(t *testing.T) {
		_, _, _, err := Decode(valid[:10], PayloadMagic)
		requireFormatError(t, err)
	})
	t.Run("wrong magic", func(t *testing.T) {
		_, _, _, err := Decode(valid, WrapperMagic)
		requireFormatError(t, err)
	})
	t.Run("truncated before crc", func(t *testing.T) {
		_, _, _, err := Decode(valid[:len(valid)-2], PayloadMagic)
		requireFormatError(t, err)
	})
	t.Run("every single bit flip", func(t *testing.T) {
		for index := range valid {
			for bit := 0; bit < 8; bit++ {
				corrupted := bytes.Clone(valid)
				corrupted[index] ^= 1 << bit
				header, _, _, err := Decode(corrupted, PayloadMagic)
				if err == nil {
					// Flips inside the version or feature word keep the CRC
					// valid; the header must then differ from the original.
					if index < 4 || index >= 12 {
						t.Fatalf("flip at byte %d bit %d not detected", index, bit)
					}
					if _, err := Validate(header, PayloadMagic); err == nil &&
						header.Version == (version.Version{Major: 1, Minor: 2}) &&
						header.Flags == FlagCanonicalSections &&
						header.Features == FeatureSourceMap|FeatureExtras {
						t.Fatalf("flip at byte %d bit %d produced an identical header", index, bit)
					}
					continue
				}
				requireFormatError(t, err)
			}
		}
	})
	t.Run("length overflow", func(t *testing.T) {
		corrupted := bytes.Clone(valid)
		corrupted[12], corrupted[13], corrupted[14], corrupted[15] = 0xFF, 0xFF, 0xFF, 0xFF
		_, _, _, err := Decode(corrupted, PayloadMagic)
		requireFormatError(t, err)
	})
}

func TestValidateRejectsUnknownBits(t *testing.T) {
	header := Header{Magic: PayloadMagic, Features: Features(1 << 9)}
	_, err := Validate(header, PayloadMagic)
	requireFormatError(t, err)

	header = Header{Magic: WrapperMagic, Flags: Flags(1 << 5)}
	_, err = Validate(header, WrapperMagic)
	requireFormatError(t, err)

	header = Header{Magic: WrapperMagic, Flags: FlagEncrypted | FlagMetadataAuthenticated}
	if _, err := Validate(header, WrapperMagic); err != nil {
		t.Errorf("Validate wrapper flags: %v", err)
	}
}

func TestEncodeRejectsOversizedVersion(t *testing.T) {
	_, err := Encode(Header{Magic: WrapperMagic, Version: version.Version{Major: 300}}, nil)
	requireFormatError(t, err)
}

func TestFeatureNames(t *testing.T) {
	set, err := FeaturesFromNames([]string{"payload:source-map", "compression:fse", "payload:source-map"})
	if err != nil {
		t.Fatalf("FeaturesFromNames: %v", err)
	}
	want := []string{"compression:fse", "payload:source-map"}
	if got := set.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}

	reordered, err := FeaturesFromNames([]string{"compression:fse", "payload:source-map"})
	if err != nil {
		t.Fatalf("FeaturesFromNames: %v", err)
	}
	if reordered != set {
		t.Error("feature sets must be order independent")
	}

	_, err = FeaturesFromNames([]string{"compression:quantum"})
	requireFormatError(t, err)
}
