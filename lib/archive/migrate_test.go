// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/quenyan/lib/clock"
	"github.com/bureau-foundation/quenyan/lib/compress"
	"github.com/bureau-foundation/quenyan/lib/envelope/envelopetest"
	"github.com/bureau-foundation/quenyan/lib/morphcodec"
	"github.com/bureau-foundation/quenyan/lib/morpheme"
	"github.com/bureau-foundation/quenyan/lib/testutil"
	"github.com/bureau-foundation/quenyan/lib/version"
)

var migrationTime = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func migrateOptions() MigrateOptions {
	return MigrateOptions{
		Encryption: envelopetest.Fast(),
		Clock:      clock.Fake(migrationTime),
		Actor:      "release-bot",
	}
}

func legacyArchive(t *testing.T, source string) []byte {
	t.Helper()
	stream := encodeSource(t, source, morphcodec.Options{SourceMap: true})
	return mustEncode(t, stream, Options{
		Backend:   compress.NameRANS,
		ModelMode: compress.ModeHybrid,
		Optimise:  true,
		Layout:    LayoutJSONBody,
		Versions:  []version.Version{version.Minimum},
	})
}

func TestMigrateToCurrent(t *testing.T) {
	source := testutil.Sources["control"]
	original := legacyArchive(t, source)

	migrated, report, err := Migrate(original, passphrase, migrateOptions())
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if !report.Changed {
		t.Error("report says nothing changed")
	}
	if report.PreviousPackageVersion != "1.0.0" || report.PackageVersion != version.Current.String() {
		t.Errorf("report versions = %s -> %s", report.PreviousPackageVersion, report.PackageVersion)
	}
	if report.DictionaryVersion != report.PreviousDictionaryVersion || len(report.MissingKeys) != 0 {
		t.Errorf("report dictionary = %+v", report)
	}

	decoded := mustDecode(t, migrated, DecodeOptions{})
	if decoded.Layout != LayoutSections || decoded.PayloadVersion != version.Current {
		t.Errorf("migrated archive is %s at %s", decoded.Layout, decoded.PayloadVersion)
	}
	if decoded.Metadata.CompressionBackend != compress.NameRANS {
		t.Errorf("backend = %q", decoded.Metadata.CompressionBackend)
	}
	if decoded.Extras == nil || decoded.Extras.ModelMode != string(compress.ModeHybrid) || decoded.Extras.Optimisation == nil {
		t.Errorf("compression choices lost: %+v", decoded.Extras)
	}
	if decoded.Stream.SourceMap == nil {
		t.Error("source map lost")
	}
	requireSameTree(t, decoded, source)

	trail := decoded.Metadata.AuditTrail
	if len(trail) != 1 {
		t.Fatalf("audit trail = %+v, want one event", trail)
	}
	event := trail[0]
	if event.Action != "migrate" || event.Actor != "release-bot" || event.Timestamp != "2026-05-04T09:30:00Z" {
		t.Errorf("audit event = %+v", event)
	}
	if event.Details["from_version"] != "1.0.0" {
		t.Errorf("audit details = %v", event.Details)
	}

	before := mustDecode(t, original, DecodeOptions{})
	if decoded.Metadata.SourceHash != before.Metadata.SourceHash || fmt.Sprint(decoded.Stream.Tokens) != fmt.Sprint(before.Stream.Tokens) {
		t.Error("logical content changed during migration")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	once, first, err := Migrate(legacyArchive(t, testutil.Sources["classes"]), passphrase, migrateOptions())
	if err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	twice, second, err := Migrate(once, passphrase, migrateOptions())
	if err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if second.Changed {
		t.Error("second migration changed the archive")
	}
	if !bytes.Equal(once, twice) {
		t.Error("second migration rewrote the archive bytes")
	}
	if first.PackageVersion != second.PackageVersion || first.DictionaryVersion != second.DictionaryVersion {
		t.Errorf("reports differ: %+v vs %+v", first, second)
	}
	if len(mustDecode(t, twice, DecodeOptions{}).Metadata.AuditTrail) != 1 {
		t.Error("idempotent migration appended another audit event")
	}
}

func TestMigrateDowngrade(t *testing.T) {
	stream := encodeSource(t, testutil.Sources["arithmetic"], morphcodec.Options{})
	current := mustEncode(t, stream, Options{Backend: compress.NameZstd})

	options := migrateOptions()
	options.TargetVersion = "1.1"
	migrated, report, err := Migrate(current, passphrase, options)
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if report.Layout != LayoutJSONBody.String() {
		t.Errorf("layout = %q", report.Layout)
	}
	decoded := mustDecode(t, migrated, DecodeOptions{})
	if decoded.PayloadVersion != (version.Version{Major: 1, Minor: 1}) || decoded.Layout != LayoutJSONBody {
		t.Errorf("downgraded archive is %s at %s", decoded.Layout, decoded.PayloadVersion)
	}
	if decoded.Metadata.CompressionBackend != compress.NameZstd {
		t.Errorf("backend = %q", decoded.Metadata.CompressionBackend)
	}
	requireSameTree(t, decoded, testutil.Sources["arithmetic"])
}

func TestMigrateRejectsUnknownTargets(t *testing.T) {
	data := legacyArchive(t, testutil.Sources["identity"])

	options := migrateOptions()
	options.TargetDictionary = "9.9"
	_, _, err := Migrate(data, passphrase, options)
	if err == nil || !strings.Contains(err.Error(), "dictionary version 9.9") {
		t.Fatalf("error = %v, want one naming dictionary version 9.9", err)
	}
	requireKind(t, err, KindVersion)

	options = migrateOptions()
	options.TargetVersion = "1.3"
	_, _, err = Migrate(data, passphrase, options)
	requireKind(t, err, KindVersion)

	_, _, err = Migrate(data, []byte("wrong"), migrateOptions())
	requireKind(t, err, KindCrypto)
}

// dictionaryWithout writes the embedded dictionary minus key to a file
// and loads it under the given revision.
func dictionaryWithout(t *testing.T, key, revision string, strict bool) *morpheme.Dictionary {
	t.Helper()
	var entries []morpheme.Entry
	for _, entry := range loadDictionary(t).Entries() {
		if entry.Key != key {
			entries = append(entries, entry)
		}
	}
	data, err := yaml.Marshal(map[string]any{"version": revision, "entries": entries})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "dictionary.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	dictionary, err := morpheme.LoadFile(path, morpheme.Options{Strict: strict})
	if err != nil {
		t.Fatalf("loading reduced dictionary: %v", err)
	}
	return dictionary
}

func TestMigrateMissingKey(t *testing.T) {
	data := legacyArchive(t, testutil.Sources["identity"])

	t.Run("strict", func(t *testing.T) {
		options := migrateOptions()
		options.Dictionary = dictionaryWithout(t, "flow:return", "1.1", true)
		options.Strict = true
		_, _, err := Migrate(data, passphrase, options)
		var unknown *morphcodec.UnknownMorphemeError
		if !errors.As(err, &unknown) {
			t.Fatalf("error = %v, want UnknownMorphemeError", err)
		}
		if unknown.Key != "flow:return" {
			t.Errorf("missing key = %q, want flow:return", unknown.Key)
		}
		requireKind(t, err, KindMorpheme)
	})

	t.Run("substitute", func(t *testing.T) {
		dictionary := dictionaryWithout(t, "flow:return", "1.1", false)
		options := migrateOptions()
		options.Dictionary = dictionary
		migrated, report, err := Migrate(data, passphrase, options)
		if err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		if fmt.Sprint(report.MissingKeys) != "[flow:return]" {
			t.Errorf("missing keys = %v", report.MissingKeys)
		}
		if report.DictionaryVersion != "1.1" {
			t.Errorf("dictionary version = %q", report.DictionaryVersion)
		}
		decoded := mustDecode(t, migrated, DecodeOptions{Dictionary: dictionary})
		fallback := 0
		for _, token := range decoded.Stream.Tokens {
			if token == dictionary.FallbackCode() {
				fallback++
			}
		}
		if fallback == 0 {
			t.Error("no token was replaced by the fallback entry")
		}
		if decoded.Stream.SourceMap == nil || decoded.Stream.SourceMap.DictionaryVersion != "1.1" {
			t.Error("source map was not carried to the new dictionary")
		}
	})
}

func TestMigrateFile(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "module.qyn1")
	original := legacyArchive(t, testutil.Sources["comprehensions"])
	if err := os.WriteFile(path, original, 0o640); err != nil {
		t.Fatal(err)
	}

	t.Run("to another file", func(t *testing.T) {
		output := filepath.Join(directory, "migrated.qyn1")
		if _, err := MigrateFile(path, output, passphrase, migrateOptions()); err != nil {
			t.Fatalf("MigrateFile: %v", err)
		}
		if _, err := os.Stat(path + ".bak"); !os.IsNotExist(err) {
			t.Errorf("backup written for an out-of-place migration: %v", err)
		}
		unchanged, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(unchanged, original) {
			t.Error("source archive modified by an out-of-place migration")
		}
	})

	t.Run("in place", func(t *testing.T) {
		report, err := MigrateFile(path, "", passphrase, migrateOptions())
		if err != nil {
			t.Fatalf("MigrateFile: %v", err)
		}
		backup, err := os.ReadFile(path + ".bak")
		if err != nil {
			t.Fatalf("reading backup: %v", err)
		}
		if !bytes.Equal(backup, original) {
			t.Error("backup does not hold the original bytes")
		}
		migrated, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		decoded := mustDecode(t, migrated, DecodeOptions{})
		if decoded.PayloadVersion.String() != report.PackageVersion {
			t.Errorf("file is at %s, report says %s", decoded.PayloadVersion, report.PackageVersion)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0o640 {
			t.Errorf("mode = %v, want 0640", info.Mode().Perm())
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := MigrateFile(filepath.Join(directory, "absent"), "", passphrase, migrateOptions()); err == nil {
			t.Fatal("migrating a missing file succeeded")
		}
	})
}

func TestLayoutFor(t *testing.T) {
	tests := map[string]Layout{"1.0.0": LayoutJSONBody, "1.1.0": LayoutJSONBody, "1.2.0": LayoutSections}
	for text, want := range tests {
		v, err := version.Parse(text)
		if err != nil {
			t.Fatal(err)
		}
		if got := LayoutFor(v); got != want {
			t.Errorf("LayoutFor(%s) = %s, want %s", text, got, want)
		}
	}
}
