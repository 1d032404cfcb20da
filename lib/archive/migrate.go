// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/bureau-foundation/quenyan/lib/atomicfile"
	"github.com/bureau-foundation/quenyan/lib/clock"
	"github.com/bureau-foundation/quenyan/lib/compress"
	"github.com/bureau-foundation/quenyan/lib/envelope"
	"github.com/bureau-foundation/quenyan/lib/morphcodec"
	"github.com/bureau-foundation/quenyan/lib/morpheme"
	"github.com/bureau-foundation/quenyan/lib/version"
)

// MigrateOptions configure [Migrate].
type MigrateOptions struct {
	// TargetVersion is the package version to write. Empty means
	// version.Current.
	TargetVersion string
	// TargetDictionary is the dictionary revision to re-express tokens
	// in. Empty keeps the archive's revision.
	TargetDictionary string
	// Dictionary, when set, is the target dictionary and takes
	// precedence over TargetDictionary.
	Dictionary *morpheme.Dictionary
	// Strict fails the migration when the target dictionary lacks a key
	// the archive uses. Otherwise such tokens become meta:unknown.
	Strict bool

	Encryption envelope.Options
	Budget     Budget
	// Clock stamps the audit event. Nil means the real clock.
	Clock clock.Clock
	// Actor is recorded in the audit event.
	Actor string

	Logger *slog.Logger
}

// MigrationReport summarises one migration.
type MigrationReport struct {
	PreviousPackageVersion    string   `json:"previous_package_version"`
	PreviousDictionaryVersion string   `json:"previous_dictionary_version"`
	PackageVersion            string   `json:"package_version"`
	DictionaryVersion         string   `json:"dictionary_version"`
	Layout                    string   `json:"layout"`
	TokensMigrated            int      `json:"tokens_migrated"`
	MissingKeys               []string `json:"missing_keys,omitempty"`
	// Changed is false when the archive already had the target version,
	// dictionary and layout and was returned unchanged.
	Changed bool `json:"changed"`
}

// LayoutFor returns the layout written for a package version: sections
// from 1.2 on, a JSON payload body before that.
func LayoutFor(v version.Version) Layout {
	if v.Less(version.Version{Major: 1, Minor: 2}) {
		return LayoutJSONBody
	}
	return LayoutSections
}

// Migrate re-serialises the logical content of an archive under a
// target package version and dictionary revision. The compression
// backend, model mode and optimisation choice are kept, the annotations
// are carried over, and a "migrate" event is appended to the audit
// trail. An archive already in the target shape is returned as is.
func Migrate(data, passphrase []byte, options MigrateOptions) ([]byte, *MigrationReport, error) {
	logger := discardLogger(options.Logger)
	target := version.Current
	if options.TargetVersion != "" {
		var err error
		if target, err = version.ParseAny(options.TargetVersion); err != nil {
			return nil, nil, err
		}
	}
	if _, err := version.Negotiate([]version.Version{target}); err != nil {
		return nil, nil, fmt.Errorf("target package version %s: %w", target, err)
	}

	source, err := Decode(data, passphrase, DecodeOptions{Budget: options.Budget, Logger: options.Logger})
	if err != nil {
		return nil, nil, err
	}

	dictionary := options.Dictionary
	if dictionary == nil {
		dictionaryVersion := options.TargetDictionary
		if dictionaryVersion == "" {
			dictionaryVersion = source.Stream.DictionaryVersion
		}
		if err := morpheme.EnsureSupported(dictionaryVersion, target); err != nil {
			return nil, nil, fmt.Errorf("dictionary version %s incompatible with package %s: %w", dictionaryVersion, target, err)
		}
		if dictionaryVersion == source.Stream.DictionaryVersion {
			dictionary = source.Stream.Dictionary
		} else if dictionary, err = morpheme.Load(dictionaryVersion, morpheme.Options{Strict: options.Strict}); err != nil {
			return nil, nil, fmt.Errorf("loading dictionary version %s: %w", dictionaryVersion, err)
		}
	} else if err := morpheme.EnsureSupported(dictionary.Version(), target); err != nil {
		return nil, nil, fmt.Errorf("dictionary version %s incompatible with package %s: %w", dictionary.Version(), target, err)
	}

	layout := LayoutFor(target)
	report := &MigrationReport{
		PreviousPackageVersion:    source.PayloadVersion.String(),
		PreviousDictionaryVersion: source.Stream.DictionaryVersion,
		PackageVersion:            target.String(),
		DictionaryVersion:         dictionary.Version(),
		Layout:                    layout.String(),
		TokensMigrated:            len(source.Stream.Tokens),
	}
	if source.PayloadVersion == target && source.WrapperVersion == target &&
		source.Stream.Dictionary == dictionary && source.Layout == layout {
		logger.Debug("archive already migrated", "version", target.String(), "dictionary", dictionary.Version())
		return data, report, nil
	}

	stream, missing, err := translate(source.Stream, dictionary, options.Strict || dictionary.Strict())
	if err != nil {
		return nil, nil, err
	}
	report.MissingKeys = missing

	encodeOptions, err := reencodeOptions(source, options)
	if err != nil {
		return nil, nil, err
	}
	encodeOptions.Versions = []version.Version{target}
	encodeOptions.Layout = layout

	migrated, err := Encode(stream, passphrase, encodeOptions)
	if err != nil {
		return nil, nil, err
	}
	report.Changed = true
	logger.Info("migrated archive",
		"from", report.PreviousPackageVersion,
		"to", report.PackageVersion,
		"dictionary", report.DictionaryVersion,
		"missing_keys", len(missing),
	)
	return migrated, report, nil
}

// translate re-expresses a stream's tokens in another dictionary by key.
func translate(stream *morphcodec.EncodedStream, dictionary *morpheme.Dictionary, strict bool) (*morphcodec.EncodedStream, []string, error) {
	if stream.Dictionary == dictionary {
		return stream, nil, nil
	}
	tokens := make([]int, len(stream.Tokens))
	missing := make(map[string]bool)
	for position, code := range stream.Tokens {
		key := stream.Dictionary.Key(code)
		translated, ok := dictionary.Code(key)
		if !ok {
			if strict {
				return nil, nil, &morphcodec.UnknownMorphemeError{
					Key:    key,
					Reason: fmt.Sprintf("target dictionary %s has no entry (token %d)", dictionary.Version(), position),
				}
			}
			missing[key] = true
			translated = dictionary.FallbackCode()
		}
		tokens[position] = translated
	}

	migrated := *stream
	migrated.Dictionary = dictionary
	migrated.DictionaryVersion = dictionary.Version()
	migrated.Tokens = tokens
	migrated.Warnings = nil
	if stream.SourceMap != nil {
		sourceMap := *stream.SourceMap
		sourceMap.DictionaryVersion = dictionary.Version()
		sourceMap.Mappings = slices.Clone(stream.SourceMap.Mappings)
		migrated.SourceMap = &sourceMap
	}
	keys := make([]string, 0, len(missing))
	for key := range missing {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return &migrated, keys, nil
}

// reencodeOptions reproduces the compression choices recorded in an
// archive and carries its annotations forward with a new audit event.
func reencodeOptions(source *Archive, options MigrateOptions) (Options, error) {
	encodeOptions := Options{
		Backend:    source.Metadata.CompressionBackend,
		Encryption: options.Encryption,
		Logger:     options.Logger,
	}
	if source.Extras != nil {
		if source.Extras.ModelMode != "" {
			mode, err := compress.ParseMode(source.Extras.ModelMode)
			if err != nil {
				return Options{}, &compress.Error{Backend: encodeOptions.Backend, Reason: err.Error()}
			}
			encodeOptions.ModelMode = mode
		}
		encodeOptions.Optimise = source.Extras.Optimisation != nil
	}
	if model := source.Model; model != nil {
		encodeOptions.Compression = compress.Options{
			PrecisionBits: model.PrecisionBits,
			ChunkSize:     model.ChunkSize,
			TableLog:      model.TableLog,
			Level:         model.Level,
		}
	}

	now := clock.Real()
	if options.Clock != nil {
		now = options.Clock
	}
	annotations := source.Metadata.clone().Annotations
	event := AuditEvent{
		Action:    "migrate",
		Timestamp: now.Now().UTC().Format(time.RFC3339),
		Actor:     options.Actor,
		Details: map[string]string{
			"from_version":    source.PayloadVersion.String(),
			"from_dictionary": source.Stream.DictionaryVersion,
		},
	}
	annotations.AuditTrail = append(annotations.AuditTrail, event)
	encodeOptions.Annotations = annotations
	return encodeOptions, nil
}

// MigrateFile migrates the archive at path. With an empty output the
// file is replaced in place after its original bytes are copied to
// path+".bak"; otherwise the result is written to output and path is
// left alone.
func MigrateFile(path, output string, passphrase []byte, options MigrateOptions) (*MigrationReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	migrated, report, err := Migrate(data, passphrase, options)
	if err != nil {
		return nil, err
	}
	if output == "" {
		if !report.Changed {
			return report, nil
		}
		if err := atomicfile.Write(path+".bak", data, info.Mode().Perm()); err != nil {
			return nil, fmt.Errorf("writing backup: %w", err)
		}
		output = path
	}
	if err := atomicfile.Write(output, migrated, info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("writing migrated archive: %w", err)
	}
	return report, nil
}
