// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/quenyan/lib/codec"
	"github.com/bureau-foundation/quenyan/lib/compress"
	"github.com/bureau-foundation/quenyan/lib/envelope"
	"github.com/bureau-foundation/quenyan/lib/frame"
	"github.com/bureau-foundation/quenyan/lib/langprofile"
	"github.com/bureau-foundation/quenyan/lib/morphcodec"
	"github.com/bureau-foundation/quenyan/lib/morpheme"
	"github.com/bureau-foundation/quenyan/lib/payload"
	"github.com/bureau-foundation/quenyan/lib/sourcemap"
	"github.com/bureau-foundation/quenyan/lib/stringtable"
	"github.com/bureau-foundation/quenyan/lib/syntax"
	"github.com/bureau-foundation/quenyan/lib/version"
)

// DecodeOptions configure [Decode].
type DecodeOptions struct {
	// Budget bounds the sizes an archive may declare. Zero fields take
	// the DefaultBudget values.
	Budget Budget
	// Versions, when set, restricts the payload versions accepted to
	// this negotiated set.
	Versions []version.Version
	// AllowedFeatures, when set, lists the only features an archive may
	// require.
	AllowedFeatures []string
	// Dictionary is used instead of loading the embedded dictionary
	// when its version matches the archive's.
	Dictionary *morpheme.Dictionary

	Logger *slog.Logger
}

// Archive is a decoded archive.
type Archive struct {
	Layout         Layout
	WrapperVersion version.Version
	PayloadVersion version.Version
	Features       frame.Features
	// Metadata is the authenticated metadata. For the unframed layout
	// it is the copy stored inside the payload, or one derived from the
	// payload when that copy is absent.
	Metadata *Metadata

	Stream *morphcodec.EncodedStream
	Model  *compress.Model
	Extras *Extras
	// Sections lists the payload sections in body order. It is empty
	// for the JSON layouts.
	Sections []SectionInfo
}

// SectionInfo describes one payload section.
type SectionInfo struct {
	ID    frame.SectionID
	Flags uint16
	Size  int
}

// Tree rebuilds the syntax tree with the profile named by the stream's
// source language. A nil registry means the built-in profiles.
func (a *Archive) Tree(registry *langprofile.Registry) (*syntax.Module, error) {
	if registry == nil {
		var err error
		if registry, err = langprofile.Builtin(); err != nil {
			return nil, fmt.Errorf("loading language profiles: %w", err)
		}
	}
	profile, err := registry.Resolve(a.Stream.SourceLanguage)
	if err != nil {
		return nil, fmt.Errorf("resolving language profile: %w", err)
	}
	return morphcodec.NewDecoder(a.Stream.Dictionary, profile).Decode(a.Stream.Tokens, a.Stream.Channels)
}

// Decode decrypts and parses an archive. The declared version is
// checked before anything else is interpreted, and every other failure
// is classified by [Classify].
func Decode(data, passphrase []byte, options DecodeOptions) (*Archive, error) {
	budget := options.Budget.withDefaults()
	logger := discardLogger(options.Logger)
	if len(passphrase) == 0 {
		return nil, envelope.ErrEmptyPassphrase
	}

	if !frame.HasMagic(data, frame.WrapperMagic) {
		return decodeUnframed(data, passphrase, options, budget, logger)
	}

	header, body, remainder, err := frame.Decode(data, frame.WrapperMagic)
	if err != nil {
		return nil, fmt.Errorf("reading wrapper: %w", err)
	}
	if err := version.EnsureSupported(header.Version); err != nil {
		return nil, err
	}
	if len(remainder) > 0 {
		return nil, formatErrorf("%d bytes of trailing data after wrapper frame", len(remainder))
	}
	if _, err := frame.Validate(header, frame.WrapperMagic); err != nil {
		return nil, err
	}
	if header.Flags&frame.FlagEncrypted == 0 {
		return nil, formatErrorf("wrapper is not marked encrypted")
	}
	if err := allowed(header.Features, options.AllowedFeatures); err != nil {
		return nil, err
	}

	var w wrapper
	if err := codec.DecodeStrictJSON(body, &w); err != nil {
		return nil, formatErrorf("malformed wrapper: %v", err)
	}
	wrapperVersion, err := version.ParseAny(w.Version)
	if err != nil {
		return nil, err
	}
	if err := version.EnsureSupported(wrapperVersion); err != nil {
		return nil, err
	}
	if wrapperVersion != header.Version {
		return nil, formatErrorf("wrapper declares version %s but its frame carries %s", wrapperVersion, header.Version)
	}
	declared, err := frame.FeaturesFromNames(w.PayloadFeatures)
	if err != nil {
		return nil, err
	}
	if declared != header.Features {
		return nil, formatErrorf("wrapper feature list %v does not match frame features %v", w.PayloadFeatures, header.Features.Names())
	}
	if w.Metadata == nil {
		return nil, formatErrorf("wrapper has no metadata")
	}
	if err := w.Metadata.Validate(); err != nil {
		return nil, err
	}
	if err := budget.payload(len(w.Ciphertext)); err != nil {
		return nil, err
	}

	associatedData, err := w.Metadata.AssociatedData()
	if err != nil {
		return nil, err
	}
	result := w.result()
	if err := budget.keyDerivation(result); err != nil {
		return nil, err
	}
	plaintext, err := envelope.Decrypt(result, passphrase, associatedData)
	if err != nil {
		return nil, err
	}

	payloadHeader, payloadBody, payloadRemainder, err := frame.Decode(plaintext, frame.PayloadMagic)
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	if err := version.EnsureSupported(payloadHeader.Version); err != nil {
		return nil, err
	}
	if len(payloadRemainder) > 0 {
		return nil, formatErrorf("%d bytes of trailing data after payload frame", len(payloadRemainder))
	}
	if _, err := frame.Validate(payloadHeader, frame.PayloadMagic); err != nil {
		return nil, err
	}
	if payloadHeader.Features != header.Features {
		return nil, formatErrorf("payload features %v differ from wrapper features %v",
			payloadHeader.Features.Names(), header.Features.Names())
	}
	if w.PayloadVersion != "" {
		declaredPayload, err := version.ParseAny(w.PayloadVersion)
		if err != nil {
			return nil, err
		}
		if declaredPayload != payloadHeader.Version {
			return nil, formatErrorf("wrapper declares payload version %s but the payload carries %s",
				declaredPayload, payloadHeader.Version)
		}
	}
	if wrapperVersion.Less(payloadHeader.Version) {
		return nil, formatErrorf("payload version %s is newer than wrapper version %s", payloadHeader.Version, wrapperVersion)
	}
	if err := negotiated(payloadHeader.Version, options.Versions); err != nil {
		return nil, err
	}

	archive := &Archive{
		WrapperVersion: wrapperVersion,
		PayloadVersion: payloadHeader.Version,
		Features:       header.Features,
		Metadata:       w.Metadata,
	}
	var c *contents
	if payloadHeader.Flags&frame.FlagCanonicalSections != 0 {
		archive.Layout = LayoutSections
		if c, err = parseSections(payloadBody, budget); err != nil {
			return nil, fmt.Errorf("reading sections: %w", err)
		}
		sections, _ := frame.DecodeSections(payloadBody)
		for _, section := range sections {
			archive.Sections = append(archive.Sections, SectionInfo{ID: section.ID, Flags: section.Flags, Size: len(section.Payload)})
		}
	} else {
		archive.Layout = LayoutJSONBody
		var bodyVersion string
		if c, bodyVersion, err = parseLegacy(payloadBody, budget); err != nil {
			return nil, err
		}
		if bodyVersion != payloadHeader.Version.String() && bodyVersion != payloadHeader.Version.Short() {
			return nil, formatErrorf("legacy payload declares version %s inside a %s frame", bodyVersion, payloadHeader.Version)
		}
	}
	if c.features() != header.Features {
		return nil, formatErrorf("archive declares features %v but its contents require %v",
			header.Features.Names(), c.features().Names())
	}
	if c.metadata != nil {
		if err := sameMetadata(c.metadata, w.Metadata); err != nil {
			return nil, err
		}
	}
	if err := materialise(archive, c, options, budget, logger); err != nil {
		return nil, err
	}
	return archive, nil
}

// decodeUnframed reads the oldest layout: a bare JSON wrapper.
func decodeUnframed(data, passphrase []byte, options DecodeOptions, budget Budget, logger *slog.Logger) (*Archive, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.TrimSpace(data)[0] != '{' {
		return nil, formatErrorf("not an archive: no wrapper magic and no JSON wrapper")
	}
	var w wrapper
	if err := codec.DecodeStrictJSON(data, &w); err != nil {
		return nil, formatErrorf("malformed legacy wrapper: %v", err)
	}
	wrapperVersion, err := version.ParseAny(w.Version)
	if err != nil {
		return nil, err
	}
	if err := version.EnsureSupported(wrapperVersion); err != nil {
		return nil, err
	}
	if len(w.PayloadFeatures) > 0 {
		return nil, formatErrorf("legacy wrapper cannot declare features")
	}
	if err := budget.payload(len(w.Ciphertext)); err != nil {
		return nil, err
	}

	associatedData := []byte(LegacyAssociatedData)
	if w.Metadata != nil {
		if err := w.Metadata.Validate(); err != nil {
			return nil, err
		}
		if associatedData, err = w.Metadata.AssociatedData(); err != nil {
			return nil, err
		}
	}
	result := w.result()
	if err := budget.keyDerivation(result); err != nil {
		return nil, err
	}
	plaintext, err := envelope.Decrypt(result, passphrase, associatedData)
	if err != nil {
		return nil, err
	}
	c, bodyVersion, err := parseLegacy(plaintext, budget)
	if err != nil {
		return nil, err
	}
	payloadVersion, err := version.ParseAny(bodyVersion)
	if err != nil {
		return nil, err
	}
	if err := version.EnsureSupported(payloadVersion); err != nil {
		return nil, err
	}
	if err := negotiated(payloadVersion, options.Versions); err != nil {
		return nil, err
	}
	if err := allowed(c.features(), options.AllowedFeatures); err != nil {
		return nil, err
	}

	metadata := w.Metadata
	switch {
	case metadata != nil && c.metadata != nil:
		if err := sameMetadata(c.metadata, metadata); err != nil {
			return nil, err
		}
	case metadata == nil && c.metadata != nil:
		metadata = c.metadata
	}
	archive := &Archive{
		Layout:         LayoutJSONWrapper,
		WrapperVersion: wrapperVersion,
		PayloadVersion: payloadVersion,
		Features:       c.features(),
		Metadata:       metadata,
	}
	if archive.Metadata == nil {
		// Derived metadata takes the consistency checks' values from the
		// payload itself.
		model, err := compress.ParseModel(c.model)
		if err != nil {
			return nil, err
		}
		digest, err := model.Digest()
		if err != nil {
			return nil, err
		}
		archive.Metadata = &Metadata{
			PackageVersion:         payloadVersion.String(),
			DictionaryVersion:      c.dictionaryVersion,
			EncoderVersion:         c.encoderVersion,
			SourceLanguage:         c.sourceLanguage,
			SourceLanguageVersion:  c.sourceLanguageVersion,
			SourceHash:             c.sourceHash,
			CompressionBackend:     c.backend,
			CompressionModelDigest: digest,
			SymbolCount:            c.symbolCount,
		}
	}
	if err := materialise(archive, c, options, budget, logger); err != nil {
		return nil, err
	}
	return archive, nil
}

// materialise decompresses and decodes the contents into archive and
// checks them against the metadata.
func materialise(archive *Archive, c *contents, options DecodeOptions, budget Budget, logger *slog.Logger) error {
	metadata := archive.Metadata
	metadataVersion, err := metadata.Version()
	if err != nil {
		return err
	}
	if metadataVersion.Major != archive.PayloadVersion.Major {
		return formatErrorf("metadata package version %s does not match payload version %s", metadataVersion, archive.PayloadVersion)
	}
	mismatches := []struct {
		field            string
		metadata, stored string
	}{
		{"dictionary_version", metadata.DictionaryVersion, c.dictionaryVersion},
		{"encoder_version", metadata.EncoderVersion, c.encoderVersion},
		{"source_language", metadata.SourceLanguage, c.sourceLanguage},
		{"source_language_version", metadata.SourceLanguageVersion, c.sourceLanguageVersion},
		{"source_hash", metadata.SourceHash, c.sourceHash},
		{"compression_backend", metadata.CompressionBackend, c.backend},
	}
	for _, field := range mismatches {
		if field.metadata != field.stored {
			return formatErrorf("%s %q in metadata differs from payload %q", field.field, field.metadata, field.stored)
		}
	}
	if metadata.SymbolCount != c.symbolCount {
		return formatErrorf("symbol_count %d in metadata differs from payload %d", metadata.SymbolCount, c.symbolCount)
	}
	if err := budget.symbols(c.symbolCount); err != nil {
		return err
	}

	model, err := compress.ParseModel(c.model)
	if err != nil {
		return err
	}
	digest, err := model.Digest()
	if err != nil {
		return err
	}
	if digest != metadata.CompressionModelDigest {
		return formatErrorf("compression model digest %s does not match metadata %s", digest, metadata.CompressionModelDigest)
	}

	dictionary := options.Dictionary
	if dictionary == nil || dictionary.Version() != c.dictionaryVersion {
		if dictionary, err = morpheme.Load(c.dictionaryVersion, morpheme.Options{}); err != nil {
			return fmt.Errorf("loading dictionary: %w", err)
		}
	}

	backend, err := compress.Lookup(c.backend, compress.Options{})
	if err != nil {
		return err
	}
	var plan *compress.Plan
	if c.extras != nil && c.extras.Optimisation != nil {
		plan = c.extras.Optimisation
		if err := plan.Validate(dictionary.Len()); err != nil {
			return &compress.Error{Backend: c.backend, Reason: err.Error()}
		}
	}
	tokens, err := backend.Decode(c.compressed, model, c.symbolCount)
	if err != nil {
		return err
	}
	if plan != nil {
		if tokens, err = plan.Restore(tokens); err != nil {
			return &compress.Error{Backend: c.backend, Reason: err.Error()}
		}
	}
	for position, token := range tokens {
		if token < 0 || token >= dictionary.Len() {
			return formatErrorf("token %d at position %d is outside dictionary %s", token, position, dictionary.Version())
		}
	}

	table, err := stringtable.ParseLimited(c.stringTable, budget.MaxStringTableBytes)
	if err != nil {
		return err
	}
	channels, err := payload.Decode(c.record, c.channels, table)
	if err != nil {
		return err
	}
	if err := channels.Validate(len(tokens)); err != nil {
		return err
	}

	var sourceMap *sourcemap.Map
	if c.sourceMap != nil {
		if sourceMap, err = sourcemap.ParseLimited(c.sourceMap, int64(budget.MaxPayloadBytes)); err != nil {
			return err
		}
		if err := sourceMap.Validate(len(tokens)); err != nil {
			return err
		}
	}

	var timestamp time.Time
	if metadata.Timestamp != "" {
		timestamp, _ = time.Parse(time.RFC3339, metadata.Timestamp)
	}
	archive.Model = model
	archive.Extras = c.extras
	archive.Stream = &morphcodec.EncodedStream{
		Dictionary:            dictionary,
		DictionaryVersion:     c.dictionaryVersion,
		EncoderVersion:        c.encoderVersion,
		Tokens:                tokens,
		Channels:              channels,
		SourceMap:             sourceMap,
		SourceHash:            c.sourceHash,
		SourceLanguage:        c.sourceLanguage,
		SourceLanguageVersion: c.sourceLanguageVersion,
		Author:                metadata.Author,
		License:               metadata.License,
		Timestamp:             timestamp,
	}
	logger.Debug("decoded archive",
		"layout", archive.Layout.String(),
		"version", archive.PayloadVersion.String(),
		"backend", c.backend,
		"symbols", len(tokens),
	)
	return nil
}

func sameMetadata(stored, wrapper *Metadata) error {
	a, err := stored.Canonical()
	if err != nil {
		return err
	}
	b, err := wrapper.Canonical()
	if err != nil {
		return err
	}
	if !bytes.Equal(a, b) {
		return formatErrorf("metadata inside the payload differs from the wrapper metadata")
	}
	return nil
}

func allowed(features frame.Features, names []string) error {
	if names == nil {
		return nil
	}
	permitted, err := frame.FeaturesFromNames(names)
	if err != nil {
		return err
	}
	if extra := features &^ permitted; extra != 0 {
		return formatErrorf("archive requires unsupported features %v", extra.Names())
	}
	return nil
}

func negotiated(payloadVersion version.Version, versions []version.Version) error {
	if len(versions) == 0 {
		return nil
	}
	for _, candidate := range versions {
		if candidate == payloadVersion {
			return nil
		}
	}
	return &version.Error{Value: payloadVersion.String(), Reason: "payload version not in the negotiated set"}
}
