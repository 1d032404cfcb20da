// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
	"github.com/bureau-foundation/quenyan/lib/archive"
	"github.com/bureau-foundation/quenyan/lib/compress"
	"github.com/bureau-foundation/quenyan/lib/keyprovider"
	"github.com/bureau-foundation/quenyan/lib/morphcodec"
	"github.com/bureau-foundation/quenyan/lib/version"
)

// codecParams are the encoding choices shared by encode and project.
// Empty values fall back to the configuration.
type codecParams struct {
	Backend        string `flag:"backend" desc:"compression backend (rans, chunked-rans, fse, zstd, lz4)"`
	ModelMode      string `flag:"model-mode" desc:"model mode for rans: static, adaptive or hybrid"`
	Optimise       bool   `flag:"optimise" desc:"remap tokens to a dense alphabet before compression"`
	SourceMap      bool   `flag:"source-map" desc:"record a source map"`
	Strict         bool   `flag:"strict" desc:"fail on constructs the dictionary cannot express"`
	Dictionary     string `flag:"dictionary" desc:"dictionary version or file"`
	Language       string `flag:"language" desc:"language profile name or manifest (default: by file extension)"`
	PackageVersion string `flag:"package-version" desc:"archive version to write (default: newest)"`
	Author         string `flag:"author" desc:"author recorded in metadata"`
	License        string `flag:"license" desc:"license recorded in metadata"`
}

// encodeSettings are codecParams merged over the configuration.
type encodeSettings struct {
	codec   morphcodec.Options
	archive archive.Options
	dict    string
	strict  bool
}

func (p codecParams) settings(s *session) (*encodeSettings, error) {
	cfg := s.config
	archiveOptions, err := cfg.ArchiveOptions()
	if err != nil {
		return nil, err
	}
	if p.Backend != "" {
		archiveOptions.Backend = p.Backend
	}
	if p.ModelMode != "" {
		mode, err := compress.ParseMode(p.ModelMode)
		if err != nil {
			return nil, cli.Usagef("--model-mode: %v", err)
		}
		archiveOptions.ModelMode = mode
	}
	archiveOptions.Optimise = archiveOptions.Optimise || p.Optimise
	if p.PackageVersion != "" {
		target, err := version.ParseAny(p.PackageVersion)
		if err != nil {
			return nil, err
		}
		archiveOptions.Versions = []version.Version{target}
		archiveOptions.Layout = archive.LayoutFor(target)
	}
	archiveOptions.Logger = s.logger

	strict := cfg.Codec.Strict || p.Strict
	codecOptions := morphcodec.Options{
		Policy:    morphcodec.PolicySubstitute,
		SourceMap: cfg.Codec.SourceMap || p.SourceMap,
		Author:    p.Author,
		License:   p.License,
		Logger:    s.logger,
	}
	if strict {
		codecOptions.Policy = morphcodec.PolicyStrict
	}

	dictionaryVersion := cfg.Codec.DictionaryVersion
	if p.Dictionary != "" {
		dictionaryVersion = p.Dictionary
	}

	registry, err := s.registry()
	if err != nil {
		return nil, err
	}
	codecOptions.Registry = registry
	language := cfg.Codec.Language
	if p.Language != "" {
		language = p.Language
	}
	if language != "" {
		profile, err := registry.ResolveSpec(language)
		if err != nil {
			return nil, err
		}
		codecOptions.Profile = profile
	}

	return &encodeSettings{
		codec:   codecOptions,
		archive: archiveOptions,
		dict:    dictionaryVersion,
		strict:  strict,
	}, nil
}

// annotate records the key provider in the archive annotations.
func (e *encodeSettings) annotate(key *keyprovider.Key) {
	key.Annotate(&e.archive.Annotations)
}

type encodeParams struct {
	commonParams
	keyParams
	codecParams
	cli.JSONOutput
	Output string `flag:"output,o" desc:"archive path, or - for stdout (default: <source>.qyn1)"`
}

// EncodeReport is the --json output of encode.
type EncodeReport struct {
	Source            string   `json:"source"`
	Archive           string   `json:"archive"`
	PackageVersion    string   `json:"package_version"`
	DictionaryVersion string   `json:"dictionary_version"`
	Backend           string   `json:"compression_backend"`
	Tokens            int      `json:"tokens"`
	SourceBytes       int      `json:"source_bytes"`
	ArchiveBytes      int      `json:"archive_bytes"`
	Warnings          []string `json:"warnings"`
}

func (a *app) encodeCommand() *cli.Command {
	var params encodeParams
	return &cli.Command{
		Name:    "encode",
		Summary: "Encode a source file into an archive",
		Description: `Parse a source file, express its syntax tree as morpheme tokens,
compress the tokens and encrypt the result into a QYN-1 archive.

Constructs the dictionary cannot express become meta:unknown tokens
and are logged as warnings, unless --strict (or codec.strict in the
configuration) turns them into errors.`,
		Usage: "qyn encode <source> [flags]",
		Examples: []cli.Example{
			{Description: "Encode with the default backend", Command: "qyn encode app.py"},
			{Description: "Encode for a 1.1 reader with zstd", Command: "qyn encode app.py -o app.qyn1 --backend zstd --package-version 1.1"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("encode", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "qyn encode <source> [flags]"); err != nil {
				return err
			}
			return a.runEncode(args[0], params)
		},
	}
}

func (a *app) runEncode(path string, params encodeParams) error {
	s, err := a.open(params.commonParams, "encode")
	if err != nil {
		return err
	}
	settings, err := params.codecParams.settings(s)
	if err != nil {
		return err
	}
	dict, err := dictionary(settings.dict, settings.strict)
	if err != nil {
		return err
	}
	key, err := a.key(s, params.keyParams)
	if err != nil {
		return err
	}
	defer key.Close()
	settings.annotate(key)

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}
	settings.codec.Path = path
	settings.codec.Timestamp = a.clock.Now().UTC()
	stream, err := morphcodec.NewEncoder(dict).Encode(source, settings.codec)
	if err != nil {
		return err
	}
	for _, warning := range stream.Warnings {
		s.logger.Warn("substituted unknown morpheme", "key", warning.Key, "node", warning.Node, "line", warning.Line, "column", warning.Column)
	}

	data, err := archive.Encode(stream, key.Bytes(), settings.archive)
	if err != nil {
		return err
	}
	output := params.Output
	if output == "" {
		output = path + ".qyn1"
	}
	if err := a.writeOutput(output, data); err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}

	summary, err := archive.Inspect(data)
	if err != nil {
		return err
	}
	report := EncodeReport{
		Source:            path,
		Archive:           output,
		PackageVersion:    summary.WrapperVersion,
		DictionaryVersion: stream.DictionaryVersion,
		Tokens:            len(stream.Tokens),
		SourceBytes:       len(source),
		ArchiveBytes:      len(data),
		Warnings:          []string{},
	}
	if summary.Metadata != nil {
		report.Backend = summary.Metadata.CompressionBackend
	}
	for _, warning := range stream.Warnings {
		report.Warnings = append(report.Warnings, warning.String())
	}
	if output == "-" {
		return nil
	}
	if done, err := params.EmitJSON(a.stdout, report); done {
		return err
	}
	fmt.Fprintf(a.stdout, "%s -> %s (%d tokens, %d -> %d bytes, %s, package %s)\n",
		path, output, report.Tokens, report.SourceBytes, report.ArchiveBytes, report.Backend, report.PackageVersion)
	return nil
}
