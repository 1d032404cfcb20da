// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
	"github.com/bureau-foundation/quenyan/lib/archive"
)

type inspectParams struct {
	commonParams
	cli.JSONOutput
}

func (a *app) inspectCommand() *cli.Command {
	var params inspectParams
	return &cli.Command{
		Name:    "inspect",
		Summary: "Show an archive's wrapper and metadata without decrypting",
		Description: `Read the wrapper of an archive: its layout, version, required
features, envelope parameters and authenticated metadata. No
passphrase is needed and nothing is decrypted.`,
		Usage: "qyn inspect <archive> [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("inspect", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "qyn inspect <archive> [flags]"); err != nil {
				return err
			}
			return a.runInspect(args[0], params)
		},
	}
}

func (a *app) runInspect(path string, params inspectParams) error {
	if _, err := a.open(params.commonParams, "inspect"); err != nil {
		return err
	}
	data, err := readArchive(path)
	if err != nil {
		return err
	}
	summary, err := archive.Inspect(data)
	if err != nil {
		return err
	}
	if done, err := params.EmitJSON(a.stdout, summary); done {
		return err
	}
	printSummary(a.stdout, path, summary)
	return nil
}

func printSummary(w io.Writer, path string, summary *archive.Summary) {
	p := newPalette(w)
	row := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(w, "  %s %s\n", p.label.Render(label), value)
	}

	fmt.Fprintln(w, p.heading.Render(path))
	row("layout", summary.Layout)
	row("framed", fmt.Sprint(summary.Framed))
	row("wrapper version", summary.WrapperVersion)
	row("payload version", summary.PayloadVersion)
	if len(summary.Features) > 0 {
		row("features", strings.Join(summary.Features, ", "))
	}
	row("size", fmt.Sprintf("%d bytes (%d ciphertext)", summary.TotalBytes, summary.CiphertextBytes))

	fmt.Fprintln(w, p.heading.Render("encryption"))
	row("envelope version", fmt.Sprint(summary.Encryption.Version))
	row("aead", summary.Encryption.AEAD)
	row("kdf", summary.Encryption.KDF)
	if len(summary.Encryption.KDFParameters) > 0 {
		names := make([]string, 0, len(summary.Encryption.KDFParameters))
		for name := range summary.Encryption.KDFParameters {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			row(name, fmt.Sprint(summary.Encryption.KDFParameters[name]))
		}
	}

	metadata := summary.Metadata
	if metadata == nil {
		fmt.Fprintln(w, p.faint.Render("  metadata is only available after decryption"))
		return
	}
	fmt.Fprintln(w, p.heading.Render("metadata"))
	row("package version", metadata.PackageVersion)
	row("dictionary version", metadata.DictionaryVersion)
	row("encoder version", metadata.EncoderVersion)
	row("source language", strings.TrimSpace(metadata.SourceLanguage+" "+metadata.SourceLanguageVersion))
	row("source hash", metadata.SourceHash)
	row("compression", metadata.CompressionBackend)
	row("model digest", metadata.CompressionModelDigest)
	if metadata.SymbolCount > 0 {
		row("symbols", fmt.Sprint(metadata.SymbolCount))
	}
	row("timestamp", metadata.Timestamp)
	row("author", metadata.Author)
	row("license", metadata.License)
	row("key provider", metadata.KeyProvider)
	row("key id", metadata.KeyID)
	row("key version", metadata.KeyVersion)
	row("rotation due", metadata.RotationDue)
	if len(metadata.Provenance) > 0 {
		keys := make([]string, 0, len(metadata.Provenance))
		for key := range metadata.Provenance {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		row("provenance", strings.Join(keys, ", "))
	}
	if len(metadata.AuditTrail) > 0 {
		fmt.Fprintln(w, p.heading.Render("audit trail"))
		for _, event := range metadata.AuditTrail {
			line := event.Timestamp + "  " + event.Action
			if event.Actor != "" {
				line += " by " + event.Actor
			}
			fmt.Fprintln(w, "  "+line)
		}
	}
}
