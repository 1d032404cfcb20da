// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
	"github.com/bureau-foundation/quenyan/lib/morpheme"
)

type morphemesParams struct {
	commonParams
	cli.JSONOutput
	Dictionary string `flag:"dictionary" desc:"dictionary version or file (default: configured version)"`
	Filter     string `flag:"filter" desc:"only entries whose key, morpheme or gloss contains this text"`
}

func (a *app) morphemesCommand() *cli.Command {
	var params morphemesParams
	return &cli.Command{
		Name:    "morphemes",
		Summary: "List the entries of a morpheme dictionary",
		Usage:   "qyn morphemes [flags]",
		Examples: []cli.Example{
			{Description: "Find the operator morphemes", Command: "qyn morphemes --filter op:"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("morphemes", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, 0, "qyn morphemes [flags]"); err != nil {
				return err
			}
			return a.runMorphemes(params)
		},
	}
}

func (a *app) runMorphemes(params morphemesParams) error {
	s, err := a.open(params.commonParams, "morphemes")
	if err != nil {
		return err
	}
	spec := params.Dictionary
	if spec == "" {
		spec = s.config.Codec.DictionaryVersion
	}
	dict, err := dictionary(spec, false)
	if err != nil {
		return err
	}

	filter := strings.ToLower(params.Filter)
	var entries []morpheme.Entry
	for _, entry := range dict.Entries() {
		if filter == "" || matchesEntry(entry, filter) {
			entries = append(entries, entry)
		}
	}

	if done, err := params.EmitJSON(a.stdout, entries); done {
		return err
	}
	writer := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "CODE\tKEY\tMORPHEME\tGLOSS")
	for _, entry := range entries {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\n", entry.Code, entry.Key, entry.Morpheme, entry.Gloss)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "\n%d of %d entries (dictionary %s)\n", len(entries), dict.Len(), dict.Version())
	return nil
}

func matchesEntry(entry morpheme.Entry, filter string) bool {
	for _, field := range []string{entry.Key, entry.Morpheme, entry.Gloss} {
		if strings.Contains(strings.ToLower(field), filter) {
			return true
		}
	}
	return false
}
