// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
	"github.com/bureau-foundation/quenyan/lib/sourcemap"
)

type sourceMapParams struct {
	commonParams
	keyParams
	decodeParams
	cli.JSONOutput
	Entries bool   `flag:"entries" desc:"list every mapping"`
	At      string `flag:"at" desc:"show the mapping covering line:column"`
	Export  string `flag:"export" desc:"write the serialised source map to a file, or - for stdout"`
}

func (a *app) sourceMapCommand() *cli.Command {
	var params sourceMapParams
	return &cli.Command{
		Name:    "source-map",
		Summary: "Show the source map stored in an archive",
		Description: `Decrypt an archive and report on its source map, which ties each
token to the span of source it came from. Archives encoded without
--source-map have none.`,
		Usage: "qyn source-map <archive> [flags]",
		Examples: []cli.Example{
			{Description: "Which token covers line 12, column 4", Command: "qyn source-map app.py.qyn1 --at 12:4"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("source-map", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "qyn source-map <archive> [flags]"); err != nil {
				return err
			}
			return a.runSourceMap(args[0], params)
		},
	}
}

func (a *app) runSourceMap(path string, params sourceMapParams) error {
	var line, column int
	if params.At != "" {
		var err error
		if line, column, err = parsePosition(params.At); err != nil {
			return cli.Usagef("--at: %v", err)
		}
	}

	s, err := a.open(params.commonParams, "source-map")
	if err != nil {
		return err
	}
	key, err := a.key(s, params.keyParams)
	if err != nil {
		return err
	}
	defer key.Close()

	decoded, err := a.openArchive(s, path, key.Bytes(), params.decodeParams)
	if err != nil {
		return err
	}
	sourceMap := decoded.Stream.SourceMap
	if sourceMap == nil {
		return fmt.Errorf("%s has no source map; encode with --source-map", path)
	}

	if params.Export != "" {
		data, err := sourceMap.Marshal()
		if err != nil {
			return err
		}
		return a.writeOutput(params.Export, data)
	}

	if params.At != "" {
		entry, ok := sourceMap.At(line, column)
		if !ok {
			return fmt.Errorf("no token covers %d:%d", line, column)
		}
		if done, err := params.EmitJSON(a.stdout, entry); done {
			return err
		}
		a.printMapping(entry, decoded.Stream.Trace())
		return nil
	}

	if params.Entries {
		if done, err := params.EmitJSON(a.stdout, sourceMap.Mappings); done {
			return err
		}
		trace := decoded.Stream.Trace()
		for _, entry := range sourceMap.Mappings {
			a.printMapping(entry, trace)
		}
		return nil
	}

	summary := sourceMap.Summary()
	if done, err := params.EmitJSON(a.stdout, summary); done {
		return err
	}
	p := newPalette(a.stdout)
	fmt.Fprintln(a.stdout, p.heading.Render(path))
	fmt.Fprintf(a.stdout, "  %s %s\n", p.label.Render("version"), summary.Version)
	fmt.Fprintf(a.stdout, "  %s %d (%d synthetic)\n", p.label.Render("entries"), summary.Entries, summary.Synthetic)
	fmt.Fprintf(a.stdout, "  %s %d\n", p.label.Render("lines"), summary.Lines)
	fmt.Fprintf(a.stdout, "  %s %s\n", p.label.Render("dictionary version"), summary.DictionaryVersion)
	fmt.Fprintf(a.stdout, "  %s %s\n", p.label.Render("encoder version"), summary.EncoderVersion)
	fmt.Fprintf(a.stdout, "  %s %s\n", p.label.Render("source hash"), summary.SourceHash)
	return nil
}

func (a *app) printMapping(entry sourcemap.Entry, trace []string) {
	token := entry.Key
	if entry.Token >= 0 && entry.Token < len(trace) {
		token = trace[entry.Token]
	}
	fmt.Fprintf(a.stdout, "%6d  %d:%d-%d:%d  %-16s %s\n",
		entry.Token, entry.StartLine, entry.StartColumn, entry.EndLine, entry.EndColumn, entry.Node, token)
}

// parsePosition parses "line:column".
func parsePosition(text string) (int, int, error) {
	lineText, columnText, ok := strings.Cut(text, ":")
	if !ok {
		return 0, 0, errors.New("expected line:column")
	}
	line, err := strconv.Atoi(lineText)
	if err != nil || line < 1 {
		return 0, 0, fmt.Errorf("invalid line %q", lineText)
	}
	column, err := strconv.Atoi(columnText)
	if err != nil || column < 0 {
		return 0, 0, fmt.Errorf("invalid column %q", columnText)
	}
	return line, column, nil
}
