// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"fmt"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
	"github.com/bureau-foundation/quenyan/lib/archive"
	"github.com/bureau-foundation/quenyan/lib/syntax"
)

// decodeParams select how an archive is opened.
type decodeParams struct {
	Dictionary string `flag:"dictionary" desc:"dictionary file to decode with instead of the embedded one"`
}

// openArchive reads and decrypts an archive with the configured budget.
func (a *app) openArchive(s *session, path string, passphrase []byte, params decodeParams) (*archive.Archive, error) {
	data, err := readArchive(path)
	if err != nil {
		return nil, err
	}
	options := archive.DecodeOptions{
		Budget: s.config.Limits,
		Logger: s.logger,
	}
	if params.Dictionary != "" {
		if options.Dictionary, err = dictionary(params.Dictionary, false); err != nil {
			return nil, err
		}
	}
	return archive.Decode(data, passphrase, options)
}

// source rebuilds the canonical source text of a decoded archive.
func (s *session) source(decoded *archive.Archive) (string, error) {
	registry, err := s.registry()
	if err != nil {
		return "", err
	}
	tree, err := decoded.Tree(registry)
	if err != nil {
		return "", err
	}
	return syntax.Unparse(tree), nil
}

type decodeCommandParams struct {
	commonParams
	keyParams
	decodeParams
	Output string `flag:"output,o" desc:"write source to a file instead of stdout"`
	Color  string `flag:"color" desc:"highlight source: auto, always or never" default:"auto"`
	Style  string `flag:"style" desc:"highlighting style" default:"monokai"`
}

func (a *app) decodeCommand() *cli.Command {
	var params decodeCommandParams
	return &cli.Command{
		Name:    "decode",
		Summary: "Decode an archive back to source",
		Description: `Decrypt an archive, rebuild its syntax tree and print the canonical
source text. Formatting and comments of the original are not
preserved; the tree is.`,
		Usage: "qyn decode <archive> [flags]",
		Examples: []cli.Example{
			{Description: "Print highlighted source", Command: "qyn decode app.py.qyn1 --color always"},
			{Description: "Restore to a file", Command: "qyn decode app.py.qyn1 -o app.py"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("decode", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "qyn decode <archive> [flags]"); err != nil {
				return err
			}
			return a.runDecode(args[0], params)
		},
	}
}

func (a *app) runDecode(path string, params decodeCommandParams) error {
	s, err := a.open(params.commonParams, "decode")
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
	source, err := s.source(decoded)
	if err != nil {
		return err
	}
	if params.Output != "" {
		return a.writeOutput(params.Output, []byte(source))
	}

	highlight := false
	switch params.Color {
	case "always":
		highlight = true
	case "auto":
		highlight = cli.IsTerminal(a.stdout)
	case "never":
	default:
		return cli.Usagef("--color must be auto, always or never")
	}
	if !highlight {
		_, err := fmt.Fprint(a.stdout, source)
		return err
	}

	var buffer bytes.Buffer
	if err := quick.Highlight(&buffer, source, decoded.Stream.SourceLanguage, "terminal256", params.Style); err != nil {
		s.logger.Debug("highlighting failed, printing plain source", "error", err)
		_, err := fmt.Fprint(a.stdout, source)
		return err
	}
	_, err = a.stdout.Write(buffer.Bytes())
	return err
}
