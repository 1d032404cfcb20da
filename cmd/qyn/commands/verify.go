// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
	"github.com/bureau-foundation/quenyan/lib/archive"
	"github.com/bureau-foundation/quenyan/lib/binhash"
	"github.com/bureau-foundation/quenyan/lib/syntax"
)

type verifyParams struct {
	commonParams
	keyParams
	decodeParams
	cli.JSONOutput
	Source string `flag:"source" desc:"original source file whose hash must match (single archive only)"`
}

// VerifyResult is one archive's outcome.
type VerifyResult struct {
	Archive string `json:"archive"`
	OK      bool   `json:"ok"`
	Kind    string `json:"kind,omitempty"`
	Error   string `json:"error,omitempty"`
	Tokens  int    `json:"tokens,omitempty"`
	Nodes   int    `json:"nodes,omitempty"`
}

func (a *app) verifyCommand() *cli.Command {
	var params verifyParams
	return &cli.Command{
		Name:    "verify",
		Summary: "Check that archives decrypt and decode",
		Description: `Decrypt each archive, decode its token stream and rebuild the
syntax tree, then check the tree's shape. With --source, the original
file's hash must also match the archive's source_hash.

Exits 1 when any archive fails.`,
		Usage: "qyn verify <archive>... [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("verify", &params) },
		Run: func(args []string) error {
			if len(args) == 0 {
				return cli.Usagef("usage: qyn verify <archive>... [flags]")
			}
			if params.Source != "" && len(args) != 1 {
				return cli.Usagef("--source needs exactly one archive")
			}
			return a.runVerify(args, params)
		},
	}
}

func (a *app) runVerify(paths []string, params verifyParams) error {
	s, err := a.open(params.commonParams, "verify")
	if err != nil {
		return err
	}
	key, err := a.key(s, params.keyParams)
	if err != nil {
		return err
	}
	defer key.Close()

	var expectedHash string
	if params.Source != "" {
		source, err := os.ReadFile(params.Source)
		if err != nil {
			return fmt.Errorf("reading source: %w", err)
		}
		expectedHash = binhash.SumHex(source)
	}

	results := make([]VerifyResult, 0, len(paths))
	failed := 0
	for _, path := range paths {
		result := a.verifyOne(s, path, key.Bytes(), params.decodeParams, expectedHash)
		if !result.OK {
			failed++
		}
		results = append(results, result)
	}

	if done, err := params.EmitJSON(a.stdout, results); done {
		if err != nil {
			return err
		}
	} else {
		for _, result := range results {
			if result.OK {
				fmt.Fprintf(a.stdout, "ok    %s (%d tokens, %d nodes)\n", result.Archive, result.Tokens, result.Nodes)
			} else {
				fmt.Fprintf(a.stdout, "FAIL  %s: %s error: %s\n", result.Archive, result.Kind, result.Error)
			}
		}
	}
	if failed > 0 {
		return &cli.ExitError{Code: ExitFailure}
	}
	return nil
}

func (a *app) verifyOne(s *session, path string, passphrase []byte, params decodeParams, expectedHash string) VerifyResult {
	result := VerifyResult{Archive: path}
	fail := func(err error) VerifyResult {
		result.Kind = archive.Classify(err).String()
		result.Error = err.Error()
		return result
	}

	decoded, err := a.openArchive(s, path, passphrase, params)
	if err != nil {
		return fail(err)
	}
	registry, err := s.registry()
	if err != nil {
		return fail(err)
	}
	tree, err := decoded.Tree(registry)
	if err != nil {
		return fail(err)
	}
	if err := syntax.Check(tree); err != nil {
		return fail(err)
	}
	if expectedHash != "" && decoded.Metadata.SourceHash != expectedHash {
		return fail(fmt.Errorf("source hash %s does not match %s", decoded.Metadata.SourceHash, expectedHash))
	}
	result.OK = true
	result.Tokens = len(decoded.Stream.Tokens)
	result.Nodes = syntax.Count(tree)
	return result
}
