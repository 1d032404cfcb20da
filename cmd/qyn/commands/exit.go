// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
	"github.com/bureau-foundation/quenyan/lib/archive"
)

// Exit codes. Usage mistakes exit with cli.ExitUsage (2).
const (
	ExitFailure     = 1
	ExitFormat      = 3
	ExitVersion     = 4
	ExitCrypto      = 5
	ExitCompression = 6
	ExitMorpheme    = 7
	ExitBudget      = 8
	ExitSyntax      = 9
)

var kindExitCodes = map[archive.Kind]int{
	archive.KindFormat:      ExitFormat,
	archive.KindVersion:     ExitVersion,
	archive.KindCrypto:      ExitCrypto,
	archive.KindCompression: ExitCompression,
	archive.KindMorpheme:    ExitMorpheme,
	archive.KindBudget:      ExitBudget,
	archive.KindSyntax:      ExitSyntax,
}

// ExitCode returns the process exit code for an error returned by a
// command. A nil error is 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *cli.ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	var usage *cli.UsageError
	if errors.As(err, &usage) {
		return cli.ExitUsage
	}
	if code, ok := kindExitCodes[archive.Classify(err)]; ok {
		return code
	}
	return ExitFailure
}
