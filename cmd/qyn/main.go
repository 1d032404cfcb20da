// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// qyn encodes source files into encrypted morpheme archives and reads
// them back.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
	"github.com/bureau-foundation/quenyan/cmd/qyn/commands"
)

func main() {
	err := commands.Root().Execute(os.Args[1:])
	if err == nil {
		return
	}
	// An ExitError means the command already reported the outcome.
	var handled *cli.ExitError
	if !errors.As(err, &handled) {
		fmt.Fprintf(os.Stderr, "qyn: %v\n", err)
	}
	os.Exit(commands.ExitCode(err))
}
