// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind qyn.
//
// A [Command] tree is built in cmd/qyn/commands and run with
// [Command.Execute], which routes subcommands, parses pflag flag sets
// and renders help with examples. Mistyped command and flag names get a
// "did you mean" hint when an edit distance of three or less reaches a
// known name.
//
// Each command declares its flags as a tagged parameter struct bound by
// [FlagsFromParams]; embedding [JSONOutput] adds --json. A [UsageError]
// exits with status 2. An [ExitError] sets the status of a command that
// has already printed its own verdict.
package cli
