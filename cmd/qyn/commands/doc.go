// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the qyn command tree.
//
// Every command accepts --config (falling back to QYN_CONFIG) and
// --verbose. Commands that need a passphrase take --passphrase-file or
// use the key provider named in the configuration, and prompt on a
// terminal when neither yields one.
//
// Failures exit with a code chosen by the error's kind; see [ExitCode].
package commands
