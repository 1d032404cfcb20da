// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides fixtures and helpers shared by the codec,
// archive, project and command tests.
//
// [Sources] holds small programs that exercise most of the grammar.
// Tests round-trip them through the encoder and the archive; keep them
// parseable and free of trailing whitespace so canonical source
// compares equal. [Passphrase] is the passphrase fixtures are sealed
// under.
//
// [WriteTree] lays out a source tree for project tests, and
// [RequireReceive] waits on a channel with a timeout so a broken
// worker pool fails the test instead of hanging it.
package testutil
