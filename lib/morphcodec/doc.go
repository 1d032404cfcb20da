// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package morphcodec converts syntax trees to morpheme token streams and
// back.
//
// A stream is a sequence of dictionary codes in pre-order traversal
// order, framed by meta tokens:
//
//	meta:stream_start
//	meta:version_header      S: encoder version
//	meta:dictionary_version  S: dictionary version
//	construct:module         C: statement count, then the statements
//	meta:stream_end
//
// Every node that owns a dictionary key contributes one token. The
// values a node carries (names, literal text, list lengths, presence
// flags) travel out of band in [payload.Channels], attached to the
// index of the token they belong to. Operators are folded into the
// token: a BinOp with Op "Add" is the single key op:add.
//
// Some structures own no token: an expression statement is written as
// its expression, and import aliases, with-items and parameter lists
// write their fields on behalf of the enclosing node. The decoder
// rebuilds them from position alone.
//
// A construct the dictionary cannot express is handled by [Policy].
// Under [PolicySubstitute] it is written as meta:unknown followed by its
// source text on the structured channel, and the decoder re-parses that
// text; under [PolicyStrict] encoding fails with
// [*UnknownMorphemeError].
package morphcodec
