// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package syntax parses and prints the Python subset that QYN-1 archives
// carry as syntax trees.
//
// [Parse] turns source text into a [*Module]; [Unparse] prints a tree
// back as canonical source, and [Dump] renders a tree as a one-line,
// position-free string so two trees can be compared structurally.
// Parsing an unparsed tree yields a tree with the same dump.
//
// Each node type lists its children in a fixed order through
// [Node.Fields], which the morpheme codec uses for both directions:
// the encoder reads through a [FieldVisitor], the decoder writes
// through one.
//
// Unsupported or malformed input returns a [*Error] carrying the line
// and column of the offending token.
package syntax
