// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syntax

import "fmt"

// Error reports source that cannot be parsed, either because it is
// malformed or because it uses syntax outside the supported subset.
type Error struct {
	Line    int
	Column  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

func (e *Error) before(other *Error) bool {
	if e.Line != other.Line {
		return e.Line < other.Line
	}
	return e.Column < other.Column
}
