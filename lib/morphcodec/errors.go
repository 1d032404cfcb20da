// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package morphcodec

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is wrapped by every decoding failure caused by the
// stream itself rather than by the dictionary or profile.
var ErrMalformed = errors.New("malformed token stream")

// UnknownMorphemeError reports a construct that could not be encoded
// under [PolicyStrict], or whose source text could not be preserved
// under [PolicySubstitute].
type UnknownMorphemeError struct {
	// Key is the dictionary key that was missing, or the node kind when
	// the profile has no key for the node at all.
	Key    string
	Node   string
	Line   int
	Column int
	// Reason is set when substitution was attempted and failed.
	Reason string
}

func (e *UnknownMorphemeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no morpheme for %q", e.Key)
	if e.Node != "" {
		fmt.Fprintf(&b, " (%s", e.Node)
		if e.Line > 0 {
			fmt.Fprintf(&b, " at line %d, column %d", e.Line, e.Column)
		}
		b.WriteByte(')')
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// StreamError reports the token at which decoding failed.
type StreamError struct {
	Token   int
	Message string
	Err     error
}

func (e *StreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token %d: %s: %v", e.Token, e.Message, e.Err)
	}
	return fmt.Sprintf("token %d: %s", e.Token, e.Message)
}

func (e *StreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformed, e.Err}
	}
	return []error{ErrMalformed}
}
