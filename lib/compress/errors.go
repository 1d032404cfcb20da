// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import "fmt"

// Error reports a compression or decompression failure. Backend is
// empty for failures that precede backend selection.
type Error struct {
	Backend string
	Reason  string
}

func (e *Error) Error() string {
	if e.Backend == "" {
		return "compression: " + e.Reason
	}
	return fmt.Sprintf("compression (%s): %s", e.Backend, e.Reason)
}

func errorf(backend, format string, args ...any) *Error {
	return &Error{Backend: backend, Reason: fmt.Sprintf(format, args...)}
}

// rename returns err attributed to backend when it is an *Error raised
// by shared table code.
func rename(err error, backend string) error {
	if compressionError, ok := err.(*Error); ok && compressionError.Backend != backend {
		return &Error{Backend: backend, Reason: compressionError.Reason}
	}
	return err
}
