// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitUsage is the exit code for command-line mistakes.
const ExitUsage = 2

// ExitError carries a process exit code for a command that has already
// written its result, such as a verify run with failing archives. main
// exits with Code and prints nothing further.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// UsageError reports an unknown command or flag, or bad arguments. It
// is printed and the process exits with [ExitUsage].
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return e.Message }

// Usagef formats a [UsageError].
func Usagef(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}
