// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the wall clock for testability. Production code
// injects Real(); tests inject Fake() with deterministic time control.
//
// Code that stamps archives, audit events or reports with the current
// time should accept a Clock (or hold one in an options struct) instead
// of calling time.Now directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// Since returns the time elapsed on c since t.
func Since(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Real returns the system wall clock.
func Real() Clock { return system{} }

type system struct{}

func (system) Now() time.Time { return time.Now() }
