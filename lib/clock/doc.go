// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable wall clock for testability.
//
// Archive timestamps, migration audit events and project reports are
// stamped through a Clock. In production, Real() provides time.Now. In
// tests, Fake() provides a clock that moves only when told to:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	options := archive.MigrateOptions{Clock: c}
//	// ... every audit event carries 2026-01-01T00:00:00Z ...
//	c.Advance(time.Hour)
//
// AutoAdvance makes each Now call step the clock, which gives code that
// measures elapsed time a predictable, non-zero duration.
package clock
