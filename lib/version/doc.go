// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version holds two kinds of version information: the build
// identity of the qyn binaries and the protocol versions of the QYN-1
// archive format.
//
// # Build information
//
// [Release], [GitCommit] and [BuildTime] are injected with -ldflags -X.
// A binary built without them still reports its commit from the VCS
// stamp in the embedded build info. [Full], [Short] and [Commit] format
// them for "qyn version".
//
// # Protocol versions
//
// [Version] is a (major, minor, patch) triple with a total order.
// [Current] is the version written by this encoder and [Minimum] is
// the oldest version the decoder still reads. [EnsureSupported] is the
// gate every decode path runs before touching cryptographic material or
// section data: a version outside [Minimum, Current], or with a
// different major, yields an [*Error].
//
// [Negotiate] picks the version to write when a caller lists preferred
// versions, and [CompatibilityMatrix] reports which decoder versions
// can read which payload versions.
package version
