// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package project packages a whole source tree into archives.
//
// [Encode] walks a directory for files matching the include patterns,
// encodes each one into its own archive in a bounded worker pool, and
// writes a [Manifest] describing every archive. All workers share one
// immutable morpheme dictionary and language registry. The context is
// checked between files: cancelling it stops new work and lets files
// already in flight finish.
//
// Every archive is addressed by a content ID, a BLAKE3 keyed hash of
// its bytes. The manifest carries a project ID, the Merkle root of the
// file IDs in path order, so two manifests name the same archive set
// exactly when their project IDs match. [Verify] recomputes both and
// decrypts every archive.
package project
