// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds passphrases and derived encryption keys in
// memory that the Go runtime never sees.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// asks the kernel to lock it into RAM (mlock) and to exclude it from
// core dumps (MADV_DONTDUMP). On Close the memory is zeroed and
// unmapped. Because the garbage collector never copies the region, a
// key that has been closed is gone.
//
// Locking is best effort: hosts with a small RLIMIT_MEMLOCK still get a
// heap-external, zero-on-close buffer, and [Buffer.Locked] reports
// whether the lock took.
//
// Constructors:
//
//   - [New] -- allocates a zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//   - [ReadFromPath] -- reads a passphrase file (or stdin for "-")
//   - [ReadLine] -- reads the first line of a reader, such as a pipe
//   - [ReadFromEnv] -- reads a passphrase from an environment variable
//
// [Zero] clears ordinary heap slices that briefly held secret bytes.
package secret
