// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer is a fixed-size region of anonymous memory mapped outside the
// Go heap. Do not copy a Buffer. Reading a closed Buffer panics.
type Buffer struct {
	mu     sync.Mutex
	region []byte
	size   int
	pinned bool
	closed bool
}

// New maps a zero-filled Buffer of size bytes. Close releases it.
func New(size int) (*Buffer, error) {
	if size < 1 {
		return nil, fmt.Errorf("secret: size %d is not positive", size)
	}
	region, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mapping %d bytes: %w", size, err)
	}
	buffer := &Buffer{region: region, size: size}
	// Both calls may be refused (RLIMIT_MEMLOCK, old kernels); the
	// region is zeroed on Close regardless.
	buffer.pinned = unix.Mlock(region) == nil
	_ = unix.Madvise(region, unix.MADV_DONTDUMP)
	return buffer, nil
}

// NewFromBytes moves source into a new Buffer, zeroing source.
func NewFromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, errors.New("secret: source is empty")
	}
	buffer, err := New(len(source))
	if err != nil {
		return nil, err
	}
	copy(buffer.region, source)
	Zero(source)
	return buffer, nil
}

func (b *Buffer) view() []byte {
	if b.closed {
		panic("secret: buffer used after Close")
	}
	return b.region[:b.size]
}

// Bytes exposes the secret in place. The slice is invalid after Close.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.view()
}

// String copies the secret onto the heap, for APIs that only take a
// string (age identities, for one).
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.view())
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Locked reports whether mlock succeeded, keeping the region out of swap.
func (b *Buffer) Locked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pinned
}

// Close zeroes and unmaps the region. Later calls do nothing.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	Zero(b.region)

	var errs []error
	if b.pinned {
		if err := unix.Munlock(b.region); err != nil {
			errs = append(errs, fmt.Errorf("secret: munlock: %w", err))
		}
	}
	if err := unix.Munmap(b.region); err != nil {
		errs = append(errs, fmt.Errorf("secret: munmap: %w", err))
	}
	b.region = nil
	return errors.Join(errs...)
}

// Zero clears data in place.
func Zero(data []byte) {
	clear(data)
}
