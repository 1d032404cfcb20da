// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// ContentID is a 32-byte BLAKE3 keyed digest.
type ContentID [32]byte

type domainKey [32]byte

// Domain separation keys: the ASCII domain name, zero-padded.
var (
	archiveDomainKey = domainKey{
		'q', 'y', 'n', '.', 'p', 'r', 'o', 'j', 'e', 'c', 't', '.',
		'a', 'r', 'c', 'h', 'i', 'v', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	treeDomainKey = domainKey{
		'q', 'y', 'n', '.', 'p', 'r', 'o', 'j', 'e', 'c', 't', '.',
		't', 'r', 'e', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// HashArchive returns the content ID of archive bytes.
func HashArchive(data []byte) ContentID {
	return keyedHash(archiveDomainKey, data)
}

// TreeID returns the Merkle root of the given IDs. Pairs are hashed in
// the tree domain; an odd node at the end of a level is promoted
// unchanged. The ID of an empty tree is the tree-domain hash of no
// input.
func TreeID(ids []ContentID) ContentID {
	if len(ids) == 0 {
		return keyedHash(treeDomainKey, nil)
	}
	hasher, err := blake3.NewKeyed(treeDomainKey[:])
	if err != nil {
		panic("project: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	level := make([]ContentID, len(ids))
	copy(level, ids)

	var combined [64]byte
	for len(level) > 1 {
		next := make([]ContentID, 0, (len(level)+1)/2)
		for index := 0; index+1 < len(level); index += 2 {
			copy(combined[:32], level[index][:])
			copy(combined[32:], level[index+1][:])
			hasher.Reset()
			hasher.Write(combined[:])
			var parent ContentID
			copy(parent[:], hasher.Sum(nil))
			next = append(next, parent)
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0]
}

func keyedHash(key domainKey, data []byte) ContentID {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("project: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var id ContentID
	copy(id[:], hasher.Sum(nil))
	return id
}

// String returns the lowercase hex encoding.
func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseContentID parses a 64-character hex content ID.
func ParseContentID(text string) (ContentID, error) {
	var id ContentID
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return id, fmt.Errorf("parsing content ID: %w", err)
	}
	if len(decoded) != len(id) {
		return id, fmt.Errorf("content ID is %d bytes, want %d", len(decoded), len(id))
	}
	copy(id[:], decoded)
	return id, nil
}

// MarshalText implements encoding.TextMarshaler.
func (id ContentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ContentID) UnmarshalText(text []byte) error {
	parsed, err := ParseContentID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
