// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package frame implements the binary framing layer of QYN-1 archives.
//
// An archive is two nested frames. The outer wrapper frame (magic
// "QYN1") carries the encryption envelope as canonical JSON. The inner
// payload frame (magic "MCS\x00") is what the envelope encrypts; its
// body is a sequence of typed sections.
//
// Every frame has the same fixed layout:
//
//	magic      [4]byte
//	major      uint8
//	minor      uint8
//	patch      uint16  big-endian
//	word       uint32  big-endian: features (low 16 bits), flags (high 16 bits)
//	length     uint32  big-endian
//	body       [length]byte
//	crc        uint32  big-endian, CRC-32 (IEEE) of body
//
// Sections inside a payload body use little-endian headers:
//
//	id      uint16
//	flags   uint16
//	length  uint32
//	payload [length]byte
//
// Every structural problem (wrong magic, truncation, CRC mismatch,
// duplicate or unreserved section identifiers, unknown feature bits)
// is reported as a [*FormatError]. Decoding never panics on untrusted
// input.
package frame
