// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive assembles encoded token streams into encrypted QYN-1
// archives and reads them back.
//
// An archive is two nested frames. The outer wrapper frame (magic
// "QYN1") holds canonical JSON with the encryption envelope and the
// package [Metadata] in clear text. The ciphertext decrypts to the
// payload frame (magic "MCS\0"), whose body is a sequence of sections:
//
//	0x0001 stream header   dictionary, encoder and language versions,
//	                       symbol count, SHA-256 of the source
//	0x0002 compression     backend name, model, extras
//	0x0003 tokens          compressed token stream
//	0x0004 string table    identifier and string values
//	0x0005 payloads        payload record (entries, channel bits,
//	                       structured channel)
//	0x0006 source map      optional
//	0x0007 metadata        copy of the wrapper metadata
//	0x0101..0x0105         identifier, string, number, count and flag
//	                       channels
//
// The metadata is bound to the ciphertext as associated data, so it can
// be read by [Inspect] without the passphrase while any change to it
// makes decryption fail.
//
// [Decode] checks the declared version against the supported window
// before it parses the wrapper JSON or touches the envelope. Archives
// written before the section layout ([LayoutJSONBody],
// [LayoutJSONWrapper]) remain readable.
//
// Every error returned by this package can be mapped to a [Kind] with
// [Classify].
package archive
