// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress implements the lossless token-stream compression
// backends used by QYN-1 archives.
//
// A [Backend] turns a stream of dictionary indices into bytes and back.
// Every backend derives a serialisable [Model] from the tokens it will
// encode; the model travels inside the archive so that decoding never
// regenerates probabilities from decoded output. Backends are a closed
// set looked up by name with [Lookup]:
//
//   - "rans": table-based range asymmetric numeral system coding with
//     precision between 8 and 16 bits. Supports the adaptive, static
//     and hybrid [Mode]s.
//   - "chunked-rans": rANS with an independent frequency table per
//     fixed-size chunk. Accepts a [TokenSource] so that token streams
//     spilled to disk by [ChunkedTokenBuffer] never need to be loaded
//     whole.
//   - "fse": rANS over raw symbol counts at a configurable table log.
//   - "zstd" and "lz4": general-purpose byte compressors applied to
//     the uvarint-packed token stream.
//
// All decoding failures are reported as [*Error]. Decoders validate the
// model against the data before allocating and never return partial
// output.
package compress
