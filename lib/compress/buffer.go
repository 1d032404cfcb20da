// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// ChunkedTokenBuffer is an append-only token buffer that spills to a
// temporary file whenever more than a bounded number of tokens are held
// in memory. Once [ChunkedTokenBuffer.Close] is called the buffer is
// read-only; consumers iterate it forward in chunks through
// [ChunkedTokenBuffer.Chunks]. [ChunkedTokenBuffer.Dispose] removes the
// spill file.
//
// A buffer has a single owner and is not safe for concurrent use.
type ChunkedTokenBuffer struct {
	chunkSize   int
	maxBuffered int

	pending []int
	count   int
	file    *os.File
	writer  *bufio.Writer
	closed  bool
}

// NewChunkedTokenBuffer creates a buffer whose spill file lives in
// directory (the system temporary directory when empty). maxBuffered
// defaults to chunkSize when zero.
func NewChunkedTokenBuffer(directory string, chunkSize, maxBuffered int) (*ChunkedTokenBuffer, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if maxBuffered == 0 {
		maxBuffered = chunkSize
	}
	if maxBuffered < 0 {
		return nil, fmt.Errorf("max buffered tokens must be positive, got %d", maxBuffered)
	}
	file, err := os.CreateTemp(directory, "qyn-tokens-*.bin")
	if err != nil {
		return nil, fmt.Errorf("creating token spill file: %w", err)
	}
	return &ChunkedTokenBuffer{
		chunkSize:   chunkSize,
		maxBuffered: maxBuffered,
		pending:     make([]int, 0, maxBuffered),
		file:        file,
		writer:      bufio.NewWriter(file),
	}, nil
}

// Append adds one token. Tokens must fit in 32 bits.
func (b *ChunkedTokenBuffer) Append(token int) error {
	if b.closed {
		return errors.New("append to closed token buffer")
	}
	if token < 0 || uint64(token) > math.MaxUint32 {
		return fmt.Errorf("token %d does not fit the spill format", token)
	}
	b.pending = append(b.pending, token)
	b.count++
	if len(b.pending) >= b.maxBuffered {
		return b.flush()
	}
	return nil
}

// Len returns the number of tokens appended.
func (b *ChunkedTokenBuffer) Len() int { return b.count }

// Path returns the spill file path.
func (b *ChunkedTokenBuffer) Path() string { return b.file.Name() }

func (b *ChunkedTokenBuffer) flush() error {
	var word [4]byte
	for _, token := range b.pending {
		binary.LittleEndian.PutUint32(word[:], uint32(token))
		if _, err := b.writer.Write(word[:]); err != nil {
			return fmt.Errorf("spilling tokens: %w", err)
		}
	}
	b.pending = b.pending[:0]
	return nil
}

// Close flushes buffered tokens to the spill file. Closing twice is a
// no-op.
func (b *ChunkedTokenBuffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.flush(); err != nil {
		b.file.Close()
		return err
	}
	if err := b.writer.Flush(); err != nil {
		b.file.Close()
		return fmt.Errorf("flushing token spill file: %w", err)
	}
	if err := b.file.Close(); err != nil {
		return fmt.Errorf("closing token spill file: %w", err)
	}
	return nil
}

// Dispose removes the spill file, closing the buffer first if needed.
func (b *ChunkedTokenBuffer) Dispose() error {
	closeErr := b.Close()
	if err := os.Remove(b.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token spill file: %w", err)
	}
	return closeErr
}

// Chunks closes the buffer and returns a forward-only reader over the
// spilled tokens. The reader must be closed by the caller.
func (b *ChunkedTokenBuffer) Chunks() (*ChunkReader, error) {
	if err := b.Close(); err != nil {
		return nil, err
	}
	file, err := os.Open(b.file.Name())
	if err != nil {
		return nil, fmt.Errorf("opening token spill file: %w", err)
	}
	return &ChunkReader{file: file, reader: bufio.NewReader(file), defaultSize: b.chunkSize}, nil
}

// Tokens reads every token into memory.
func (b *ChunkedTokenBuffer) Tokens() ([]int, error) {
	reader, err := b.Chunks()
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	tokens := make([]int, 0, b.count)
	for {
		chunk, err := reader.NextChunk(0)
		if errors.Is(err, io.EOF) {
			return tokens, nil
		}
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, chunk...)
	}
}

// ChunkReader reads spilled tokens in chunks. It implements
// [TokenSource].
type ChunkReader struct {
	file        *os.File
	reader      *bufio.Reader
	defaultSize int
}

// NextChunk returns up to size tokens (the buffer's chunk size when
// size is zero) or io.EOF after the last token.
func (r *ChunkReader) NextChunk(size int) ([]int, error) {
	if size <= 0 {
		size = r.defaultSize
	}
	raw := make([]byte, size*4)
	read, err := io.ReadFull(r.reader, raw)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading token spill file: %w", err)
	}
	if read == 0 {
		return nil, io.EOF
	}
	if read%4 != 0 {
		return nil, fmt.Errorf("token spill file truncated mid-token")
	}
	tokens := make([]int, read/4)
	for index := range tokens {
		tokens[index] = int(binary.LittleEndian.Uint32(raw[index*4:]))
	}
	return tokens, nil
}

// Close releases the underlying file.
func (r *ChunkReader) Close() error { return r.file.Close() }
