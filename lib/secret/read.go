// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrEmpty is returned when a source holds nothing but whitespace.
var ErrEmpty = errors.New("secret: value is empty")

// ReadFromPath loads a secret from a file, or from the first line of
// stdin when path is "-". The caller owns the returned buffer.
func ReadFromPath(path string) (*Buffer, error) {
	if path == "-" {
		return ReadLine(os.Stdin)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return adopt(content)
}

// ReadLine loads a secret from the first line of r.
func ReadLine(r io.Reader) (*Buffer, error) {
	lines := bufio.NewScanner(r)
	if lines.Scan() {
		// Scanner owns its buffer; copy out before adopt zeroes it.
		return adopt(bytes.Clone(lines.Bytes()))
	}
	if err := lines.Err(); err != nil {
		return nil, fmt.Errorf("secret: reading line: %w", err)
	}
	return nil, ErrEmpty
}

// ReadFromEnv loads a secret from an environment variable. The variable
// itself stays set.
func ReadFromEnv(name string) (*Buffer, error) {
	value, present := os.LookupEnv(name)
	if !present {
		return nil, fmt.Errorf("secret: environment variable %s is not set", name)
	}
	return adopt([]byte(value))
}

// adopt moves the trimmed content of raw into a Buffer and zeroes raw
// whether or not that succeeds.
func adopt(raw []byte) (*Buffer, error) {
	defer Zero(raw)
	value := bytes.TrimSpace(raw)
	if len(value) == 0 {
		return nil, ErrEmpty
	}
	return NewFromBytes(value)
}
