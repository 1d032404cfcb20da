// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
)

func TestSumHex(t *testing.T) {
	// Known digest of the empty string.
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := SumHex(nil); got != empty {
		t.Errorf("SumHex(nil) = %s, want %s", got, empty)
	}

	source := []byte("def f(x):\n    return x\n")
	want := sha256.Sum256(source)
	if got := SumHex(source); got != FormatDigest(want) {
		t.Errorf("SumHex = %s, want %x", got, want)
	}
}

func TestHashFile(t *testing.T) {
	content := []byte("print('hello')\n")
	path := filepath.Join(t.TempDir(), "module.py")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if got != Sum(content) {
		t.Errorf("HashFile = %x, want %x", got, Sum(content))
	}
}

func TestHashFileLarge(t *testing.T) {
	content := make([]byte, 256*1024)
	for i := range content {
		content[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), "large")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if got != sha256.Sum256(content) {
		t.Error("streamed digest differs from in-memory digest")
	}
}

func TestHashFileNonexistent(t *testing.T) {
	if _, err := HashFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("HashFile should fail for nonexistent file")
	}
}

func TestParseDigestRoundTrip(t *testing.T) {
	digest := Sum([]byte("model"))
	parsed, err := ParseDigest(FormatDigest(digest))
	if err != nil {
		t.Fatalf("ParseDigest: %v", err)
	}
	if parsed != digest {
		t.Errorf("round trip mismatch")
	}

	if _, err := ParseDigest("zz"); err == nil {
		t.Error("ParseDigest should reject invalid hex")
	}
	if _, err := ParseDigest("abcd"); err == nil {
		t.Error("ParseDigest should reject short digests")
	}
}

func TestEqual(t *testing.T) {
	digest := SumHex([]byte("x"))
	upper := ""
	for _, r := range digest {
		if r >= 'a' && r <= 'f' {
			r -= 'a' - 'A'
		}
		upper += string(r)
	}
	if !Equal(digest, upper) {
		t.Error("Equal should ignore case")
	}
	if Equal(digest, SumHex([]byte("y"))) {
		t.Error("different digests compared equal")
	}
}
