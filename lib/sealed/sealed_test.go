// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func generate(t *testing.T) *Keypair {
	t.Helper()
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })
	return keypair
}

func TestGenerateKeypair(t *testing.T) {
	keypair := generate(t)
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("public key %q lacks age1 prefix", keypair.PublicKey)
	}
	if err := ParsePrivateKey(keypair.PrivateKey); err != nil {
		t.Errorf("ParsePrivateKey: %v", err)
	}
	if err := ParsePublicKey(keypair.PublicKey); err != nil {
		t.Errorf("ParsePublicKey: %v", err)
	}
}

func TestSealOpen(t *testing.T) {
	operator := generate(t)
	escrow := generate(t)

	ciphertext, err := Seal([]byte("archive passphrase"), []string{operator.PublicKey, escrow.PublicKey})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	for name, keypair := range map[string]*Keypair{"operator": operator, "escrow": escrow} {
		recovered, err := Open(ciphertext, keypair.PrivateKey)
		if err != nil {
			t.Fatalf("Open(%s): %v", name, err)
		}
		if recovered.String() != "archive passphrase" {
			t.Errorf("Open(%s) = %q", name, recovered.String())
		}
		recovered.Close()
	}
}

func TestOpen_WrongKey(t *testing.T) {
	owner := generate(t)
	stranger := generate(t)

	ciphertext, err := Seal([]byte("secret"), []string{owner.PublicKey})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(ciphertext, stranger.PrivateKey); err == nil {
		t.Fatal("Open with the wrong identity should fail")
	}
}

func TestSeal_Validation(t *testing.T) {
	keypair := generate(t)
	if _, err := Seal([]byte("x"), nil); err == nil {
		t.Error("Seal with no recipients should fail")
	}
	if _, err := Seal(nil, []string{keypair.PublicKey}); err == nil {
		t.Error("Seal with an empty passphrase should fail")
	}
	if _, err := Seal([]byte("x"), []string{"age1notakey"}); err == nil {
		t.Error("Seal with an invalid recipient should fail")
	}
}

func TestOpen_InvalidBase64(t *testing.T) {
	keypair := generate(t)
	if _, err := Open("!!not base64!!", keypair.PrivateKey); err == nil {
		t.Error("Open should reject invalid base64")
	}
}

func TestWriteReadFile(t *testing.T) {
	keypair := generate(t)
	directory := t.TempDir()
	path := filepath.Join(directory, "passphrase.sealed")

	if err := WriteFile(path, []byte("from a file"), []string{keypair.PublicKey}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("sealed file mode = %v, want 0600", info.Mode().Perm())
	}

	identityPath := filepath.Join(directory, "identity.txt")
	identityFile := "# created: test\n# public key: " + keypair.PublicKey + "\n" + keypair.PrivateKey.String() + "\n"
	if err := os.WriteFile(identityPath, []byte(identityFile), 0o600); err != nil {
		t.Fatalf("WriteFile identity: %v", err)
	}
	identity, err := ReadIdentity(identityPath)
	if err != nil {
		t.Fatalf("ReadIdentity: %v", err)
	}
	defer identity.Close()

	recovered, err := ReadFile(path, identity)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	defer recovered.Close()
	if recovered.String() != "from a file" {
		t.Errorf("ReadFile = %q", recovered.String())
	}
}

func TestReadFile_RejectsForeignFormat(t *testing.T) {
	keypair := generate(t)
	path := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(path, []byte("just a passphrase\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ReadFile(path, keypair.PrivateKey); err == nil {
		t.Error("ReadFile should reject files without the sealed header")
	}
}

func TestReadIdentity_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, []byte("# nothing here\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ReadIdentity(path); err == nil {
		t.Error("ReadIdentity should fail without an AGE-SECRET-KEY line")
	}
}
