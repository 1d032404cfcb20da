// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"

	"github.com/bureau-foundation/quenyan/lib/secret"
)

// fileHeader is the first line of a sealed passphrase file.
const fileHeader = "# qyn sealed passphrase v1"

// Keypair holds an age x25519 keypair. The caller must call Close when
// the keypair is no longer needed.
type Keypair struct {
	// PrivateKey is the AGE-SECRET-KEY-1... identity in protected memory.
	PrivateKey *secret.Buffer
	// PublicKey is the age1... recipient string.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair generates a new age x25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// Seal encrypts passphrase to the given age recipients and returns
// standard base64 ciphertext. At least one recipient is required.
func Seal(passphrase []byte, recipientKeys []string) (string, error) {
	if len(recipientKeys) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}
	if len(passphrase) == 0 {
		return "", fmt.Errorf("passphrase is empty")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(passphrase); err != nil {
		return "", fmt.Errorf("writing passphrase to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// Open decrypts base64 ciphertext produced by Seal. The identity is
// borrowed and not closed. The caller must close the returned buffer.
func Open(ciphertext string, identity *secret.Buffer) (*secret.Buffer, error) {
	parsed, err := age.ParseX25519Identity(identity.String())
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return nil, fmt.Errorf("decoding base64 ciphertext: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(raw), parsed)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted passphrase: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("sealed passphrase is empty")
	}
	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("protecting decrypted passphrase: %w", err)
	}
	return buffer, nil
}

// WriteFile seals passphrase to recipients and writes the sealed file
// at path with mode 0600. The recipients are listed in comments so an
// operator can tell who can open the file.
func WriteFile(path string, passphrase []byte, recipientKeys []string) error {
	ciphertext, err := Seal(passphrase, recipientKeys)
	if err != nil {
		return err
	}
	var content strings.Builder
	content.WriteString(fileHeader + "\n")
	for _, recipient := range recipientKeys {
		content.WriteString("# recipient: " + recipient + "\n")
	}
	content.WriteString(ciphertext + "\n")
	if err := os.WriteFile(path, []byte(content.String()), 0o600); err != nil {
		return fmt.Errorf("writing sealed passphrase %s: %w", path, err)
	}
	return nil
}

// ReadFile opens the sealed passphrase file at path with identity.
func ReadFile(path string, identity *secret.Buffer) (*secret.Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sealed passphrase %s: %w", path, err)
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != fileHeader {
		return nil, fmt.Errorf("%s is not a sealed passphrase file", path)
	}
	var payload strings.Builder
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		payload.WriteString(line)
	}
	if payload.Len() == 0 {
		return nil, fmt.Errorf("%s contains no ciphertext", path)
	}
	return Open(payload.String(), identity)
}

// ReadIdentity loads the first AGE-SECRET-KEY-1 line of an age identity
// file, as written by age-keygen.
func ReadIdentity(path string) (*secret.Buffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening identity file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if bytes.HasPrefix(line, []byte("AGE-SECRET-KEY-1")) {
			key, err := secret.NewFromBytes(bytes.Clone(line))
			secret.Zero(line)
			if err != nil {
				return nil, fmt.Errorf("protecting identity: %w", err)
			}
			return key, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
	return nil, fmt.Errorf("%s contains no age identity", path)
}

// ParsePublicKey validates an age x25519 public key string.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}

// ParsePrivateKey validates an age x25519 private key.
func ParsePrivateKey(privateKey *secret.Buffer) error {
	if _, err := age.ParseX25519Identity(privateKey.String()); err != nil {
		return fmt.Errorf("invalid age private key: %w", err)
	}
	return nil
}
