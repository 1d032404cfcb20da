// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyprovider resolves the archive passphrase from the source
// named in the keys section of the configuration and describes that
// source in archive metadata.
//
// Three providers exist:
//
//   - env reads the passphrase from an environment variable
//   - file reads it from a plain file ("-" for the first line of stdin)
//   - age opens a sealed passphrase file with an age identity
//
// Passphrases are returned in mlock'd [secret.Buffer] memory. The
// caller closes the [Key] when done.
package keyprovider

import (
	"fmt"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"github.com/bureau-foundation/quenyan/lib/archive"
	"github.com/bureau-foundation/quenyan/lib/config"
	"github.com/bureau-foundation/quenyan/lib/sealed"
	"github.com/bureau-foundation/quenyan/lib/secret"
)

// Key is a resolved passphrase together with the identifiers recorded
// in archive metadata.
type Key struct {
	Passphrase *secret.Buffer

	Provider    string
	ID          string
	Version     string
	RotationDue string
}

// Bytes returns the passphrase. The slice aliases protected memory and
// is invalid after Close.
func (k *Key) Bytes() []byte {
	return k.Passphrase.Bytes()
}

// Close releases the passphrase memory. Idempotent.
func (k *Key) Close() error {
	if k == nil || k.Passphrase == nil {
		return nil
	}
	return k.Passphrase.Close()
}

// Annotate records the key identifiers in archive annotations. The
// passphrase itself is never written.
func (k *Key) Annotate(annotations *archive.Annotations) {
	annotations.KeyProvider = k.Provider
	annotations.KeyID = k.ID
	annotations.KeyVersion = k.Version
	annotations.RotationDue = k.RotationDue
}

// Resolve reads the passphrase from the configured provider.
func Resolve(keys config.KeysConfig) (*Key, error) {
	var (
		key *Key
		err error
	)
	switch keys.Provider {
	case config.ProviderEnv, "":
		key, err = fromEnv(keys.PassphraseEnv)
	case config.ProviderFile:
		key, err = fromFile(keys.PassphraseFile)
	case config.ProviderAge:
		key, err = fromAge(keys.PassphraseFile, keys.AgeIdentityFile)
	default:
		return nil, fmt.Errorf("unknown key provider %q", keys.Provider)
	}
	if err != nil {
		return nil, err
	}
	key.Version = keys.KeyVersion
	key.RotationDue = keys.RotationDue
	return key, nil
}

// FromFile reads a passphrase from path with the file provider. The
// CLI uses it for --passphrase-file.
func FromFile(path string) (*Key, error) {
	return fromFile(path)
}

func fromEnv(name string) (*Key, error) {
	if name == "" {
		return nil, fmt.Errorf("env key provider: no variable configured")
	}
	buffer, err := secret.ReadFromEnv(name)
	if err != nil {
		return nil, fmt.Errorf("env key provider: %w", err)
	}
	return &Key{Passphrase: buffer, Provider: config.ProviderEnv, ID: name}, nil
}

func fromFile(path string) (*Key, error) {
	if path == "" {
		return nil, fmt.Errorf("file key provider: no path configured")
	}
	buffer, err := secret.ReadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("file key provider: %w", err)
	}
	id := "stdin"
	if path != "-" {
		id = filepath.Base(path)
	}
	return &Key{Passphrase: buffer, Provider: config.ProviderFile, ID: id}, nil
}

// fromAge opens a sealed passphrase file. The key ID is the recipient
// that the identity decrypts for.
func fromAge(path, identityPath string) (*Key, error) {
	if path == "" || identityPath == "" {
		return nil, fmt.Errorf("age key provider: passphrase file and identity file are required")
	}
	identity, err := sealed.ReadIdentity(identityPath)
	if err != nil {
		return nil, fmt.Errorf("age key provider: %w", err)
	}
	defer identity.Close()

	parsed, err := age.ParseX25519Identity(strings.TrimSpace(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("age key provider: parsing identity: %w", err)
	}

	buffer, err := sealed.ReadFile(path, identity)
	if err != nil {
		return nil, fmt.Errorf("age key provider: %w", err)
	}
	return &Key{
		Passphrase: buffer,
		Provider:   config.ProviderAge,
		ID:         parsed.Recipient().String(),
	}, nil
}
