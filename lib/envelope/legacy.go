// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/bureau-foundation/quenyan/lib/secret"
)

func deriveLegacy(passphrase, salt []byte, rounds int) (*secret.Buffer, error) {
	key, err := secret.NewFromBytes(pbkdf2.Key(passphrase, salt, rounds, KeySize, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("protecting cipher key: %w", err)
	}
	return key, nil
}

func encryptLegacy(plaintext, passphrase, associatedData []byte, random io.Reader) (*Result, error) {
	salt, err := randomBytes(random, SaltSize)
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(random, NonceSize)
	if err != nil {
		return nil, err
	}
	key, err := deriveLegacy(passphrase, salt, PBKDF2Rounds)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	ciphertext, tag, err := seal(key.Bytes(), nonce, plaintext, associatedData)
	if err != nil {
		return nil, err
	}
	return &Result{
		Nonce:         nonce,
		Salt:          salt,
		Ciphertext:    ciphertext,
		Tag:           tag,
		Version:       VersionLegacy,
		AEAD:          AEADChaCha20Poly1305,
		KDF:           KDFPBKDF2,
		KDFParameters: map[string]int{"rounds": PBKDF2Rounds},
	}, nil
}

func decryptLegacy(result *Result, passphrase, associatedData []byte) ([]byte, error) {
	if result.KDF != "" && result.KDF != KDFPBKDF2 {
		return nil, fmt.Errorf("%w: unsupported KDF %q", ErrDecrypt, result.KDF)
	}
	rounds := PBKDF2Rounds
	if stored, ok := result.KDFParameters["rounds"]; ok {
		rounds = stored
	}
	if rounds < 1 || rounds > maxRounds || len(result.Salt) == 0 {
		return nil, ErrDecrypt
	}
	key, err := deriveLegacy(passphrase, result.Salt, rounds)
	if err != nil {
		return nil, ErrDecrypt
	}
	defer key.Close()
	return open(key.Bytes(), result.Nonce, result.Ciphertext, result.Tag, associatedData)
}
