// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/quenyan/lib/secret"
)

// Sizes of the random inputs and outputs, in bytes.
const (
	SaltSize     = 16
	HKDFSaltSize = 16
	NonceSize    = chacha20poly1305.NonceSize
	KeySize      = chacha20poly1305.KeySize
	TagSize      = chacha20poly1305.Overhead
)

// Scheme identifiers recorded in the wrapper.
const (
	VersionLegacy  = 1
	VersionCurrent = 2

	AEADChaCha20Poly1305 = "chacha20poly1305"
	KDFArgon2id          = "argon2id"
	KDFPBKDF2            = "pbkdf2"
)

const hkdfInfo = "qyn1-envelope:v2"

// ErrDecrypt is returned for every decryption failure.
var ErrDecrypt = errors.New("decryption failed: wrong passphrase or corrupted archive")

// ErrEmptyPassphrase is returned when no passphrase is supplied.
var ErrEmptyPassphrase = errors.New("passphrase must be non-empty")

// Result is everything a reader needs, besides the passphrase and the
// associated data, to decrypt a payload.
type Result struct {
	Nonce         []byte
	Salt          []byte
	HKDFSalt      []byte
	Ciphertext    []byte
	Tag           []byte
	Version       int
	AEAD          string
	KDF           string
	KDFParameters map[string]int
}

// Options tune encryption. The zero value selects version 2 with the
// default Argon2id parameters and crypto/rand.
type Options struct {
	// Version selects the scheme; 0 means VersionCurrent.
	Version int
	// Argon2 overrides the Argon2id cost parameters. Zero fields take
	// their defaults.
	Argon2 Argon2Params
	// Random supplies salts and nonces. Nil means crypto/rand.
	Random io.Reader
}

// Encrypt seals plaintext under a key derived from passphrase, binding
// associatedData. The passphrase slice is not modified.
func Encrypt(plaintext, passphrase, associatedData []byte, options Options) (*Result, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	random := options.Random
	if random == nil {
		random = rand.Reader
	}

	switch options.Version {
	case 0, VersionCurrent:
		return encryptCurrent(plaintext, passphrase, associatedData, options.Argon2.withDefaults(), random)
	case VersionLegacy:
		return encryptLegacy(plaintext, passphrase, associatedData, random)
	default:
		return nil, fmt.Errorf("unsupported encryption version %d", options.Version)
	}
}

func encryptCurrent(plaintext, passphrase, associatedData []byte, params Argon2Params, random io.Reader) (*Result, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	salt, err := randomBytes(random, SaltSize)
	if err != nil {
		return nil, err
	}
	hkdfSalt, err := randomBytes(random, HKDFSaltSize)
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(random, NonceSize)
	if err != nil {
		return nil, err
	}

	key, err := deriveCurrent(passphrase, salt, hkdfSalt, params)
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
		HKDFSalt:      hkdfSalt,
		Ciphertext:    ciphertext,
		Tag:           tag,
		Version:       VersionCurrent,
		AEAD:          AEADChaCha20Poly1305,
		KDF:           KDFArgon2id,
		KDFParameters: params.Map(),
	}, nil
}

// Decrypt recovers the plaintext of result. Any failure, including an
// unsupported scheme or out-of-range KDF parameters read from an
// untrusted archive, matches ErrDecrypt under errors.Is.
func Decrypt(result *Result, passphrase, associatedData []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	if result == nil {
		return nil, ErrDecrypt
	}
	if len(result.Nonce) != NonceSize || len(result.Tag) != TagSize {
		return nil, ErrDecrypt
	}
	if result.AEAD != "" && result.AEAD != AEADChaCha20Poly1305 {
		return nil, fmt.Errorf("%w: unsupported AEAD %q", ErrDecrypt, result.AEAD)
	}

	switch result.Version {
	case VersionLegacy:
		return decryptLegacy(result, passphrase, associatedData)
	case VersionCurrent:
	default:
		return nil, fmt.Errorf("%w: unsupported encryption version %d", ErrDecrypt, result.Version)
	}
	if result.KDF != KDFArgon2id {
		return nil, fmt.Errorf("%w: unsupported KDF %q", ErrDecrypt, result.KDF)
	}
	params, err := Argon2ParamsFromMap(result.KDFParameters)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if len(result.Salt) != SaltSize {
		return nil, ErrDecrypt
	}
	hkdfSalt := result.HKDFSalt
	if len(hkdfSalt) == 0 {
		hkdfSalt = result.Salt
	}

	key, err := deriveCurrent(passphrase, result.Salt, hkdfSalt, params)
	if err != nil {
		return nil, ErrDecrypt
	}
	defer key.Close()
	return open(key.Bytes(), result.Nonce, result.Ciphertext, result.Tag, associatedData)
}

// deriveCurrent runs Argon2id followed by HKDF-SHA256.
func deriveCurrent(passphrase, salt, hkdfSalt []byte, params Argon2Params) (*secret.Buffer, error) {
	master, err := secret.NewFromBytes(argon2.IDKey(passphrase, salt,
		params.TimeCost, params.MemoryCost, uint8(params.Parallelism), params.HashLength))
	if err != nil {
		return nil, fmt.Errorf("protecting master key: %w", err)
	}
	defer master.Close()

	key, err := secret.New(KeySize)
	if err != nil {
		return nil, fmt.Errorf("allocating cipher key: %w", err)
	}
	reader := hkdf.New(sha256.New, master.Bytes(), hkdfSalt, []byte(hkdfInfo))
	if _, err := io.ReadFull(reader, key.Bytes()); err != nil {
		key.Close()
		return nil, fmt.Errorf("expanding cipher key: %w", err)
	}
	return key, nil
}

// seal encrypts with ChaCha20-Poly1305 and splits off the tag.
func seal(key, nonce, plaintext, associatedData []byte) ([]byte, []byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, fmt.Errorf("initialising cipher: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, associatedData)
	split := len(sealed) - TagSize
	return sealed[:split:split], sealed[split:], nil
}

func open(key, nonce, ciphertext, tag, associatedData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, ErrDecrypt
	}
	combined := make([]byte, 0, len(ciphertext)+len(tag))
	combined = append(combined, ciphertext...)
	combined = append(combined, tag...)
	plaintext, err := aead.Open(nil, nonce, combined, associatedData)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func randomBytes(random io.Reader, size int) ([]byte, error) {
	buffer := make([]byte, size)
	if _, err := io.ReadFull(random, buffer); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return buffer, nil
}
