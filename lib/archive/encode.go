// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bureau-foundation/quenyan/lib/codec"
	"github.com/bureau-foundation/quenyan/lib/compress"
	"github.com/bureau-foundation/quenyan/lib/envelope"
	"github.com/bureau-foundation/quenyan/lib/frame"
	"github.com/bureau-foundation/quenyan/lib/morphcodec"
	"github.com/bureau-foundation/quenyan/lib/morpheme"
	"github.com/bureau-foundation/quenyan/lib/payload"
	"github.com/bureau-foundation/quenyan/lib/stringtable"
	"github.com/bureau-foundation/quenyan/lib/version"
)

// Options configure [Encode].
type Options struct {
	// Backend names the compression backend; empty selects
	// compress.DefaultBackend.
	Backend string
	// ModelMode selects static, adaptive or hybrid models for backends
	// that support them. Empty leaves the backend's default and writes
	// no model mode into the extras.
	ModelMode   compress.Mode
	Compression compress.Options
	// Optimise remaps tokens to a dense frequency-ranked alphabet
	// before compression.
	Optimise bool

	// Versions is the reader's preference list, negotiated against the
	// versions this build writes. Empty means version.Current.
	Versions []version.Version
	Layout   Layout

	Encryption envelope.Options
	// Annotations fill the optional metadata fields. Author, License
	// and Timestamp default to the stream's.
	Annotations Annotations

	Logger *slog.Logger
}

func discardLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}

// Encode assembles stream into an archive encrypted under passphrase.
// Everything except the envelope's salts and nonce is a deterministic
// function of the stream and options.
func Encode(stream *morphcodec.EncodedStream, passphrase []byte, options Options) ([]byte, error) {
	logger := discardLogger(options.Logger)
	if stream == nil || stream.Dictionary == nil {
		return nil, errors.New("encoding archive: stream has no dictionary")
	}
	if len(passphrase) == 0 {
		return nil, envelope.ErrEmptyPassphrase
	}
	packageVersion, err := version.Negotiate(options.Versions)
	if err != nil {
		return nil, err
	}
	if err := morpheme.EnsureSupported(stream.DictionaryVersion, packageVersion); err != nil {
		return nil, err
	}

	c, err := assemble(stream, options, packageVersion, logger)
	if err != nil {
		return nil, err
	}
	data, err := seal(c, packageVersion, options.Layout, passphrase, options.Encryption)
	if err != nil {
		return nil, err
	}
	logger.Debug("encoded archive",
		"version", packageVersion.String(),
		"layout", options.Layout.String(),
		"backend", c.backend,
		"symbols", c.symbolCount,
		"bytes", len(data),
	)
	return data, nil
}

// assemble compresses the stream and serialises its parts.
func assemble(stream *morphcodec.EncodedStream, options Options, packageVersion version.Version, logger *slog.Logger) (*contents, error) {
	backendName := options.Backend
	if backendName == "" {
		backendName = compress.DefaultBackend
	}
	backend, err := compress.Lookup(backendName, options.Compression)
	if err != nil {
		return nil, err
	}

	tokens := stream.Tokens
	alphabet := stream.Dictionary.Len()
	var extras *Extras
	if options.Optimise {
		if plan := compress.BuildPlan(tokens); plan != nil {
			if tokens, err = plan.Apply(tokens); err != nil {
				return nil, fmt.Errorf("optimising tokens: %w", err)
			}
			alphabet = plan.AlphabetSize()
			extras = &Extras{Optimisation: plan}
		}
	}
	model, mode, err := compress.PrepareModel(backend, options.ModelMode, tokens, alphabet)
	if err != nil {
		return nil, err
	}
	if options.ModelMode != "" {
		if extras == nil {
			extras = &Extras{}
		}
		extras.ModelMode = string(mode)
	}
	compressed, err := backend.Encode(tokens, model)
	if err != nil {
		return nil, err
	}
	modelJSON, err := model.Canonical()
	if err != nil {
		return nil, fmt.Errorf("encoding model: %w", err)
	}
	digest, err := model.Digest()
	if err != nil {
		return nil, err
	}
	logger.Debug("compressed tokens",
		"backend", backend.Name(),
		"mode", string(mode),
		"symbols", len(tokens),
		"bytes", len(compressed),
	)

	channels := stream.Channels
	if channels == nil {
		channels = &payload.Channels{}
	}
	table := stringtable.Build(channels.TextValues())
	tableBytes, err := table.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding string table: %w", err)
	}
	encodedChannels, err := payload.Encode(channels, table)
	if err != nil {
		return nil, err
	}

	var sourceMap []byte
	if stream.SourceMap != nil {
		if sourceMap, err = stream.SourceMap.Marshal(); err != nil {
			return nil, err
		}
	}

	annotations := options.Annotations
	if annotations.Author == "" {
		annotations.Author = stream.Author
	}
	if annotations.License == "" {
		annotations.License = stream.License
	}
	if annotations.Timestamp == "" && !stream.Timestamp.IsZero() {
		annotations.Timestamp = stream.Timestamp.UTC().Format(time.RFC3339)
	}
	metadata := &Metadata{
		PackageVersion:         packageVersion.String(),
		DictionaryVersion:      stream.DictionaryVersion,
		EncoderVersion:         stream.EncoderVersion,
		SourceLanguage:         stream.SourceLanguage,
		SourceLanguageVersion:  stream.SourceLanguageVersion,
		SourceHash:             stream.SourceHash,
		CompressionBackend:     backend.Name(),
		CompressionModelDigest: digest,
		SymbolCount:            len(stream.Tokens),
		Annotations:            annotations,
	}
	if err := metadata.Validate(); err != nil {
		return nil, err
	}

	return &contents{
		dictionaryVersion:     stream.DictionaryVersion,
		encoderVersion:        stream.EncoderVersion,
		sourceLanguage:        stream.SourceLanguage,
		sourceLanguageVersion: stream.SourceLanguageVersion,
		sourceHash:            stream.SourceHash,
		symbolCount:           len(stream.Tokens),
		backend:               backend.Name(),
		model:                 modelJSON,
		extras:                extras,
		compressed:            compressed,
		stringTable:           tableBytes,
		record:                encodedChannels.Record,
		channels:              encodedChannels.Sections,
		sourceMap:             sourceMap,
		metadata:              metadata,
	}, nil
}

// wrapper is the JSON body of the wrapper frame, and the whole file in
// the unframed layout.
type wrapper struct {
	Version         string    `json:"version"`
	PayloadVersion  string    `json:"payload_version,omitempty"`
	PayloadFeatures []string  `json:"payload_features,omitempty"`
	Metadata        *Metadata `json:"metadata,omitempty"`

	Nonce             []byte         `json:"nonce"`
	Salt              []byte         `json:"salt"`
	HKDFSalt          []byte         `json:"hkdf_salt,omitempty"`
	Ciphertext        []byte         `json:"ciphertext"`
	Tag               []byte         `json:"tag"`
	EncryptionVersion int            `json:"encryption_version,omitempty"`
	AEAD              string         `json:"aead,omitempty"`
	KDF               string         `json:"kdf,omitempty"`
	KDFParameters     map[string]int `json:"kdf_parameters,omitempty"`
}

func (w *wrapper) result() *envelope.Result {
	result := &envelope.Result{
		Nonce:         w.Nonce,
		Salt:          w.Salt,
		HKDFSalt:      w.HKDFSalt,
		Ciphertext:    w.Ciphertext,
		Tag:           w.Tag,
		Version:       w.EncryptionVersion,
		AEAD:          w.AEAD,
		KDF:           w.KDF,
		KDFParameters: w.KDFParameters,
	}
	if result.Version == 0 {
		result.Version = envelope.VersionLegacy
	}
	return result
}

func (w *wrapper) setResult(result *envelope.Result) {
	w.Nonce = result.Nonce
	w.Salt = result.Salt
	w.HKDFSalt = result.HKDFSalt
	w.Ciphertext = result.Ciphertext
	w.Tag = result.Tag
	w.EncryptionVersion = result.Version
	w.AEAD = result.AEAD
	w.KDF = result.KDF
	w.KDFParameters = result.KDFParameters
}

// seal frames, encrypts and wraps assembled contents.
func seal(c *contents, packageVersion version.Version, layout Layout, passphrase []byte, encryption envelope.Options) ([]byte, error) {
	features := c.features()

	if layout == LayoutJSONWrapper {
		plaintext, err := c.legacyJSON(packageVersion.String())
		if err != nil {
			return nil, err
		}
		result, err := envelope.Encrypt(plaintext, passphrase, []byte(LegacyAssociatedData), encryption)
		if err != nil {
			return nil, fmt.Errorf("encrypting payload: %w", err)
		}
		w := wrapper{Version: packageVersion.String()}
		w.setResult(result)
		return codec.CanonicalJSON(w)
	}

	var body []byte
	var flags frame.Flags
	switch layout {
	case LayoutSections:
		sections, err := c.sections()
		if err != nil {
			return nil, err
		}
		if body, err = frame.EncodeSections(sections); err != nil {
			return nil, err
		}
		flags = frame.FlagCanonicalSections
	case LayoutJSONBody:
		var err error
		if body, err = c.legacyJSON(packageVersion.String()); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown archive layout %s", layout)
	}
	payloadFrame, err := frame.Encode(frame.Header{
		Magic:    frame.PayloadMagic,
		Version:  packageVersion,
		Flags:    flags,
		Features: features,
	}, body)
	if err != nil {
		return nil, err
	}

	associatedData, err := c.metadata.AssociatedData()
	if err != nil {
		return nil, err
	}
	result, err := envelope.Encrypt(payloadFrame, passphrase, associatedData, encryption)
	if err != nil {
		return nil, fmt.Errorf("encrypting payload: %w", err)
	}
	w := wrapper{
		Version:         packageVersion.String(),
		PayloadVersion:  packageVersion.String(),
		PayloadFeatures: features.Names(),
		Metadata:        c.metadata,
	}
	w.setResult(result)
	wrapperJSON, err := codec.CanonicalJSON(w)
	if err != nil {
		return nil, fmt.Errorf("encoding wrapper: %w", err)
	}
	return frame.Encode(frame.Header{
		Magic:    frame.WrapperMagic,
		Version:  packageVersion,
		Flags:    frame.FlagEncrypted | frame.FlagMetadataAuthenticated,
		Features: features,
	}, wrapperJSON)
}
