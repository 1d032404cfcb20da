// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"github.com/bureau-foundation/quenyan/lib/codec"
	"github.com/bureau-foundation/quenyan/lib/envelope"
	"github.com/bureau-foundation/quenyan/lib/frame"
	"github.com/bureau-foundation/quenyan/lib/version"
)

// Summary is what can be learned about an archive without the
// passphrase.
type Summary struct {
	// Layout is LayoutJSONWrapper for unframed archives. Framed archives
	// report LayoutSections since the payload layout is only visible
	// after decryption.
	Layout         string    `json:"layout"`
	Framed         bool      `json:"framed"`
	WrapperVersion string    `json:"wrapper_version"`
	PayloadVersion string    `json:"payload_version,omitempty"`
	Features       []string  `json:"features"`
	Flags          uint16    `json:"flags"`
	Metadata       *Metadata `json:"metadata,omitempty"`

	Encryption EncryptionSummary `json:"encryption"`

	TotalBytes      int `json:"total_bytes"`
	CiphertextBytes int `json:"ciphertext_bytes"`
}

// EncryptionSummary describes the envelope parameters.
type EncryptionSummary struct {
	Version       int            `json:"version"`
	AEAD          string         `json:"aead"`
	KDF           string         `json:"kdf"`
	KDFParameters map[string]int `json:"kdf_parameters,omitempty"`
}

// Inspect reads the wrapper of an archive. It applies the same version
// gate as [Decode] and never decrypts.
func Inspect(data []byte) (*Summary, error) {
	summary := &Summary{TotalBytes: len(data), Features: []string{}}
	body := data
	if frame.HasMagic(data, frame.WrapperMagic) {
		header, wrapperBody, remainder, err := frame.Decode(data, frame.WrapperMagic)
		if err != nil {
			return nil, err
		}
		if err := version.EnsureSupported(header.Version); err != nil {
			return nil, err
		}
		if len(remainder) > 0 {
			return nil, formatErrorf("%d bytes of trailing data after wrapper frame", len(remainder))
		}
		if _, err := frame.Validate(header, frame.WrapperMagic); err != nil {
			return nil, err
		}
		summary.Framed = true
		summary.Layout = LayoutSections.String()
		summary.Flags = uint16(header.Flags)
		summary.Features = header.Features.Names()
		body = wrapperBody
	} else {
		summary.Layout = LayoutJSONWrapper.String()
	}

	var w wrapper
	if err := codec.DecodeStrictJSON(body, &w); err != nil {
		return nil, formatErrorf("malformed wrapper: %v", err)
	}
	wrapperVersion, err := version.ParseAny(w.Version)
	if err != nil {
		return nil, err
	}
	if err := version.EnsureSupported(wrapperVersion); err != nil {
		return nil, err
	}
	summary.WrapperVersion = wrapperVersion.String()
	summary.PayloadVersion = w.PayloadVersion
	if w.Metadata != nil {
		if err := w.Metadata.Validate(); err != nil {
			return nil, err
		}
		summary.Metadata = w.Metadata
	}
	result := w.result()
	summary.Encryption = EncryptionSummary{
		Version:       result.Version,
		AEAD:          result.AEAD,
		KDF:           result.KDF,
		KDFParameters: result.KDFParameters,
	}
	if summary.Encryption.KDF == "" && result.Version == envelope.VersionLegacy {
		summary.Encryption.KDF = envelope.KDFPBKDF2
	}
	summary.CiphertextBytes = len(w.Ciphertext)
	return summary, nil
}
