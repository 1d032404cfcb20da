// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/quenyan/lib/codec"
	"github.com/bureau-foundation/quenyan/lib/version"
)

// Associated data prefixes. Archives written before metadata was
// authenticated bind the fixed legacy tag instead.
const (
	metadataTag          = "QYN1-METADATA-v1:"
	LegacyAssociatedData = "QYN1-PACKAGE-v1"
)

// Metadata is the clear-text description of an archive. It travels in
// the wrapper and is authenticated, never encrypted.
type Metadata struct {
	PackageVersion         string `json:"package_version"`
	DictionaryVersion      string `json:"dictionary_version"`
	EncoderVersion         string `json:"encoder_version"`
	SourceLanguage         string `json:"source_language"`
	SourceLanguageVersion  string `json:"source_language_version"`
	SourceHash             string `json:"source_hash"`
	CompressionBackend     string `json:"compression_backend"`
	CompressionModelDigest string `json:"compression_model_digest"`
	SymbolCount            int    `json:"symbol_count"`

	Annotations
}

// Annotations are the optional metadata fields. They are carried
// through migration unchanged, apart from the audit trail which gains
// an entry.
type Annotations struct {
	Timestamp string `json:"timestamp,omitempty"`
	Author    string `json:"author,omitempty"`
	License   string `json:"license,omitempty"`

	KeyProvider string `json:"key_provider,omitempty"`
	KeyID       string `json:"key_id,omitempty"`
	KeyVersion  string `json:"key_version,omitempty"`
	RotationDue string `json:"rotation_due,omitempty"`

	AuditTrail         []AuditEvent   `json:"audit_trail,omitempty"`
	Provenance         map[string]any `json:"provenance,omitempty"`
	IntegritySignature map[string]any `json:"integrity_signature,omitempty"`
}

// AuditEvent is one entry of the metadata audit trail.
type AuditEvent struct {
	Action    string            `json:"action"`
	Timestamp string            `json:"timestamp"`
	Actor     string            `json:"actor,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Canonical returns the sorted-key compact JSON encoding.
func (m *Metadata) Canonical() ([]byte, error) {
	return codec.CanonicalJSON(m)
}

// AssociatedData returns the bytes bound to the ciphertext: the
// metadata tag followed by the canonical encoding.
func (m *Metadata) AssociatedData() ([]byte, error) {
	canonical, err := m.Canonical()
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	return append([]byte(metadataTag), canonical...), nil
}

// Version parses PackageVersion.
func (m *Metadata) Version() (version.Version, error) {
	return version.ParseAny(m.PackageVersion)
}

// Validate checks the required fields.
func (m *Metadata) Validate() error {
	var errs []error
	required := []struct{ name, value string }{
		{"package_version", m.PackageVersion},
		{"dictionary_version", m.DictionaryVersion},
		{"encoder_version", m.EncoderVersion},
		{"compression_backend", m.CompressionBackend},
		{"compression_model_digest", m.CompressionModelDigest},
	}
	for _, field := range required {
		if field.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", field.name))
		}
	}
	if m.SymbolCount < 0 {
		errs = append(errs, fmt.Errorf("symbol_count %d is negative", m.SymbolCount))
	}
	if err := errors.Join(errs...); err != nil {
		return formatErrorf("invalid metadata: %v", err)
	}
	return nil
}

// ParseMetadata decodes metadata JSON. Unknown fields are rejected:
// a field this build would drop on re-encoding would change the
// associated data.
func ParseMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := codec.DecodeStrictJSON(data, &m); err != nil {
		return nil, formatErrorf("malformed metadata: %v", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Metadata) clone() *Metadata {
	clone := *m
	clone.AuditTrail = append([]AuditEvent(nil), m.AuditTrail...)
	return &clone
}
