// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/quenyan/lib/compress"
	"github.com/bureau-foundation/quenyan/lib/envelope"
	"github.com/bureau-foundation/quenyan/lib/morphcodec"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qyn.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Compression.Backend != compress.NameRANS {
		t.Errorf("expected backend=rans, got %s", cfg.Compression.Backend)
	}
	if cfg.Encryption.Version != envelope.VersionCurrent {
		t.Errorf("expected encryption version %d, got %d", envelope.VersionCurrent, cfg.Encryption.Version)
	}
	if cfg.Keys.Provider != ProviderEnv || cfg.Keys.PassphraseEnv != "QYN_PASSPHRASE" {
		t.Errorf("unexpected key defaults: %+v", cfg.Keys)
	}
	if cfg.Limits.MaxSymbols == 0 {
		t.Error("expected a non-zero default symbol limit")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_WithoutQynConfig(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Compression.Backend != compress.DefaultBackend {
		t.Errorf("expected defaults, got backend %s", cfg.Compression.Backend)
	}
}

func TestLoad_WithQynConfig(t *testing.T) {
	path := writeConfig(t, `
environment: ci
root: /test/root
compression:
  backend: zstd
  zstd_level: 9
codec:
  source_map: true
project:
  workers: 2
`)
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != CI {
		t.Errorf("expected environment=ci, got %s", cfg.Environment)
	}
	if cfg.Root != "/test/root" {
		t.Errorf("expected root=/test/root, got %s", cfg.Root)
	}
	if cfg.Compression.Backend != compress.NameZstd || cfg.Compression.ZstdLevel != 9 {
		t.Errorf("unexpected compression: %+v", cfg.Compression)
	}
	if !cfg.Codec.SourceMap {
		t.Error("expected source_map=true")
	}
	// Unset fields keep their defaults.
	if cfg.Keys.Provider != ProviderEnv || len(cfg.Project.Include) != 1 {
		t.Errorf("defaults lost: keys=%+v project=%+v", cfg.Keys, cfg.Project)
	}
	if cfg.Project.Workers != 2 {
		t.Errorf("expected workers=2, got %d", cfg.Project.Workers)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: ci
compression:
  backend: rans
ci:
  compression:
    backend: lz4
  limits:
    max_symbols: 1000
  project:
    workers: 8
production:
  compression:
    backend: fse
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Compression.Backend != compress.NameLZ4 {
		t.Errorf("expected ci override backend=lz4, got %s", cfg.Compression.Backend)
	}
	if cfg.Limits.MaxSymbols != 1000 {
		t.Errorf("expected max_symbols=1000, got %d", cfg.Limits.MaxSymbols)
	}
	if cfg.Limits.MaxPayloadBytes == 0 {
		t.Error("limits not named by the override were cleared")
	}
	if cfg.Project.Workers != 8 {
		t.Errorf("expected workers=8, got %d", cfg.Project.Workers)
	}
}

func TestProductionDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: production
encryption:
  version: 1
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if !cfg.Codec.Strict {
		t.Error("expected strict codec in production")
	}
	if cfg.Encryption.Version != envelope.VersionCurrent {
		t.Errorf("expected production to refuse the legacy envelope, got version %d", cfg.Encryption.Version)
	}
	if cfg.Policy() != morphcodec.PolicyStrict {
		t.Error("expected strict policy")
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("QYN_TEST_KEYS", "/secrets")

	tests := []struct {
		name     string
		input    string
		vars     map[string]string
		expected string
	}{
		{
			name:     "simple var",
			input:    "${QYN_ROOT}/keys",
			vars:     map[string]string{"QYN_ROOT": "/var/qyn"},
			expected: "/var/qyn/keys",
		},
		{
			name:     "var with default used",
			input:    "${MISSING:-/default}/path",
			vars:     map[string]string{},
			expected: "/default/path",
		},
		{
			name:     "var with default not used",
			input:    "${QYN_ROOT:-/default}/path",
			vars:     map[string]string{"QYN_ROOT": "/actual"},
			expected: "/actual/path",
		},
		{
			name:     "environment fallback",
			input:    "${QYN_TEST_KEYS}/age.txt",
			vars:     map[string]string{},
			expected: "/secrets/age.txt",
		},
		{
			name:     "no vars",
			input:    "/plain/path",
			vars:     map[string]string{},
			expected: "/plain/path",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := expandVars(test.input, test.vars)
			if result != test.expected {
				t.Errorf("expandVars(%q) = %q, expected %q", test.input, result, test.expected)
			}
		})
	}
}

func TestLoadFile_ExpandsKeyPaths(t *testing.T) {
	path := writeConfig(t, `
root: /srv/qyn
keys:
  provider: age
  passphrase_file: ${QYN_ROOT}/passphrase.age
  age_identity_file: ${QYN_ROOT}/identity.txt
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Keys.PassphraseFile != "/srv/qyn/passphrase.age" {
		t.Errorf("passphrase_file = %s", cfg.Keys.PassphraseFile)
	}
	if cfg.Keys.AgeIdentityFile != "/srv/qyn/identity.txt" {
		t.Errorf("age_identity_file = %s", cfg.Keys.AgeIdentityFile)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Environment = "staging"
	cfg.Compression.Backend = "brotli"
	cfg.Compression.ModelMode = "learned"
	cfg.Compression.PrecisionBits = 30
	cfg.Encryption.Version = 3
	cfg.Keys.Provider = ProviderFile
	cfg.Project.Workers = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"invalid environment",
		"compression.backend",
		"compression.model_mode",
		"compression.precision_bits",
		"encryption.version",
		"keys.passphrase_file",
		"project.workers",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("validation error does not mention %s: %v", want, err)
		}
	}
}

func TestArchiveOptions(t *testing.T) {
	cfg := Default()
	cfg.Compression.Backend = compress.NameChunkedRANS
	cfg.Compression.ModelMode = "hybrid"
	cfg.Compression.ChunkSize = 128
	cfg.Compression.TokenOptimisation = true
	cfg.Encryption.Argon2 = Argon2Config{TimeCost: 2, MemoryKiB: 1024, Parallelism: 1}

	options, err := cfg.ArchiveOptions()
	if err != nil {
		t.Fatalf("ArchiveOptions() failed: %v", err)
	}
	if options.Backend != compress.NameChunkedRANS || options.ModelMode != compress.ModeHybrid {
		t.Errorf("unexpected backend selection: %s %s", options.Backend, options.ModelMode)
	}
	if options.Compression.ChunkSize != 128 || !options.Optimise {
		t.Errorf("unexpected compression options: %+v optimise=%v", options.Compression, options.Optimise)
	}
	if options.Encryption.Argon2.MemoryCost != 1024 || options.Encryption.Argon2.TimeCost != 2 {
		t.Errorf("unexpected argon2 parameters: %+v", options.Encryption.Argon2)
	}

	cfg.Compression.ModelMode = "learned"
	if _, err := cfg.ArchiveOptions(); err == nil {
		t.Error("expected error for an unknown model mode")
	}
}
