// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/quenyan/lib/archive"
	"github.com/bureau-foundation/quenyan/lib/compress"
	"github.com/bureau-foundation/quenyan/lib/envelope"
	"github.com/bureau-foundation/quenyan/lib/morphcodec"
)

// EnvironmentVariable names the configuration file for [Load].
const EnvironmentVariable = "QYN_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local use.
	Development Environment = "development"
	// CI is for build pipelines.
	CI Environment = "ci"
	// Production is for release packaging.
	Production Environment = "production"
)

// Config is the master configuration.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	// Root is the base directory for caches and output. Other paths
	// may refer to it as ${QYN_ROOT}.
	Root string `yaml:"root"`

	Compression CompressionConfig `yaml:"compression"`
	Encryption  EncryptionConfig  `yaml:"encryption"`
	Codec       CodecConfig       `yaml:"codec"`
	Limits      archive.Budget    `yaml:"limits"`
	Keys        KeysConfig        `yaml:"keys"`
	Project     ProjectConfig     `yaml:"project"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *Overrides `yaml:"development,omitempty"`
	CI          *Overrides `yaml:"ci,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains the sections that can be overridden per
// environment. Zero fields leave the base value alone.
type Overrides struct {
	Compression *CompressionConfig `yaml:"compression,omitempty"`
	Encryption  *EncryptionConfig  `yaml:"encryption,omitempty"`
	Codec       *CodecConfig       `yaml:"codec,omitempty"`
	Limits      *archive.Budget    `yaml:"limits,omitempty"`
	Keys        *KeysConfig        `yaml:"keys,omitempty"`
	Project     *ProjectConfig     `yaml:"project,omitempty"`
}

// CompressionConfig selects the token compression backend.
type CompressionConfig struct {
	// Backend is one of compress.Names(). Default: rans.
	Backend string `yaml:"backend"`

	// ModelMode is static, adaptive or hybrid. Empty writes no mode.
	ModelMode string `yaml:"model_mode"`

	PrecisionBits int `yaml:"precision_bits"`
	ChunkSize     int `yaml:"chunk_size"`
	TableLog      int `yaml:"table_log"`
	ZstdLevel     int `yaml:"zstd_level"`

	// TokenOptimisation remaps tokens to a dense alphabet before
	// compression.
	TokenOptimisation bool `yaml:"token_optimisation"`
}

// EncryptionConfig tunes the envelope.
type EncryptionConfig struct {
	// Version is 2 (Argon2id + HKDF) or 1 (legacy PBKDF2). Default: 2.
	Version int `yaml:"version"`

	Argon2 Argon2Config `yaml:"argon2"`
}

// Argon2Config holds the Argon2id cost parameters. Zero fields take
// the envelope defaults.
type Argon2Config struct {
	TimeCost    uint32 `yaml:"time_cost"`
	MemoryKiB   uint32 `yaml:"memory_kib"`
	Parallelism uint32 `yaml:"parallelism"`
}

// CodecConfig configures the morpheme encoder.
type CodecConfig struct {
	// DictionaryVersion is the dictionary revision to encode with.
	DictionaryVersion string `yaml:"dictionary_version"`

	// Strict fails encoding on constructs the dictionary cannot express
	// instead of substituting meta:unknown.
	Strict bool `yaml:"strict"`

	// Language forces a language profile. Empty chooses by file name.
	Language string `yaml:"language"`

	// SourceMap records a source position per token.
	SourceMap bool `yaml:"source_map"`

	// Profiles lists extra language profile manifests to register.
	Profiles []string `yaml:"profiles"`
}

// KeysConfig says where passphrases come from.
type KeysConfig struct {
	// Provider is env, file or age. Default: env.
	Provider string `yaml:"provider"`

	// PassphraseEnv names the variable the env provider reads.
	// Default: QYN_PASSPHRASE
	PassphraseEnv string `yaml:"passphrase_env"`

	// PassphraseFile is the plain file the file provider reads, or the
	// sealed file the age provider opens.
	PassphraseFile string `yaml:"passphrase_file"`

	// AgeIdentityFile is the age private key used by the age provider.
	AgeIdentityFile string `yaml:"age_identity_file"`

	// KeyVersion and RotationDue are recorded in archive metadata.
	KeyVersion  string `yaml:"key_version"`
	RotationDue string `yaml:"rotation_due"`
}

// ProjectConfig configures whole-tree packaging.
type ProjectConfig struct {
	// Workers bounds concurrent file encodes. Default: 4.
	Workers int `yaml:"workers"`

	// Include lists glob patterns, relative to the project root, of
	// files to package. Default: **/*.py
	Include []string `yaml:"include"`

	// Exclude lists glob patterns skipped even when included.
	Exclude []string `yaml:"exclude"`
}

// Key providers understood by [KeysConfig].
const (
	ProviderEnv  = "env"
	ProviderFile = "file"
	ProviderAge  = "age"
)

// Default returns a complete configuration usable without a file.
func Default() *Config {
	homeDirectory, _ := os.UserHomeDir()
	root := filepath.Join(homeDirectory, ".cache", "qyn")

	return &Config{
		Environment: Development,
		Root:        root,
		Compression: CompressionConfig{
			Backend: compress.DefaultBackend,
		},
		Encryption: EncryptionConfig{
			Version: envelope.VersionCurrent,
		},
		Codec: CodecConfig{
			DictionaryVersion: "1.0",
		},
		Limits: archive.DefaultBudget(),
		Keys: KeysConfig{
			Provider:      ProviderEnv,
			PassphraseEnv: "QYN_PASSPHRASE",
		},
		Project: ProjectConfig{
			Workers: 4,
			Include: []string{"**/*.py"},
		},
	}
}

// Load loads configuration from the file named by QYN_CONFIG. When the
// variable is unset it returns [Default] and no error.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path on top of
// [Default], applies the environment overrides, expands variables and
// validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case CI:
		overrides = c.CI
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &Overrides{Codec: &CodecConfig{Strict: true}}
		}
		if c.Encryption.Version == envelope.VersionLegacy {
			c.Encryption.Version = envelope.VersionCurrent
		}
	}

	if overrides == nil {
		return
	}

	if o := overrides.Compression; o != nil {
		setString(&c.Compression.Backend, o.Backend)
		setString(&c.Compression.ModelMode, o.ModelMode)
		setInt(&c.Compression.PrecisionBits, o.PrecisionBits)
		setInt(&c.Compression.ChunkSize, o.ChunkSize)
		setInt(&c.Compression.TableLog, o.TableLog)
		setInt(&c.Compression.ZstdLevel, o.ZstdLevel)
		c.Compression.TokenOptimisation = c.Compression.TokenOptimisation || o.TokenOptimisation
	}

	if o := overrides.Encryption; o != nil {
		setInt(&c.Encryption.Version, o.Version)
		if o.Argon2.TimeCost != 0 {
			c.Encryption.Argon2.TimeCost = o.Argon2.TimeCost
		}
		if o.Argon2.MemoryKiB != 0 {
			c.Encryption.Argon2.MemoryKiB = o.Argon2.MemoryKiB
		}
		if o.Argon2.Parallelism != 0 {
			c.Encryption.Argon2.Parallelism = o.Argon2.Parallelism
		}
	}

	if o := overrides.Codec; o != nil {
		setString(&c.Codec.DictionaryVersion, o.DictionaryVersion)
		setString(&c.Codec.Language, o.Language)
		// Booleans can only be switched on by an override.
		c.Codec.Strict = c.Codec.Strict || o.Strict
		c.Codec.SourceMap = c.Codec.SourceMap || o.SourceMap
		if len(o.Profiles) > 0 {
			c.Codec.Profiles = o.Profiles
		}
	}

	if o := overrides.Limits; o != nil {
		setInt(&c.Limits.MaxSymbols, o.MaxSymbols)
		setInt(&c.Limits.MaxModelBytes, o.MaxModelBytes)
		setInt(&c.Limits.MaxCompressedBytes, o.MaxCompressedBytes)
		setInt(&c.Limits.MaxStringTableBytes, o.MaxStringTableBytes)
		setInt(&c.Limits.MaxPayloadBytes, o.MaxPayloadBytes)
		setInt(&c.Limits.MaxKDFWork, o.MaxKDFWork)
		setInt(&c.Limits.MaxKDFRounds, o.MaxKDFRounds)
	}

	if o := overrides.Keys; o != nil {
		setString(&c.Keys.Provider, o.Provider)
		setString(&c.Keys.PassphraseEnv, o.PassphraseEnv)
		setString(&c.Keys.PassphraseFile, o.PassphraseFile)
		setString(&c.Keys.AgeIdentityFile, o.AgeIdentityFile)
		setString(&c.Keys.KeyVersion, o.KeyVersion)
		setString(&c.Keys.RotationDue, o.RotationDue)
	}

	if o := overrides.Project; o != nil {
		setInt(&c.Project.Workers, o.Workers)
		if len(o.Include) > 0 {
			c.Project.Include = o.Include
		}
		if len(o.Exclude) > 0 {
			c.Project.Exclude = o.Exclude
		}
	}
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func setInt(target *int, value int) {
	if value != 0 {
		*target = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"QYN_ROOT": c.Root,
		"HOME":     os.Getenv("HOME"),
	}

	c.Root = expandVars(c.Root, vars)
	vars["QYN_ROOT"] = c.Root

	c.Keys.PassphraseFile = expandVars(c.Keys.PassphraseFile, vars)
	c.Keys.AgeIdentityFile = expandVars(c.Keys.AgeIdentityFile, vars)
	for index, profile := range c.Codec.Profiles {
		c.Codec.Profiles[index] = expandVars(profile, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Provided vars first, then the environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]Environment{Development, CI, Production}, c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if !slices.Contains(compress.Names(), c.Compression.Backend) {
		errs = append(errs, fmt.Errorf("compression.backend must be one of: %v", compress.Names()))
	}
	if c.Compression.ModelMode != "" {
		if _, err := compress.ParseMode(c.Compression.ModelMode); err != nil {
			errs = append(errs, fmt.Errorf("compression.model_mode: %w", err))
		}
	}
	if c.Compression.PrecisionBits != 0 &&
		(c.Compression.PrecisionBits < compress.MinPrecisionBits || c.Compression.PrecisionBits > compress.MaxPrecisionBits) {
		errs = append(errs, fmt.Errorf("compression.precision_bits must be between %d and %d",
			compress.MinPrecisionBits, compress.MaxPrecisionBits))
	}
	if c.Compression.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("compression.chunk_size must not be negative"))
	}
	if c.Compression.ZstdLevel < 0 || c.Compression.ZstdLevel > 22 {
		errs = append(errs, fmt.Errorf("compression.zstd_level must be between 1 and 22"))
	}

	if c.Encryption.Version != envelope.VersionCurrent && c.Encryption.Version != envelope.VersionLegacy {
		errs = append(errs, fmt.Errorf("encryption.version must be %d or %d", envelope.VersionLegacy, envelope.VersionCurrent))
	}
	if argon := c.Encryption.Argon2; argon.MemoryKiB != 0 && argon.Parallelism != 0 && argon.MemoryKiB < 8*argon.Parallelism {
		errs = append(errs, fmt.Errorf("encryption.argon2.memory_kib must be at least 8 * parallelism"))
	}

	if c.Codec.DictionaryVersion == "" {
		errs = append(errs, fmt.Errorf("codec.dictionary_version is required"))
	}

	switch c.Keys.Provider {
	case ProviderEnv:
		if c.Keys.PassphraseEnv == "" {
			errs = append(errs, fmt.Errorf("keys.passphrase_env is required for the env provider"))
		}
	case ProviderFile:
		if c.Keys.PassphraseFile == "" {
			errs = append(errs, fmt.Errorf("keys.passphrase_file is required for the file provider"))
		}
	case ProviderAge:
		if c.Keys.PassphraseFile == "" || c.Keys.AgeIdentityFile == "" {
			errs = append(errs, fmt.Errorf("keys.passphrase_file and keys.age_identity_file are required for the age provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("keys.provider must be one of: %v", []string{ProviderEnv, ProviderFile, ProviderAge}))
	}

	if c.Project.Workers < 1 {
		errs = append(errs, fmt.Errorf("project.workers must be at least 1"))
	}
	for _, pattern := range append(slices.Clone(c.Project.Include), c.Project.Exclude...) {
		if _, err := filepath.Match(pattern, ""); err != nil {
			errs = append(errs, fmt.Errorf("project pattern %q: %w", pattern, err))
		}
	}

	return errors.Join(errs...)
}

// CompressOptions returns the backend tuning for compress.Lookup.
func (c *Config) CompressOptions() compress.Options {
	return compress.Options{
		PrecisionBits: c.Compression.PrecisionBits,
		ChunkSize:     c.Compression.ChunkSize,
		TableLog:      c.Compression.TableLog,
		Level:         c.Compression.ZstdLevel,
	}
}

// EncryptionOptions returns the envelope settings.
func (c *Config) EncryptionOptions() envelope.Options {
	return envelope.Options{
		Version: c.Encryption.Version,
		Argon2: envelope.Argon2Params{
			TimeCost:    c.Encryption.Argon2.TimeCost,
			MemoryCost:  c.Encryption.Argon2.MemoryKiB,
			Parallelism: c.Encryption.Argon2.Parallelism,
		},
	}
}

// ArchiveOptions returns encode options built from the compression and
// encryption sections.
func (c *Config) ArchiveOptions() (archive.Options, error) {
	var mode compress.Mode
	if c.Compression.ModelMode != "" {
		var err error
		if mode, err = compress.ParseMode(c.Compression.ModelMode); err != nil {
			return archive.Options{}, err
		}
	}
	return archive.Options{
		Backend:     c.Compression.Backend,
		ModelMode:   mode,
		Compression: c.CompressOptions(),
		Optimise:    c.Compression.TokenOptimisation,
		Encryption:  c.EncryptionOptions(),
	}, nil
}

// Policy returns the unknown-morpheme policy.
func (c *Config) Policy() morphcodec.Policy {
	if c.Codec.Strict {
		return morphcodec.PolicyStrict
	}
	return morphcodec.PolicySubstitute
}
