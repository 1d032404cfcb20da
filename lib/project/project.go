// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/quenyan/lib/archive"
	"github.com/bureau-foundation/quenyan/lib/atomicfile"
	"github.com/bureau-foundation/quenyan/lib/clock"
	"github.com/bureau-foundation/quenyan/lib/codec"
	"github.com/bureau-foundation/quenyan/lib/envelope"
	"github.com/bureau-foundation/quenyan/lib/langprofile"
	"github.com/bureau-foundation/quenyan/lib/morphcodec"
	"github.com/bureau-foundation/quenyan/lib/morpheme"
)

// ManifestName is the manifest file written at the output root.
const ManifestName = "manifest.json"

// ArchiveExtension is appended to each source path.
const ArchiveExtension = ".qyn1"

// Options configure [Encode].
type Options struct {
	// Dictionary is shared by every worker. Required.
	Dictionary *morpheme.Dictionary
	// Registry selects language profiles by path. Nil means the
	// built-in registry.
	Registry *langprofile.Registry

	Include []string
	Exclude []string
	// Workers bounds concurrent encodes. Values below 1 mean 1.
	Workers int

	// Codec is the per-file encoder template. Path and Registry are
	// filled per file.
	Codec morphcodec.Options
	// Archive is the per-file archive template.
	Archive archive.Options

	// Progress, when set, is called once per file from the worker that
	// finished it.
	Progress func(Result)

	Clock  clock.Clock
	Logger *slog.Logger
}

// Result is the outcome of one file.
type Result struct {
	Path         string
	Archive      string
	ContentID    ContentID
	SourceHash   string
	Tokens       int
	Warnings     int
	SourceBytes  int
	ArchiveBytes int
	Duration     time.Duration
	Err          error
}

// Manifest describes an encoded project.
type Manifest struct {
	ProjectID         ContentID   `json:"project_id"`
	PackageVersion    string      `json:"package_version"`
	DictionaryVersion string      `json:"dictionary_version"`
	Backend           string      `json:"compression_backend"`
	CreatedAt         string      `json:"created_at"`
	Files             []FileEntry `json:"files"`
}

// FileEntry is one archive in a [Manifest].
type FileEntry struct {
	Path       string    `json:"path"`
	Archive    string    `json:"archive"`
	ContentID  ContentID `json:"content_id"`
	SourceHash string    `json:"source_hash"`
	Tokens     int       `json:"tokens"`
	Bytes      int       `json:"bytes"`
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

func (o Options) clock() clock.Clock {
	if o.Clock == nil {
		return clock.Real()
	}
	return o.Clock
}

// Encode packages every matching file under root into output and
// writes the manifest. Files that fail are reported in the joined
// error and left out of the manifest; the manifest is still written
// for the files that succeeded. A cancelled context returns ctx.Err()
// joined with any file errors, and no manifest.
func Encode(ctx context.Context, root, output string, passphrase []byte, options Options) (*Manifest, error) {
	if options.Dictionary == nil {
		return nil, errors.New("project: a dictionary is required")
	}
	if len(passphrase) == 0 {
		return nil, envelope.ErrEmptyPassphrase
	}
	logger := options.logger()
	now := options.clock()

	registry := options.Registry
	if registry == nil {
		var err error
		if registry, err = langprofile.Builtin(); err != nil {
			return nil, fmt.Errorf("loading language profiles: %w", err)
		}
	}

	files, err := Discover(root, options.Include, options.Exclude)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(output, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	started := now.Now()
	results := run(ctx, files, max(options.Workers, 1), func(relative string) Result {
		result := encodeFile(root, output, relative, passphrase, registry, options)
		if options.Progress != nil {
			options.Progress(result)
		}
		return result
	})

	var errs []error
	manifest := &Manifest{
		DictionaryVersion: options.Dictionary.Version(),
		CreatedAt:         started.UTC().Format(time.RFC3339),
		Files:             []FileEntry{},
	}
	for _, result := range results {
		if result.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", result.Path, result.Err))
			continue
		}
		manifest.Files = append(manifest.Files, FileEntry{
			Path:       result.Path,
			Archive:    result.Archive,
			ContentID:  result.ContentID,
			SourceHash: result.SourceHash,
			Tokens:     result.Tokens,
			Bytes:      result.ArchiveBytes,
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(append([]error{err}, errs...)...)
	}

	if err := manifest.describe(output, passphrase, options); err != nil {
		errs = append(errs, err)
	}
	manifest.ProjectID = manifest.treeID()
	data, err := codec.CanonicalJSON(manifest)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := atomicfile.Write(filepath.Join(output, ManifestName), data, 0o644); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}

	logger.Info("encoded project",
		"root", root,
		"files", len(manifest.Files),
		"failed", len(errs),
		"project_id", manifest.ProjectID.String(),
		"duration", clock.Since(now, started),
	)
	return manifest, errors.Join(errs...)
}

// describe fills the version and backend fields from the first archive.
func (m *Manifest) describe(output string, passphrase []byte, options Options) error {
	if len(m.Files) == 0 {
		m.Backend = options.Archive.Backend
		return nil
	}
	data, err := os.ReadFile(filepath.Join(output, filepath.FromSlash(m.Files[0].Archive)))
	if err != nil {
		return err
	}
	summary, err := archive.Inspect(data)
	if err != nil {
		return fmt.Errorf("%s: %w", m.Files[0].Archive, err)
	}
	m.PackageVersion = summary.WrapperVersion
	if summary.Metadata != nil {
		m.Backend = summary.Metadata.CompressionBackend
	}
	return nil
}

func (m *Manifest) treeID() ContentID {
	ids := make([]ContentID, len(m.Files))
	for index, file := range m.Files {
		ids[index] = file.ContentID
	}
	return TreeID(ids)
}

// run applies work to every item with at most workers goroutines and
// returns the results in item order. Items not started before ctx is
// cancelled are omitted.
func run(ctx context.Context, items []string, workers int, work func(string) Result) []Result {
	results := make([]*Result, len(items))
	jobs := make(chan int)

	var group sync.WaitGroup
	for range min(workers, max(len(items), 1)) {
		group.Add(1)
		go func() {
			defer group.Done()
			for index := range jobs {
				result := work(items[index])
				results[index] = &result
			}
		}()
	}

dispatch:
	for index := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- index:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	group.Wait()

	completed := make([]Result, 0, len(items))
	for _, result := range results {
		if result != nil {
			completed = append(completed, *result)
		}
	}
	return completed
}

func encodeFile(root, output, relative string, passphrase []byte, registry *langprofile.Registry, options Options) Result {
	now := options.clock()
	started := now.Now()
	result := Result{Path: relative, Archive: relative + ArchiveExtension}

	source, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(relative)))
	if err != nil {
		result.Err = err
		return result
	}
	result.SourceBytes = len(source)

	codecOptions := options.Codec
	codecOptions.Path = relative
	codecOptions.Registry = registry
	if codecOptions.Profile != nil {
		codecOptions.Registry = nil
	}
	codecOptions.Logger = options.Logger
	stream, err := morphcodec.NewEncoder(options.Dictionary).Encode(source, codecOptions)
	if err != nil {
		result.Err = err
		return result
	}

	archiveOptions := options.Archive
	archiveOptions.Annotations.AuditTrail = slices.Clone(options.Archive.Annotations.AuditTrail)
	archiveOptions.Logger = options.Logger
	data, err := archive.Encode(stream, passphrase, archiveOptions)
	if err != nil {
		result.Err = err
		return result
	}

	destination := filepath.Join(output, filepath.FromSlash(result.Archive))
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		result.Err = err
		return result
	}
	if err := atomicfile.Write(destination, data, 0o644); err != nil {
		result.Err = err
		return result
	}

	result.ContentID = HashArchive(data)
	result.SourceHash = stream.SourceHash
	result.Tokens = len(stream.Tokens)
	result.Warnings = len(stream.Warnings)
	result.ArchiveBytes = len(data)
	result.Duration = clock.Since(now, started)
	return result
}

// ReadManifest loads the manifest from an encoded project directory.
func ReadManifest(directory string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(directory, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var manifest Manifest
	if err := codec.DecodeStrictJSON(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &manifest, nil
}

// VerifyOptions configure [Verify].
type VerifyOptions struct {
	Decode  archive.DecodeOptions
	Workers int
}

// Verify checks an encoded project directory: the project ID must
// match the file IDs, every archive must hash to its recorded content
// ID, and every archive must decrypt and decode with the manifest's
// source hash. All problems are reported together.
func Verify(ctx context.Context, directory string, passphrase []byte, options VerifyOptions) (*Manifest, error) {
	manifest, err := ReadManifest(directory)
	if err != nil {
		return nil, err
	}
	var errs []error
	if id := manifest.treeID(); id != manifest.ProjectID {
		errs = append(errs, fmt.Errorf("project ID %s does not match file IDs (%s)", manifest.ProjectID, id))
	}

	entries := make(map[string]FileEntry, len(manifest.Files))
	paths := make([]string, len(manifest.Files))
	for index, file := range manifest.Files {
		entries[file.Path] = file
		paths[index] = file.Path
	}
	results := run(ctx, paths, max(options.Workers, 1), func(path string) Result {
		file := entries[path]
		result := Result{Path: path, Archive: file.Archive}
		data, err := os.ReadFile(filepath.Join(directory, filepath.FromSlash(file.Archive)))
		if err != nil {
			result.Err = err
			return result
		}
		result.ContentID = HashArchive(data)
		if result.ContentID != file.ContentID {
			result.Err = fmt.Errorf("content ID %s, manifest records %s", result.ContentID, file.ContentID)
			return result
		}
		decoded, err := archive.Decode(data, passphrase, options.Decode)
		if err != nil {
			result.Err = err
			return result
		}
		if decoded.Metadata.SourceHash != file.SourceHash {
			result.Err = fmt.Errorf("source hash %s, manifest records %s", decoded.Metadata.SourceHash, file.SourceHash)
		}
		return result
	})
	for _, result := range results {
		if result.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", result.Path, result.Err))
		}
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return manifest, errors.Join(errs...)
}
