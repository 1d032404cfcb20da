// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
	"github.com/bureau-foundation/quenyan/lib/archive"
	"github.com/bureau-foundation/quenyan/lib/project"
)

type projectParams struct {
	commonParams
	keyParams
	codecParams
	cli.JSONOutput
	Output  string   `flag:"output,o" desc:"directory to write archives and the manifest into"`
	Workers int      `flag:"workers" desc:"files encoded in parallel (default: configured)"`
	Include []string `flag:"include" desc:"glob of files to encode; repeatable (default: configured)"`
	Exclude []string `flag:"exclude" desc:"glob of files to skip; repeatable"`
	Verify  bool     `flag:"verify" desc:"verify an encoded project directory instead of encoding"`
}

// ProjectReport is the --json output of project.
type ProjectReport struct {
	ProjectID string            `json:"project_id"`
	Directory string            `json:"directory"`
	Files     []ProjectFile     `json:"files"`
	Manifest  *project.Manifest `json:"manifest,omitempty"`
}

// ProjectFile is one file's outcome.
type ProjectFile struct {
	Path    string `json:"path"`
	Archive string `json:"archive,omitempty"`
	Tokens  int    `json:"tokens,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (a *app) projectCommand() *cli.Command {
	var params projectParams
	return &cli.Command{
		Name:    "project",
		Summary: "Encode or verify a whole source tree",
		Description: `Encode every matching file under a directory into a parallel tree
of archives, then write manifest.json recording each archive's content
ID and a project ID over all of them. Hidden directories are skipped.

With --verify, the argument is an encoded project directory: the
manifest's project ID and every archive's content ID are rechecked,
and each archive is decoded and compared with its recorded source
hash.`,
		Usage: "qyn project <dir> -o <output> [flags]\n  qyn project --verify <output> [flags]",
		Examples: []cli.Example{
			{Description: "Encode a package with 8 workers", Command: "qyn project src -o src.qyn --workers 8"},
			{Description: "Check an encoded tree", Command: "qyn project --verify src.qyn"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("project", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "qyn project <dir> -o <output> [flags]"); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			if params.Verify {
				return a.runProjectVerify(ctx, args[0], params)
			}
			if params.Output == "" {
				return cli.Usagef("--output is required when encoding a project")
			}
			return a.runProjectEncode(ctx, args[0], params)
		},
	}
}

func (a *app) runProjectEncode(ctx context.Context, root string, params projectParams) error {
	s, err := a.open(params.commonParams, "project")
	if err != nil {
		return err
	}
	settings, err := params.settings(s)
	if err != nil {
		return err
	}
	dict, err := dictionary(settings.dict, settings.strict)
	if err != nil {
		return err
	}
	key, err := a.key(s, params.keyParams)
	if err != nil {
		return err
	}
	defer key.Close()
	settings.annotate(key)

	options := project.Options{
		Dictionary: dict,
		Registry:   settings.codec.Registry,
		Include:    s.config.Project.Include,
		Exclude:    s.config.Project.Exclude,
		Workers:    s.config.Project.Workers,
		Codec:      settings.codec,
		Archive:    settings.archive,
		Clock:      a.clock,
		Logger:     s.logger,
	}
	if len(params.Include) > 0 {
		options.Include = params.Include
	}
	if len(params.Exclude) > 0 {
		options.Exclude = params.Exclude
	}
	if params.Workers > 0 {
		options.Workers = params.Workers
	}

	var (
		mu    sync.Mutex
		files []ProjectFile
	)
	options.Progress = func(result project.Result) {
		mu.Lock()
		defer mu.Unlock()
		file := ProjectFile{Path: result.Path, Archive: result.Archive, Tokens: result.Tokens}
		if result.Err != nil {
			file.Error = result.Err.Error()
		} else if !params.OutputJSON {
			fmt.Fprintf(a.stdout, "encoded %s (%d tokens, %d -> %d bytes)\n",
				result.Path, result.Tokens, result.SourceBytes, result.ArchiveBytes)
		}
		files = append(files, file)
	}

	// A manifest comes back alongside the error when only some files
	// failed; report it before returning the error.
	manifest, encodeErr := project.Encode(ctx, root, params.Output, key.Bytes(), options)
	if manifest == nil {
		return encodeErr
	}
	slices.SortFunc(files, func(x, y ProjectFile) int { return strings.Compare(x.Path, y.Path) })
	report := ProjectReport{
		ProjectID: manifest.ProjectID.String(),
		Directory: params.Output,
		Files:     files,
	}
	if done, err := params.EmitJSON(a.stdout, report); done {
		if err != nil {
			return err
		}
		return encodeErr
	}
	fmt.Fprintf(a.stdout, "%d files, project %s\n", len(manifest.Files), manifest.ProjectID)
	return encodeErr
}

func (a *app) runProjectVerify(ctx context.Context, directory string, params projectParams) error {
	s, err := a.open(params.commonParams, "project")
	if err != nil {
		return err
	}
	key, err := a.key(s, params.keyParams)
	if err != nil {
		return err
	}
	defer key.Close()

	workers := params.Workers
	if workers <= 0 {
		workers = s.config.Project.Workers
	}
	manifest, err := project.Verify(ctx, directory, key.Bytes(), project.VerifyOptions{
		Decode:  archive.DecodeOptions{Budget: s.config.Limits, Logger: s.logger},
		Workers: workers,
	})
	if err != nil {
		return err
	}
	report := ProjectReport{
		ProjectID: manifest.ProjectID.String(),
		Directory: directory,
		Manifest:  manifest,
	}
	for _, file := range manifest.Files {
		report.Files = append(report.Files, ProjectFile{Path: file.Path, Archive: file.Archive, Tokens: file.Tokens})
	}
	if done, err := params.EmitJSON(a.stdout, report); done {
		return err
	}
	fmt.Fprintf(a.stdout, "verified %d files, project %s\n", len(manifest.Files), manifest.ProjectID)
	return nil
}
