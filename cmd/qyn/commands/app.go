// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
	"github.com/bureau-foundation/quenyan/lib/atomicfile"
	"github.com/bureau-foundation/quenyan/lib/clock"
	"github.com/bureau-foundation/quenyan/lib/config"
	"github.com/bureau-foundation/quenyan/lib/keyprovider"
	"github.com/bureau-foundation/quenyan/lib/langprofile"
	"github.com/bureau-foundation/quenyan/lib/morpheme"
	"github.com/bureau-foundation/quenyan/lib/secret"
)

// app holds the process streams and clock the commands run against.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	clock  clock.Clock
}

// Root returns the qyn command tree bound to the process streams.
func Root() *cli.Command {
	return (&app{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		clock:  clock.Real(),
	}).root()
}

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name:        "qyn",
		Description: "Encode source code into encrypted morpheme archives and read them back.",
		HelpOutput:  a.stderr,
		Subcommands: []*cli.Command{
			a.encodeCommand(),
			a.decodeCommand(),
			a.verifyCommand(),
			a.inspectCommand(),
			a.diffCommand(),
			a.lintCommand(),
			a.migrateCommand(),
			a.sourceMapCommand(),
			a.morphemesCommand(),
			a.backendsCommand(),
			a.projectCommand(),
			a.sealCommand(),
			a.versionCommand(),
		},
	}
}

// commonParams are accepted by every command.
type commonParams struct {
	Config  string `flag:"config" desc:"configuration file (default: $QYN_CONFIG)"`
	Verbose bool   `flag:"verbose,v" desc:"log at debug level"`
}

// keyParams select the passphrase source.
type keyParams struct {
	PassphraseFile string `flag:"passphrase-file" desc:"read the passphrase from a file, or - for stdin"`
}

// session is the per-invocation state built from commonParams.
type session struct {
	config *config.Config
	logger *slog.Logger
}

func (a *app) open(common commonParams, command string) (*session, error) {
	var (
		cfg *config.Config
		err error
	)
	if common.Config != "" {
		cfg, err = config.LoadFile(common.Config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	return &session{
		config: cfg,
		logger: cli.NewCommandLogger(a.stderr, common.Verbose).With("command", command),
	}, nil
}

// key resolves the passphrase: --passphrase-file first, then the
// configured provider, then a prompt when stdin is a terminal.
func (a *app) key(s *session, params keyParams) (*keyprovider.Key, error) {
	if params.PassphraseFile != "" {
		if params.PassphraseFile == "-" && a.stdin != os.Stdin {
			return a.readKey(a.stdin)
		}
		return keyprovider.FromFile(params.PassphraseFile)
	}
	key, err := keyprovider.Resolve(s.config.Keys)
	if err == nil {
		return key, nil
	}
	file, ok := a.stdin.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) {
		return nil, fmt.Errorf("no passphrase available: %w", err)
	}
	s.logger.Debug("key provider unavailable, prompting", "error", err)
	fmt.Fprint(a.stderr, "Passphrase: ")
	typed, readErr := term.ReadPassword(int(file.Fd()))
	fmt.Fprintln(a.stderr)
	if readErr != nil {
		return nil, fmt.Errorf("reading passphrase: %w", readErr)
	}
	if len(typed) == 0 {
		return nil, fmt.Errorf("passphrase is empty")
	}
	buffer, err := secret.NewFromBytes(typed)
	if err != nil {
		return nil, err
	}
	return &keyprovider.Key{Passphrase: buffer, Provider: "prompt"}, nil
}

// readKey reads the first line of r as the passphrase.
func (a *app) readKey(r io.Reader) (*keyprovider.Key, error) {
	buffer, err := secret.ReadLine(r)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase from stdin: %w", err)
	}
	return &keyprovider.Key{Passphrase: buffer, Provider: config.ProviderFile, ID: "stdin"}, nil
}

// dictionary loads a dictionary by revision, or from a YAML/JSON file
// when spec names an existing file.
func dictionary(spec string, strict bool) (*morpheme.Dictionary, error) {
	options := morpheme.Options{Strict: strict}
	if info, err := os.Stat(spec); err == nil && !info.IsDir() {
		return morpheme.LoadFile(spec, options)
	}
	return morpheme.Load(spec, options)
}

// registry returns the built-in language profiles plus any manifests
// named in the configuration.
func (s *session) registry() (*langprofile.Registry, error) {
	registry, err := langprofile.Builtin()
	if err != nil {
		return nil, err
	}
	for _, path := range s.config.Codec.Profiles {
		if _, err := registry.RegisterManifest(path, true); err != nil {
			return nil, fmt.Errorf("registering language profile %s: %w", path, err)
		}
	}
	return registry, nil
}

func readArchive(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	return data, nil
}

// writeOutput writes data to path atomically, or to stdout for "-".
func (a *app) writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := a.stdout.Write(data)
		return err
	}
	return atomicfile.Write(path, data, 0o644)
}

func requireArgs(args []string, count int, usage string) error {
	if len(args) != count {
		return cli.Usagef("usage: %s", usage)
	}
	return nil
}
