// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os/user"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
	"github.com/bureau-foundation/quenyan/lib/archive"
)

type migrateParams struct {
	commonParams
	keyParams
	cli.JSONOutput
	To         string `flag:"to" desc:"package version to migrate to (default: newest)"`
	Dictionary string `flag:"dictionary" desc:"dictionary version or file to re-express tokens in"`
	InPlace    bool   `flag:"in-place" desc:"rewrite the archive, keeping the original as <archive>.bak"`
	Output     string `flag:"output,o" desc:"write the migrated archive here"`
	Strict     bool   `flag:"strict" desc:"fail when the target dictionary lacks a key the archive uses"`
	Actor      string `flag:"actor" desc:"actor recorded in the audit trail (default: current user)"`
}

func (a *app) migrateCommand() *cli.Command {
	var params migrateParams
	return &cli.Command{
		Name:    "migrate",
		Summary: "Rewrite an archive for a newer package version or dictionary",
		Description: `Decode an archive and write it again under a target package version
and dictionary revision, re-encrypting with the configured envelope.
Tokens are re-expressed by dictionary key; keys missing from the
target become meta:unknown unless --strict is given.

With --in-place the original is kept next to the archive as
<archive>.bak. An archive already in the target shape is left
untouched.`,
		Usage: "qyn migrate <archive> (--in-place | -o <output>) [flags]",
		Examples: []cli.Example{
			{Description: "Upgrade in place", Command: "qyn migrate app.py.qyn1 --in-place"},
			{Description: "Write a 1.1 copy", Command: "qyn migrate app.py.qyn1 --to 1.1 -o app.v11.qyn1"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("migrate", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "qyn migrate <archive> (--in-place | -o <output>) [flags]"); err != nil {
				return err
			}
			if params.InPlace == (params.Output != "") {
				return cli.Usagef("exactly one of --in-place or --output is required")
			}
			return a.runMigrate(args[0], params)
		},
	}
}

func (a *app) runMigrate(path string, params migrateParams) error {
	s, err := a.open(params.commonParams, "migrate")
	if err != nil {
		return err
	}
	key, err := a.key(s, params.keyParams)
	if err != nil {
		return err
	}
	defer key.Close()

	options := archive.MigrateOptions{
		TargetVersion: params.To,
		Strict:        params.Strict || s.config.Codec.Strict,
		Encryption:    s.config.EncryptionOptions(),
		Budget:        s.config.Limits,
		Clock:         a.clock,
		Actor:         params.Actor,
		Logger:        s.logger,
	}
	if params.Dictionary != "" {
		if options.Dictionary, err = dictionary(params.Dictionary, false); err != nil {
			return err
		}
	}
	if options.Actor == "" {
		if current, err := user.Current(); err == nil {
			options.Actor = current.Username
		}
	}

	output := params.Output
	if params.InPlace {
		output = ""
	}
	report, err := archive.MigrateFile(path, output, key.Bytes(), options)
	if err != nil {
		return err
	}
	s.logger.Info("migrated",
		"archive", path,
		"changed", report.Changed,
		"tokens", report.TokensMigrated,
		"missing_keys", len(report.MissingKeys),
	)

	if done, err := params.EmitJSON(a.stdout, report); done {
		return err
	}
	if !report.Changed {
		fmt.Fprintf(a.stdout, "%s already at package %s, dictionary %s\n",
			path, report.PackageVersion, report.DictionaryVersion)
		return nil
	}
	destination := params.Output
	if params.InPlace {
		destination = path + " (backup " + path + ".bak)"
	}
	fmt.Fprintf(a.stdout, "%s: package %s -> %s, dictionary %s -> %s, %d tokens, %s layout, written to %s\n",
		path,
		report.PreviousPackageVersion, report.PackageVersion,
		report.PreviousDictionaryVersion, report.DictionaryVersion,
		report.TokensMigrated, report.Layout, destination)
	for _, missing := range report.MissingKeys {
		fmt.Fprintf(a.stdout, "  missing in target dictionary: %s\n", missing)
	}
	return nil
}
