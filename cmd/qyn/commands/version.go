// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
	"github.com/bureau-foundation/quenyan/lib/morpheme"
	"github.com/bureau-foundation/quenyan/lib/version"
)

// VersionReport is the --json form of qyn version.
type VersionReport struct {
	Release                 string                     `json:"release"`
	Commit                  string                     `json:"commit"`
	BuildTime               string                     `json:"build_time"`
	Protocol                string                     `json:"protocol"`
	Minimum                 string                     `json:"minimum"`
	Supported               []string                   `json:"supported"`
	Dictionaries            []string                   `json:"dictionaries"`
	DictionaryCompatibility map[string][2]string       `json:"dictionary_compatibility"`
	Matrix                  map[string]map[string]bool `json:"matrix"`
}

type versionParams struct {
	cli.JSONOutput
}

func (a *app) versionCommand() *cli.Command {
	var params versionParams
	return &cli.Command{
		Name:    "version",
		Summary: "Print version and protocol information",
		Usage:   "qyn version [--json]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("version", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, 0, "qyn version [--json]"); err != nil {
				return err
			}
			report := VersionReport{
				Release:                 version.Short(),
				Commit:                  version.Commit(),
				BuildTime:               version.BuildTime,
				Protocol:                version.Current.String(),
				Minimum:                 version.Minimum.String(),
				Dictionaries:            morpheme.Versions(),
				DictionaryCompatibility: morpheme.CompatibilityMap(),
				Matrix:                  version.CompatibilityMatrix(nil, nil),
			}
			for _, supported := range version.Supported() {
				report.Supported = append(report.Supported, supported.String())
			}
			if done, err := params.EmitJSON(a.stdout, report); done {
				return err
			}
			fmt.Fprintln(a.stdout, version.Full())
			return nil
		},
	}
}
