// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
	"github.com/bureau-foundation/quenyan/lib/compress"
)

// BackendInfo describes one registered compression backend.
type BackendInfo struct {
	Name        string `json:"name"`
	Default     bool   `json:"default"`
	Configured  bool   `json:"configured"`
	ModelModes  bool   `json:"model_modes"`
	Description string `json:"description"`
}

var backendDescriptions = map[string]string{
	compress.NameRANS:        "range ANS with a static, adaptive or hybrid frequency model",
	compress.NameChunkedRANS: "range ANS over independent chunks sharing one model",
	compress.NameFSE:         "finite-state entropy with a tabled normalised model",
	compress.NameZstd:        "bit-packed tokens compressed with zstd",
	compress.NameLZ4:         "bit-packed tokens compressed with lz4",
}

type backendsParams struct {
	commonParams
	cli.JSONOutput
}

func (a *app) backendsCommand() *cli.Command {
	var params backendsParams
	return &cli.Command{
		Name:    "backends",
		Summary: "List the available compression backends",
		Usage:   "qyn backends [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("backends", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, 0, "qyn backends [flags]"); err != nil {
				return err
			}
			return a.runBackends(params)
		},
	}
}

func (a *app) runBackends(params backendsParams) error {
	s, err := a.open(params.commonParams, "backends")
	if err != nil {
		return err
	}
	var backends []BackendInfo
	for _, name := range compress.Names() {
		backends = append(backends, BackendInfo{
			Name:        name,
			Default:     name == compress.DefaultBackend,
			Configured:  name == s.config.Compression.Backend,
			ModelModes:  compress.SupportsModelMode(name),
			Description: backendDescriptions[name],
		})
	}
	if done, err := params.EmitJSON(a.stdout, backends); done {
		return err
	}

	writer := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tMODES\tDESCRIPTION")
	for _, backend := range backends {
		name := backend.Name
		if backend.Configured {
			name += " *"
		}
		modes := "-"
		if backend.ModelModes {
			modes = "static,adaptive,hybrid"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\n", name, modes, backend.Description)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "\n* configured backend")
	return nil
}
