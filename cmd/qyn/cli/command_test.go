// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "qyn",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(args []string) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "encode",
				Run: func(args []string) error {
					called = "encode"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"encode"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "encode" {
		t.Errorf("dispatched to %q, want %q", called, "encode")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "qyn",
		Subcommands: []*Command{
			{
				Name: "source-map",
				Subcommands: []*Command{
					{
						Name: "show",
						Run: func(args []string) error {
							called = "source-map show"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"source-map", "show", "module.qyn1"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "source-map show" {
		t.Errorf("dispatched to %q, want %q", called, "source-map show")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "module.qyn1" {
		t.Errorf("args = %v, want [module.qyn1]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var backend string
	var target string

	command := &Command{
		Name: "encode",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("encode", pflag.ContinueOnError)
			flagSet.StringVar(&backend, "backend", "rans", "compression backend")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"--backend", "zstd", "main.py"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if backend != "zstd" {
		t.Errorf("backend = %q, want %q", backend, "zstd")
	}
	if target != "main.py" {
		t.Errorf("target = %q, want %q", target, "main.py")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "encode",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("encode", pflag.ContinueOnError)
			flagSet.Bool("source-map", false, "record a source map")
			flagSet.String("backend", "rans", "compression backend")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--backnd", "zstd"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --backend?") {
		t.Errorf("error = %q, want suggestion for --backend", err.Error())
	}
	var usage *UsageError
	if !errors.As(err, &usage) {
		t.Errorf("error type = %T, want *UsageError", err)
	}
}

func TestCommand_Execute_UnknownCommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "qyn",
		Subcommands: []*Command{
			{Name: "migrate", Run: func(args []string) error { return nil }},
			{Name: "inspect", Run: func(args []string) error { return nil }},
		},
	}

	err := root.Execute([]string{"migrat"})
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(err.Error(), `did you mean "migrate"?`) {
		t.Errorf("error = %q, want suggestion for migrate", err.Error())
	}
}

func TestCommand_Execute_SubcommandRequired(t *testing.T) {
	var help bytes.Buffer
	root := &Command{
		Name:       "qyn",
		HelpOutput: &help,
		Subcommands: []*Command{
			{Name: "version", Summary: "Print version information", Run: func(args []string) error { return nil }},
		},
	}

	err := root.Execute(nil)
	var usage *UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("error = %v, want *UsageError", err)
	}
	if !strings.Contains(help.String(), "Print version information") {
		t.Errorf("help output missing subcommand summary:\n%s", help.String())
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "migrate",
		Description: "Rewrite an archive under another package version.",
		Usage:       "qyn migrate <archive> [flags]",
		Examples: []Example{
			{Description: "Upgrade in place", Command: "qyn migrate module.qyn1 --in-place"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
			flagSet.String("to", "", "target package version")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Rewrite an archive",
		"qyn migrate <archive> [flags]",
		"--to",
		"# Upgrade in place",
		"qyn migrate module.qyn1 --in-place",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q:\n%s", want, output)
		}
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	var help bytes.Buffer
	ran := false
	command := &Command{
		Name:       "decode",
		Summary:    "Decode an archive",
		HelpOutput: &help,
		Run:        func(args []string) error { ran = true; return nil },
	}

	if err := command.Execute([]string{"--help"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if ran {
		t.Error("Run called for --help")
	}
	if !strings.Contains(help.String(), "Decode an archive") {
		t.Errorf("help output = %q", help.String())
	}
}
