// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

type keyGroup struct {
	PassphraseFile string `flag:"passphrase-file" desc:"passphrase file"`
}

type sampleParams struct {
	JSONOutput
	keyGroup
	Output  string   `flag:"output,o" desc:"output path"`
	Backend string   `flag:"backend" desc:"compression backend" default:"rans"`
	Strict  bool     `flag:"strict" desc:"fail on unknown morphemes"`
	Workers int      `flag:"workers" desc:"worker count" default:"4"`
	Include []string `flag:"include" desc:"include patterns" default:"**/*.py"`
	Note    string
}

func TestFlagsFromParams_Defaults(t *testing.T) {
	var params sampleParams
	flagSet := FlagsFromParams("sample", &params)
	if err := flagSet.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if params.Backend != "rans" || params.Workers != 4 {
		t.Errorf("defaults = %+v", params)
	}
	if len(params.Include) != 1 || params.Include[0] != "**/*.py" {
		t.Errorf("include default = %v", params.Include)
	}
	if params.OutputJSON {
		t.Error("--json should default to false")
	}
}

func TestFlagsFromParams_Parse(t *testing.T) {
	var params sampleParams
	flagSet := FlagsFromParams("sample", &params)
	err := flagSet.Parse([]string{"-o", "out.qyn1", "--strict", "--json", "--workers=8", "--include", "a/*.py,b/*.py", "--passphrase-file", "key.txt", "rest"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if params.Output != "out.qyn1" || !params.Strict || !params.OutputJSON || params.Workers != 8 {
		t.Errorf("params = %+v", params)
	}
	if len(params.Include) != 2 {
		t.Errorf("include = %v", params.Include)
	}
	if params.PassphraseFile != "key.txt" {
		t.Errorf("embedded unexported group not bound: %+v", params.keyGroup)
	}
	if args := flagSet.Args(); len(args) != 1 || args[0] != "rest" {
		t.Errorf("args = %v", args)
	}
}

func TestBindFlags_RejectsNonStruct(t *testing.T) {
	value := 3
	if err := BindFlags(&value, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("expected error for a non-struct")
	}
}

func TestBindFlags_UnsupportedType(t *testing.T) {
	var params struct {
		Ratio float32 `flag:"ratio"`
	}
	if err := BindFlags(&params, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("expected error for an unsupported field type")
	}
}

func TestEmitJSON(t *testing.T) {
	var output JSONOutput
	var buffer bytes.Buffer

	done, err := output.EmitJSON(&buffer, []string(nil))
	if done || err != nil || buffer.Len() != 0 {
		t.Fatalf("EmitJSON without --json: done=%v err=%v output=%q", done, err, buffer.String())
	}

	output.OutputJSON = true
	done, err = output.EmitJSON(&buffer, []string(nil))
	if !done || err != nil {
		t.Fatalf("EmitJSON: done=%v err=%v", done, err)
	}
	if strings.TrimSpace(buffer.String()) != "[]" {
		t.Errorf("nil slice encoded as %q, want []", buffer.String())
	}
}
