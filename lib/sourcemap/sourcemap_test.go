// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sourcemap

import (
	"bytes"
	"errors"
	"testing"

	"github.com/klauspost/compress/zlib"

	"github.com/bureau-foundation/quenyan/lib/syntax"
)

func build(t *testing.T) *Map {
	t.Helper()
	module, err := syntax.Parse("def f(x):\n    return x\n")
	if err != nil {
		t.Fatal(err)
	}
	var builder Builder
	builder.Record(0, "meta:stream_start", nil)
	builder.Record(1, "construct:module", module)
	function := module.Body[0].(*syntax.FunctionDef)
	builder.Record(2, "construct:function", function)
	builder.Record(3, "flow:return", function.Body[0])
	return builder.Build("abc123", "1.0", "1.2.0")
}

func TestMarshalParse(t *testing.T) {
	original := build(t)
	data, err := original.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := parsed.Validate(4); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if len(parsed.Mappings) != 4 {
		t.Fatalf("parsed %d mappings", len(parsed.Mappings))
	}
	for index := range original.Mappings {
		if parsed.Mappings[index] != original.Mappings[index] {
			t.Errorf("mapping %d = %+v, want %+v", index, parsed.Mappings[index], original.Mappings[index])
		}
	}
	ret := parsed.Mappings[3]
	if ret.Node != "Return" || ret.StartLine != 2 || ret.StartColumn != 4 || ret.EndColumn != 12 {
		t.Errorf("return mapping = %+v", ret)
	}

	summary := parsed.Summary()
	if summary.Entries != 4 || summary.Synthetic != 1 || summary.Lines != 3 || summary.SourceHash != "abc123" {
		t.Errorf("Summary = %+v", summary)
	}
}

func TestAt(t *testing.T) {
	m := build(t)
	entry, ok := m.At(2, 6)
	if !ok || entry.Key != "flow:return" {
		t.Errorf("At(2, 6) = %+v, %v", entry, ok)
	}
	entry, ok = m.At(1, 0)
	if !ok || entry.Key != "construct:function" {
		t.Errorf("At(1, 0) = %+v, %v", entry, ok)
	}
	if _, ok := m.At(9, 0); ok {
		t.Error("At found an entry past the end of the source")
	}
}

func TestValidateRejectsMisalignment(t *testing.T) {
	m := build(t)
	if err := m.Validate(5); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Validate(5) = %v", err)
	}
	m.Mappings[2].Token = 7
	if err := m.Validate(4); !errors.Is(err, ErrCorrupt) {
		t.Errorf("renumbered entry: %v", err)
	}
}

func TestParseLimits(t *testing.T) {
	if _, err := Parse([]byte("not zlib")); !errors.Is(err, ErrCorrupt) {
		t.Errorf("garbage: %v", err)
	}
	var buffer bytes.Buffer
	writer := zlib.NewWriter(&buffer)
	writer.Write(bytes.Repeat([]byte{' '}, 1<<16))
	writer.Close()
	if _, err := ParseLimited(buffer.Bytes(), 1024); !errors.Is(err, ErrCorrupt) {
		t.Errorf("oversized: %v", err)
	}
}
