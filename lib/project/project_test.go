// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/quenyan/lib/archive"
	"github.com/bureau-foundation/quenyan/lib/clock"
	"github.com/bureau-foundation/quenyan/lib/compress"
	"github.com/bureau-foundation/quenyan/lib/envelope/envelopetest"
	"github.com/bureau-foundation/quenyan/lib/morpheme"
	"github.com/bureau-foundation/quenyan/lib/testutil"
)

var passphrase = []byte(testutil.Passphrase)

func sampleTree(t *testing.T) string {
	return testutil.WriteTree(t, map[string]string{
		"main.py":             testutil.Sources["identity"],
		"pkg/arithmetic.py":   testutil.Sources["arithmetic"],
		"pkg/deep/classes.py": testutil.Sources["classes"],
		"pkg/README.md":       "not python\n",
		".git/hooks/hook.py":  testutil.Sources["control"],
		"build/generated.py":  testutil.Sources["comprehensions"],
	})
}

func projectOptions(t *testing.T) Options {
	t.Helper()
	dictionary, err := morpheme.Load("1.0", morpheme.Options{})
	if err != nil {
		t.Fatalf("loading dictionary: %v", err)
	}
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	fake.AutoAdvance(time.Millisecond)
	return Options{
		Dictionary: dictionary,
		Include:    []string{"**/*.py"},
		Exclude:    []string{"build/**"},
		Workers:    3,
		Archive: archive.Options{
			Backend:    compress.NameZstd,
			Encryption: envelopetest.Fast(),
		},
		Clock: fake,
	}
}

func TestDiscover(t *testing.T) {
	root := sampleTree(t)
	files, err := Discover(root, []string{"**/*.py"}, []string{"build/**"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	want := []string{"main.py", "pkg/arithmetic.py", "pkg/deep/classes.py"}
	if strings.Join(files, ",") != strings.Join(want, ",") {
		t.Errorf("Discover = %v, want %v", files, want)
	}

	if _, err := Discover(root, []string{"[z-a"}, nil); err == nil {
		t.Error("expected error for a malformed pattern")
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"**/*.py", "main.py", true},
		{"**/*.py", "a/b/c.py", true},
		{"*.py", "a/b.py", false},
		{"pkg/**", "pkg/a/b.py", true},
		{"pkg/**/b.py", "pkg/b.py", true},
		{"pkg/*.py", "pkg/a/b.py", false},
		{"**", "anything/at/all", true},
		{"src/*.py", "lib/a.py", false},
	}
	for _, test := range tests {
		if got := Match(test.pattern, test.name); got != test.want {
			t.Errorf("Match(%q, %q) = %v, want %v", test.pattern, test.name, got, test.want)
		}
	}
}

func TestEncodeAndVerify(t *testing.T) {
	root := sampleTree(t)
	output := filepath.Join(t.TempDir(), "out")
	options := projectOptions(t)

	progress := make(chan Result, 8)
	options.Progress = func(result Result) { progress <- result }

	manifest, err := Encode(context.Background(), root, output, passphrase, options)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for range 3 {
		result := testutil.RequireReceive(t, progress, 5*time.Second, "waiting for progress")
		if result.Err != nil || result.Duration <= 0 {
			t.Errorf("progress result = %+v", result)
		}
	}

	if len(manifest.Files) != 3 {
		t.Fatalf("manifest has %d files, want 3", len(manifest.Files))
	}
	if manifest.Files[0].Path != "main.py" || manifest.Files[2].Archive != "pkg/deep/classes.py.qyn1" {
		t.Errorf("manifest files out of order: %+v", manifest.Files)
	}
	if manifest.Backend != compress.NameZstd || manifest.DictionaryVersion != "1.0" {
		t.Errorf("manifest = %+v", manifest)
	}
	if manifest.CreatedAt != "2026-03-01T12:00:00Z" {
		t.Errorf("created_at = %s", manifest.CreatedAt)
	}

	data, err := os.ReadFile(filepath.Join(output, "pkg", "arithmetic.py.qyn1"))
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	if HashArchive(data) != manifest.Files[1].ContentID {
		t.Error("content ID does not match archive bytes")
	}
	decoded, err := archive.Decode(data, passphrase, archive.DecodeOptions{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Metadata.SourceHash != manifest.Files[1].SourceHash {
		t.Error("source hash mismatch")
	}

	read, err := ReadManifest(output)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if read.ProjectID != manifest.ProjectID {
		t.Errorf("manifest on disk has project ID %s, returned %s", read.ProjectID, manifest.ProjectID)
	}

	if _, err := Verify(context.Background(), output, passphrase, VerifyOptions{Workers: 2}); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, err := Verify(context.Background(), output, []byte("wrong"), VerifyOptions{}); err == nil {
		t.Fatal("Verify succeeded with the wrong passphrase")
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	root := sampleTree(t)
	output := t.TempDir()
	if _, err := Encode(context.Background(), root, output, passphrase, projectOptions(t)); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	path := filepath.Join(output, "main.py.qyn1")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)/2] ^= 0x01
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = Verify(context.Background(), output, passphrase, VerifyOptions{})
	if err == nil || !strings.Contains(err.Error(), "main.py") {
		t.Fatalf("Verify error = %v, want one naming main.py", err)
	}
}

func TestEncodeReportsFailedFiles(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"good.py": testutil.Sources["identity"],
		"bad.py":  "def broken(:\n",
	})
	output := t.TempDir()

	manifest, err := Encode(context.Background(), root, output, passphrase, projectOptions(t))
	if err == nil || !strings.Contains(err.Error(), "bad.py") {
		t.Fatalf("error = %v, want one naming bad.py", err)
	}
	if manifest == nil || len(manifest.Files) != 1 || manifest.Files[0].Path != "good.py" {
		t.Fatalf("manifest = %+v, want only good.py", manifest)
	}
	if _, err := os.Stat(filepath.Join(output, ManifestName)); err != nil {
		t.Errorf("manifest not written: %v", err)
	}
}

func TestEncodeCancelled(t *testing.T) {
	root := sampleTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Encode(ctx, root, t.TempDir(), passphrase, projectOptions(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestEncodeRequiresDictionaryAndPassphrase(t *testing.T) {
	root := sampleTree(t)
	options := projectOptions(t)
	if _, err := Encode(context.Background(), root, t.TempDir(), nil, options); err == nil {
		t.Error("expected error for an empty passphrase")
	}
	options.Dictionary = nil
	if _, err := Encode(context.Background(), root, t.TempDir(), passphrase, options); err == nil {
		t.Error("expected error without a dictionary")
	}
}

func TestTreeID(t *testing.T) {
	a := HashArchive([]byte("a"))
	b := HashArchive([]byte("b"))
	c := HashArchive([]byte("c"))

	if TreeID([]ContentID{a}) != a {
		t.Error("single-entry tree should be its only ID")
	}
	if TreeID([]ContentID{a, b}) == TreeID([]ContentID{b, a}) {
		t.Error("tree ID should depend on order")
	}
	if TreeID([]ContentID{a, b, c}) == TreeID([]ContentID{a, b}) {
		t.Error("adding an entry should change the tree ID")
	}
	if TreeID(nil) == (ContentID{}) {
		t.Error("empty tree ID should not be zero")
	}

	parsed, err := ParseContentID(a.String())
	if err != nil || parsed != a {
		t.Errorf("ParseContentID round trip: %v", err)
	}
	if _, err := ParseContentID("abcd"); err == nil {
		t.Error("expected error for a short content ID")
	}
}
