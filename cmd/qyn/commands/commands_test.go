// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
	"github.com/bureau-foundation/quenyan/lib/archive"
	"github.com/bureau-foundation/quenyan/lib/clock"
	"github.com/bureau-foundation/quenyan/lib/compress"
	"github.com/bureau-foundation/quenyan/lib/morpheme"
	"github.com/bureau-foundation/quenyan/lib/project"
	"github.com/bureau-foundation/quenyan/lib/sealed"
	"github.com/bureau-foundation/quenyan/lib/syntax"
	"github.com/bureau-foundation/quenyan/lib/version"
)

const testPassphrase = "mellon"

// testConfig keeps Argon2id at its cheapest so each archive costs
// milliseconds.
const testConfig = `environment: development
encryption:
  argon2:
    time_cost: 1
    memory_kib: 64
    parallelism: 1
`

const addSource = "def add(a, b):\n    return a + b\n"

const subSource = "def add(a, b):\n    return a - b\n"

type harness struct {
	t      *testing.T
	dir    string
	stdin  io.Reader
	stdout bytes.Buffer
	stderr bytes.Buffer
	clock  *clock.FakeClock
}

// newHarness writes a config file built from testConfig plus extra and
// points QYN_CONFIG at it.
func newHarness(t *testing.T, extra string) *harness {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "qyn.yaml")
	if err := os.WriteFile(configPath, []byte(testConfig+extra), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QYN_CONFIG", configPath)
	t.Setenv("QYN_PASSPHRASE", testPassphrase)
	return &harness{
		t:     t,
		dir:   dir,
		stdin: strings.NewReader(""),
		clock: clock.Fake(time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)),
	}
}

func (h *harness) run(args ...string) error {
	h.stdout.Reset()
	h.stderr.Reset()
	a := &app{stdin: h.stdin, stdout: &h.stdout, stderr: &h.stderr, clock: h.clock}
	return a.root().Execute(args)
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	if err := h.run(args...); err != nil {
		h.t.Fatalf("qyn %s: %v\nstderr:\n%s", strings.Join(args, " "), err, h.stderr.String())
	}
	return h.stdout.String()
}

func (h *harness) path(name string) string { return filepath.Join(h.dir, name) }

func (h *harness) write(name, content string) string {
	h.t.Helper()
	path := h.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		h.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		h.t.Fatal(err)
	}
	return path
}

// encode writes source to name and encodes it to name.qyn1.
func (h *harness) encode(name, source string, flags ...string) string {
	h.t.Helper()
	path := h.write(name, source)
	h.mustRun(append([]string{"encode", path}, flags...)...)
	return path + ".qyn1"
}

func canonical(t *testing.T, source string) string {
	t.Helper()
	tree, err := syntax.Parse(source)
	if err != nil {
		t.Fatal(err)
	}
	return syntax.Unparse(tree)
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var exit *cli.ExitError
	if !errors.As(err, &exit) {
		t.Fatalf("error = %v, want exit code %d", err, code)
	}
	if exit.Code != code {
		t.Fatalf("exit code = %d, want %d", exit.Code, code)
	}
}

func TestEncodeDecode(t *testing.T) {
	h := newHarness(t, "")
	archivePath := h.encode("app.py", addSource)

	if output := h.mustRun("decode", archivePath, "--color", "never"); output != canonical(t, addSource) {
		t.Errorf("decoded source = %q, want %q", output, canonical(t, addSource))
	}

	restored := h.path("restored.py")
	h.mustRun("decode", archivePath, "-o", restored)
	data, err := os.ReadFile(restored)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != canonical(t, addSource) {
		t.Errorf("restored file = %q", data)
	}
}

func TestEncodeJSONReport(t *testing.T) {
	h := newHarness(t, "")
	source := h.write("app.py", addSource)
	output := h.path("out/app.qyn1")
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		t.Fatal(err)
	}

	var report EncodeReport
	if err := json.Unmarshal([]byte(h.mustRun("encode", source, "-o", output, "--backend", "zstd", "--json")), &report); err != nil {
		t.Fatal(err)
	}
	if report.Archive != output || report.Source != source {
		t.Errorf("paths = %q, %q", report.Source, report.Archive)
	}
	if report.Backend != compress.NameZstd {
		t.Errorf("backend = %q, want zstd", report.Backend)
	}
	if report.PackageVersion != version.Current.String() {
		t.Errorf("package version = %q, want %s", report.PackageVersion, version.Current)
	}
	if report.Tokens == 0 || report.SourceBytes != len(addSource) || report.ArchiveBytes == 0 {
		t.Errorf("sizes = %+v", report)
	}
	if report.Warnings == nil || len(report.Warnings) != 0 {
		t.Errorf("warnings = %v, want empty", report.Warnings)
	}
}

func TestDecodeRejectsBadColor(t *testing.T) {
	h := newHarness(t, "")
	archivePath := h.encode("app.py", addSource)
	err := h.run("decode", archivePath, "--color", "sometimes")
	if ExitCode(err) != cli.ExitUsage {
		t.Errorf("exit code = %d, want usage (%v)", ExitCode(err), err)
	}
}

func TestPassphraseFromStdin(t *testing.T) {
	h := newHarness(t, "")
	archivePath := h.encode("app.py", addSource)
	t.Setenv("QYN_PASSPHRASE", "")

	h.stdin = strings.NewReader(testPassphrase + "\n")
	if output := h.mustRun("decode", archivePath, "--passphrase-file", "-"); output != canonical(t, addSource) {
		t.Errorf("decoded source = %q", output)
	}
}

func TestVerify(t *testing.T) {
	h := newHarness(t, "")
	archivePath := h.encode("app.py", addSource)

	output := h.mustRun("verify", archivePath, "--source", h.path("app.py"))
	if !strings.HasPrefix(output, "ok") {
		t.Errorf("verify output = %q", output)
	}

	other := h.write("other.py", subSource)
	err := h.run("verify", archivePath, "--source", other)
	requireExitCode(t, err, ExitFailure)
	if !strings.Contains(h.stdout.String(), "does not match") {
		t.Errorf("verify output = %q, want a hash mismatch", h.stdout.String())
	}
}

func TestVerifyWrongPassphrase(t *testing.T) {
	h := newHarness(t, "")
	archivePath := h.encode("app.py", addSource)
	t.Setenv("QYN_PASSPHRASE", "not mellon")

	err := h.run("verify", archivePath, "--json")
	requireExitCode(t, err, ExitFailure)
	var results []VerifyResult
	if err := json.Unmarshal(h.stdout.Bytes(), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].OK || results[0].Kind != archive.KindCrypto.String() {
		t.Errorf("results = %+v, want one crypto failure", results)
	}

	if err := h.run("decode", archivePath); ExitCode(err) != ExitCrypto {
		t.Errorf("decode exit code = %d, want %d (%v)", ExitCode(err), ExitCrypto, err)
	}
}

func TestInspect(t *testing.T) {
	h := newHarness(t, "")
	archivePath := h.encode("app.py", addSource, "--author", "Fëanor")
	t.Setenv("QYN_PASSPHRASE", "")

	var summary archive.Summary
	if err := json.Unmarshal([]byte(h.mustRun("inspect", archivePath, "--json")), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.WrapperVersion != version.Current.String() {
		t.Errorf("wrapper version = %q", summary.WrapperVersion)
	}
	if summary.Metadata == nil || summary.Metadata.Author != "Fëanor" {
		t.Fatalf("metadata = %+v", summary.Metadata)
	}
	if summary.Metadata.KeyProvider != "env" || summary.Metadata.KeyID != "QYN_PASSPHRASE" {
		t.Errorf("key annotations = %q/%q", summary.Metadata.KeyProvider, summary.Metadata.KeyID)
	}
	if summary.Metadata.Timestamp != "2026-10-15T12:00:00Z" {
		t.Errorf("timestamp = %q", summary.Metadata.Timestamp)
	}

	text := h.mustRun("inspect", archivePath)
	for _, want := range []string{archivePath, "encryption", "Fëanor"} {
		if !strings.Contains(text, want) {
			t.Errorf("inspect output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "\x1b[") {
		t.Errorf("inspect output to a buffer contains escape sequences")
	}
}

func TestDiff(t *testing.T) {
	h := newHarness(t, "")
	left := h.encode("left.py", addSource)
	same := h.encode("same.py", addSource, "--backend", "fse")
	right := h.encode("right.py", subSource)

	if output := h.mustRun("diff", left, same); !strings.Contains(output, "identical") {
		t.Errorf("diff of equal trees = %q", output)
	}

	err := h.run("diff", left, right, "--json")
	requireExitCode(t, err, ExitFailure)
	var report DiffReport
	if err := json.Unmarshal(h.stdout.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Identical || report.Added != 1 || report.Removed != 1 {
		t.Errorf("report = %+v, want one token replaced", report)
	}
	if len(report.Changes) != 2 || report.Changes[0].Op != "-" || report.Changes[1].Op != "+" {
		t.Errorf("changes = %+v", report.Changes)
	}
}

func TestDiffTokens(t *testing.T) {
	tests := []struct {
		name        string
		left, right []string
		want        string
	}{
		{"equal", []string{"a", "b"}, []string{"a", "b"}, "=="},
		{"insert", []string{"a", "c"}, []string{"a", "b", "c"}, "=+="},
		{"delete", []string{"a", "b", "c"}, []string{"a", "c"}, "=-="},
		{"replace", []string{"a", "b", "c"}, []string{"a", "x", "c"}, "=-+="},
		{"empty left", nil, []string{"a"}, "+"},
		{"empty right", []string{"a"}, nil, "-"},
		{"interleaved", []string{"a", "b", "c", "d"}, []string{"b", "a", "d", "c"}, "-=-+=+"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ops strings.Builder
			for _, e := range diffTokens(tt.left, tt.right) {
				ops.WriteString(e.op)
			}
			if ops.String() != tt.want {
				t.Errorf("ops = %q, want %q", ops.String(), tt.want)
			}
		})
	}
}

func TestLint(t *testing.T) {
	h := newHarness(t, "keys:\n  rotation_due: \"2026-01-01\"\n")
	archivePath := h.encode("app.py", addSource)

	err := h.run("lint", archivePath, "--json")
	requireExitCode(t, err, ExitFailure)
	var reports []LintReport
	if err := json.Unmarshal(h.stdout.Bytes(), &reports); err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %+v", reports)
	}
	rules := map[string]string{}
	for _, finding := range reports[0].Findings {
		rules[finding.Rule] = finding.Severity
	}
	if rules["rotation-due"] != SeverityError {
		t.Errorf("rotation-due = %q, want error (findings %+v)", rules["rotation-due"], reports[0].Findings)
	}
	if rules["source-map"] != SeverityInfo {
		t.Errorf("source-map = %q, want info", rules["source-map"])
	}

	// Before the due date the archive only carries the info finding.
	h.clock.Set(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if err := h.run("lint", archivePath); err != nil {
		t.Errorf("lint before rotation: %v\n%s", err, h.stdout.String())
	}
}

func TestParseRotationDue(t *testing.T) {
	due, err := parseRotationDue("2026-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if !due.After(time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC)) || !due.Before(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date due = %v, want the end of the day", due)
	}
	if _, err := parseRotationDue("2026-01-01T08:00:00+02:00"); err != nil {
		t.Errorf("RFC 3339: %v", err)
	}
	if _, err := parseRotationDue("next tuesday"); err == nil {
		t.Error("expected an error for free text")
	}
}

func TestMigrate(t *testing.T) {
	h := newHarness(t, "")
	archivePath := h.encode("app.py", addSource, "--package-version", "1.1")

	if err := h.run("migrate", archivePath); ExitCode(err) != cli.ExitUsage {
		t.Errorf("migrate without a destination: exit %d (%v)", ExitCode(err), err)
	}

	var report archive.MigrationReport
	if err := json.Unmarshal([]byte(h.mustRun("migrate", archivePath, "--in-place", "--actor", "ci", "--json")), &report); err != nil {
		t.Fatal(err)
	}
	if !report.Changed || report.PreviousPackageVersion != "1.1.0" || report.PackageVersion != version.Current.String() {
		t.Errorf("report = %+v", report)
	}
	if _, err := os.Stat(archivePath + ".bak"); err != nil {
		t.Errorf("backup: %v", err)
	}

	var summary archive.Summary
	if err := json.Unmarshal([]byte(h.mustRun("inspect", archivePath, "--json")), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Metadata == nil || len(summary.Metadata.AuditTrail) == 0 {
		t.Fatalf("metadata = %+v, want an audit trail", summary.Metadata)
	}
	last := summary.Metadata.AuditTrail[len(summary.Metadata.AuditTrail)-1]
	if last.Action != "migrate" || last.Actor != "ci" {
		t.Errorf("audit event = %+v", last)
	}

	if output := h.mustRun("decode", archivePath); output != canonical(t, addSource) {
		t.Errorf("migrated archive decodes to %q", output)
	}

	// A second migration has nothing to do.
	if output := h.mustRun("migrate", archivePath, "--in-place"); !strings.Contains(output, "already at") {
		t.Errorf("second migration output = %q", output)
	}
}

func TestSourceMap(t *testing.T) {
	h := newHarness(t, "")
	withMap := h.encode("app.py", addSource, "--source-map")
	without := h.encode("bare.py", addSource)

	var summary struct {
		Entries int `json:"entries"`
		Lines   int `json:"lines"`
	}
	if err := json.Unmarshal([]byte(h.mustRun("source-map", withMap, "--json")), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Entries == 0 || summary.Lines != 2 {
		t.Errorf("summary = %+v", summary)
	}

	var entry struct {
		Start [2]int `json:"start"`
		Node  string `json:"node"`
	}
	if err := json.Unmarshal([]byte(h.mustRun("source-map", withMap, "--at", "2:11", "--json")), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.Start[0] != 2 || entry.Node == "" {
		t.Errorf("entry at 2:11 = %+v", entry)
	}

	if err := h.run("source-map", without); err == nil || !strings.Contains(err.Error(), "no source map") {
		t.Errorf("archive without a map: %v", err)
	}
	if err := h.run("source-map", withMap, "--at", "two"); ExitCode(err) != cli.ExitUsage {
		t.Errorf("bad position: exit %d (%v)", ExitCode(err), err)
	}
}

func TestParsePosition(t *testing.T) {
	line, column, err := parsePosition("12:4")
	if err != nil || line != 12 || column != 4 {
		t.Errorf("parsePosition(12:4) = %d, %d, %v", line, column, err)
	}
	for _, bad := range []string{"12", "0:1", "a:1", "1:-1", "1:b"} {
		if _, _, err := parsePosition(bad); err == nil {
			t.Errorf("parsePosition(%q) succeeded", bad)
		}
	}
}

func TestMorphemes(t *testing.T) {
	h := newHarness(t, "")
	var entries []morpheme.Entry
	if err := json.Unmarshal([]byte(h.mustRun("morphemes", "--filter", morpheme.FallbackKey, "--json")), &entries); err != nil {
		t.Fatal(err)
	}
	if !slices.ContainsFunc(entries, func(e morpheme.Entry) bool { return e.Key == morpheme.FallbackKey }) {
		t.Errorf("filtered entries = %+v, want %s", entries, morpheme.FallbackKey)
	}

	text := h.mustRun("morphemes")
	if !strings.HasPrefix(text, "CODE") || !strings.Contains(text, "entries (dictionary") {
		t.Errorf("morphemes table:\n%s", text)
	}
}

func TestBackends(t *testing.T) {
	h := newHarness(t, "")
	var backends []BackendInfo
	if err := json.Unmarshal([]byte(h.mustRun("backends", "--json")), &backends); err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, backend := range backends {
		names = append(names, backend.Name)
		if backend.Description == "" {
			t.Errorf("%s has no description", backend.Name)
		}
		if backend.ModelModes != (backend.Name == compress.NameRANS) {
			t.Errorf("%s model modes = %v", backend.Name, backend.ModelModes)
		}
		if backend.Default != (backend.Name == compress.DefaultBackend) {
			t.Errorf("%s default = %v", backend.Name, backend.Default)
		}
	}
	if !slices.Equal(names, compress.Names()) {
		t.Errorf("names = %v, want %v", names, compress.Names())
	}
}

func TestVersion(t *testing.T) {
	h := newHarness(t, "")
	var report VersionReport
	if err := json.Unmarshal([]byte(h.mustRun("version", "--json")), &report); err != nil {
		t.Fatal(err)
	}
	if report.Protocol != version.Current.String() || report.Minimum != version.Minimum.String() {
		t.Errorf("protocol window = %s..%s", report.Minimum, report.Protocol)
	}
	if !slices.Contains(report.Supported, version.Current.String()) {
		t.Errorf("supported = %v", report.Supported)
	}
	if !report.Matrix[version.Current.String()][version.Minimum.String()] {
		t.Errorf("current decoder cannot read the minimum payload: %v", report.Matrix)
	}
	if len(report.Dictionaries) == 0 {
		t.Error("no dictionaries listed")
	}

	if text := h.mustRun("version"); !strings.Contains(text, version.Release) {
		t.Errorf("version output = %q", text)
	}
}

func TestProject(t *testing.T) {
	h := newHarness(t, "")
	h.write("src/app.py", addSource)
	h.write("src/pkg/util.py", subSource)
	h.write("src/README.md", "# not python\n")
	h.write("src/.git/hooks.py", "x = 1\n")
	out := h.path("encoded")

	var report ProjectReport
	if err := json.Unmarshal([]byte(h.mustRun("project", h.path("src"), "-o", out, "--workers", "2", "--json")), &report); err != nil {
		t.Fatal(err)
	}
	var paths []string
	for _, file := range report.Files {
		paths = append(paths, file.Path)
		if file.Error != "" {
			t.Errorf("%s: %s", file.Path, file.Error)
		}
	}
	if want := []string{"app.py", "pkg/util.py"}; !slices.Equal(paths, want) {
		t.Errorf("encoded files = %v, want %v", paths, want)
	}

	manifest, err := project.ReadManifest(out)
	if err != nil {
		t.Fatal(err)
	}
	if manifest.ProjectID.String() != report.ProjectID {
		t.Errorf("manifest project ID %s, report %s", manifest.ProjectID, report.ProjectID)
	}

	if output := h.mustRun("project", "--verify", out); !strings.Contains(output, "verified 2 files") {
		t.Errorf("verify output = %q", output)
	}

	if err := h.run("project", h.path("src")); ExitCode(err) != cli.ExitUsage {
		t.Errorf("project without --output: exit %d (%v)", ExitCode(err), err)
	}
}

func TestSeal(t *testing.T) {
	h := newHarness(t, "")
	identityPath := h.path("identity.txt")
	publicKey := strings.TrimSpace(h.mustRun("seal", "--keygen", identityPath))
	if !strings.HasPrefix(publicKey, "age1") {
		t.Fatalf("public key = %q", publicKey)
	}
	if err := h.run("seal", "--keygen", identityPath); err == nil {
		t.Error("keygen overwrote an existing identity")
	}

	sealedPath := h.path("passphrase.age")
	h.mustRun("seal", "-o", sealedPath, "-r", publicKey)

	identity, err := sealed.ReadIdentity(identityPath)
	if err != nil {
		t.Fatal(err)
	}
	defer identity.Close()
	opened, err := sealed.ReadFile(sealedPath, identity)
	if err != nil {
		t.Fatal(err)
	}
	defer opened.Close()
	if opened.String() != testPassphrase {
		t.Errorf("sealed passphrase = %q", opened.String())
	}

	if err := h.run("seal", "-o", sealedPath, "-r", "not-a-key"); ExitCode(err) != cli.ExitUsage {
		t.Errorf("bad recipient: exit %d (%v)", ExitCode(err), err)
	}
}

func TestAgeProviderDecodes(t *testing.T) {
	h := newHarness(t, "")
	identityPath := h.path("identity.txt")
	publicKey := strings.TrimSpace(h.mustRun("seal", "--keygen", identityPath))
	sealedPath := h.path("passphrase.age")
	h.mustRun("seal", "-o", sealedPath, "-r", publicKey)
	archivePath := h.encode("app.py", addSource)

	configPath := h.write("age.yaml", testConfig+"keys:\n  provider: age\n  passphrase_file: "+sealedPath+"\n  age_identity_file: "+identityPath+"\n")
	t.Setenv("QYN_PASSPHRASE", "")
	if output := h.mustRun("decode", archivePath, "--config", configPath); output != canonical(t, addSource) {
		t.Errorf("decoded source = %q", output)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"exit error", &cli.ExitError{Code: 1}, 1},
		{"usage", cli.Usagef("bad"), cli.ExitUsage},
		{"wrapped budget", errors.Join(errors.New("ctx"), &archive.BudgetError{}), ExitBudget},
		{"plain", errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t, "")
	err := h.run("encdoe")
	var usage *cli.UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("error = %v, want a usage error", err)
	}
	if !strings.Contains(usage.Message, `"encode"`) {
		t.Errorf("message = %q, want a suggestion", usage.Message)
	}
}
