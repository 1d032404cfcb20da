// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
	"github.com/bureau-foundation/quenyan/lib/archive"
	"github.com/bureau-foundation/quenyan/lib/envelope"
	"github.com/bureau-foundation/quenyan/lib/morpheme"
	"github.com/bureau-foundation/quenyan/lib/syntax"
	"github.com/bureau-foundation/quenyan/lib/version"
)

// Lint severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// LintFinding is one problem found in an archive.
type LintFinding struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// LintReport lists the findings for one archive.
type LintReport struct {
	Archive  string        `json:"archive"`
	Findings []LintFinding `json:"findings"`
}

type lintParams struct {
	commonParams
	keyParams
	decodeParams
	cli.JSONOutput
	Strict bool `flag:"strict" desc:"treat warnings as errors"`
}

func (a *app) lintCommand() *cli.Command {
	var params lintParams
	return &cli.Command{
		Name:    "lint",
		Summary: "Report quality and hygiene problems in archives",
		Description: `Decode archives and report problems that do not stop them from
decoding: substituted (meta:unknown) tokens, missing source maps,
outdated package versions or envelopes, overdue key rotation and
malformed trees.

Exits 1 when any archive has an error-level finding, or any finding
at all with --strict.`,
		Usage: "qyn lint <archive>... [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("lint", &params) },
		Run: func(args []string) error {
			if len(args) == 0 {
				return cli.Usagef("usage: qyn lint <archive>... [flags]")
			}
			return a.runLint(args, params)
		},
	}
}

func (a *app) runLint(paths []string, params lintParams) error {
	s, err := a.open(params.commonParams, "lint")
	if err != nil {
		return err
	}
	key, err := a.key(s, params.keyParams)
	if err != nil {
		return err
	}
	defer key.Close()

	reports := make([]LintReport, 0, len(paths))
	failing := false
	for _, path := range paths {
		report := LintReport{Archive: path, Findings: a.lintOne(s, path, key.Bytes(), params.decodeParams)}
		for _, finding := range report.Findings {
			if finding.Severity == SeverityError || (params.Strict && finding.Severity == SeverityWarning) {
				failing = true
			}
		}
		reports = append(reports, report)
	}

	if done, err := params.EmitJSON(a.stdout, reports); done {
		if err != nil {
			return err
		}
	} else {
		p := newPalette(a.stdout)
		for _, report := range reports {
			if len(report.Findings) == 0 {
				fmt.Fprintf(a.stdout, "%s: %s\n", report.Archive, p.good.Render("clean"))
				continue
			}
			for _, finding := range report.Findings {
				severity := finding.Severity
				switch severity {
				case SeverityError:
					severity = p.bad.Render(severity)
				case SeverityWarning:
					severity = p.warn.Render(severity)
				default:
					severity = p.faint.Render(severity)
				}
				fmt.Fprintf(a.stdout, "%s: %s [%s] %s\n", report.Archive, severity, finding.Rule, finding.Message)
			}
		}
	}
	if failing {
		return &cli.ExitError{Code: ExitFailure}
	}
	return nil
}

func (a *app) lintOne(s *session, path string, passphrase []byte, params decodeParams) []LintFinding {
	findings := []LintFinding{}
	add := func(rule, severity, format string, args ...any) {
		findings = append(findings, LintFinding{Rule: rule, Severity: severity, Message: fmt.Sprintf(format, args...)})
	}

	data, err := readArchive(path)
	if err != nil {
		add("readable", SeverityError, "%v", err)
		return findings
	}
	if summary, err := archive.Inspect(data); err == nil && summary.Encryption.Version == envelope.VersionLegacy {
		add("legacy-envelope", SeverityWarning, "encrypted with the legacy PBKDF2 envelope; migrate to re-encrypt")
	}

	decoded, err := a.openArchive(s, path, passphrase, params)
	if err != nil {
		add("decodes", SeverityError, "%s error: %v", archive.Classify(err), err)
		return findings
	}

	if decoded.PayloadVersion.Less(version.Current) {
		add("package-version", SeverityWarning, "package version %s is older than %s", decoded.PayloadVersion, version.Current)
	}

	fallback := decoded.Stream.Dictionary.FallbackCode()
	unknown := 0
	for _, code := range decoded.Stream.Tokens {
		if code == fallback {
			unknown++
		}
	}
	if unknown > 0 {
		add("unknown-tokens", SeverityWarning, "%d token(s) substituted with %s", unknown, morpheme.FallbackKey)
	}

	if decoded.Stream.SourceMap == nil {
		add("source-map", SeverityInfo, "no source map recorded")
	}

	metadata := decoded.Metadata
	if metadata != nil {
		if metadata.RotationDue != "" {
			due, err := parseRotationDue(metadata.RotationDue)
			switch {
			case err != nil:
				add("rotation-due", SeverityWarning, "unparseable rotation_due %q", metadata.RotationDue)
			case a.clock.Now().After(due):
				add("rotation-due", SeverityError, "key rotation was due %s", metadata.RotationDue)
			}
		}
		if metadata.SourceHash == "" {
			add("source-hash", SeverityWarning, "no source hash recorded")
		}
	}

	registry, err := s.registry()
	if err != nil {
		add("tree", SeverityError, "%v", err)
		return findings
	}
	tree, err := decoded.Tree(registry)
	if err != nil {
		add("tree", SeverityError, "%v", err)
		return findings
	}
	if err := syntax.Check(tree); err != nil {
		add("tree", SeverityError, "%v", err)
	}
	return findings
}

// parseRotationDue accepts an RFC 3339 timestamp or a bare date, which
// is due at the end of that day in UTC.
func parseRotationDue(value string) (time.Time, error) {
	if due, err := time.Parse(time.RFC3339, value); err == nil {
		return due, nil
	}
	day, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(24*time.Hour - time.Nanosecond), nil
}
