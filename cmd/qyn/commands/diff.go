// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
)

type diffParams struct {
	commonParams
	keyParams
	decodeParams
	cli.JSONOutput
	Context int `flag:"context" desc:"unchanged tokens shown around each change" default:"2"`
}

// DiffChange is one token-level edit. Indices are positions in the
// left and right token streams; the one not applicable to the op is -1.
type DiffChange struct {
	Op         string `json:"op"`
	LeftIndex  int    `json:"left_index"`
	RightIndex int    `json:"right_index"`
	Token      string `json:"token"`
}

// DiffReport compares the token streams of two archives.
type DiffReport struct {
	Left        string       `json:"left"`
	Right       string       `json:"right"`
	Identical   bool         `json:"identical"`
	LeftTokens  int          `json:"left_tokens"`
	RightTokens int          `json:"right_tokens"`
	Added       int          `json:"added"`
	Removed     int          `json:"removed"`
	Changes     []DiffChange `json:"changes"`
}

func (a *app) diffCommand() *cli.Command {
	var params diffParams
	return &cli.Command{
		Name:    "diff",
		Summary: "Compare the token streams of two archives",
		Description: `Decode two archives and compare their morpheme streams. Tokens are
matched by dictionary key, so archives written against different
dictionary revisions compare by meaning rather than by code.

Exits 1 when the streams differ.`,
		Usage: "qyn diff <left> <right> [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("diff", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, 2, "qyn diff <left> <right> [flags]"); err != nil {
				return err
			}
			return a.runDiff(args[0], args[1], params)
		},
	}
}

func (a *app) runDiff(leftPath, rightPath string, params diffParams) error {
	s, err := a.open(params.commonParams, "diff")
	if err != nil {
		return err
	}
	key, err := a.key(s, params.keyParams)
	if err != nil {
		return err
	}
	defer key.Close()

	left, err := a.openArchive(s, leftPath, key.Bytes(), params.decodeParams)
	if err != nil {
		return fmt.Errorf("%s: %w", leftPath, err)
	}
	right, err := a.openArchive(s, rightPath, key.Bytes(), params.decodeParams)
	if err != nil {
		return fmt.Errorf("%s: %w", rightPath, err)
	}

	leftKeys := make([]string, len(left.Stream.Tokens))
	for i, code := range left.Stream.Tokens {
		leftKeys[i] = left.Stream.Dictionary.Key(code)
	}
	rightKeys := make([]string, len(right.Stream.Tokens))
	for i, code := range right.Stream.Tokens {
		rightKeys[i] = right.Stream.Dictionary.Key(code)
	}
	leftTrace := left.Stream.Trace()
	rightTrace := right.Stream.Trace()

	report := DiffReport{
		Left:        leftPath,
		Right:       rightPath,
		LeftTokens:  len(leftKeys),
		RightTokens: len(rightKeys),
	}
	edits := diffTokens(leftKeys, rightKeys)
	for _, edit := range edits {
		change := DiffChange{Op: edit.op, LeftIndex: edit.left, RightIndex: edit.right}
		switch edit.op {
		case "-":
			change.Token = leftTrace[edit.left]
			change.RightIndex = -1
			report.Removed++
		case "+":
			change.Token = rightTrace[edit.right]
			change.LeftIndex = -1
			report.Added++
		default:
			continue
		}
		report.Changes = append(report.Changes, change)
	}
	report.Identical = len(report.Changes) == 0

	if done, err := params.EmitJSON(a.stdout, report); done {
		if err != nil {
			return err
		}
	} else {
		a.printDiff(report, edits, leftTrace, params.Context)
	}
	if !report.Identical {
		return &cli.ExitError{Code: ExitFailure}
	}
	return nil
}

func (a *app) printDiff(report DiffReport, edits []edit, leftTrace []string, context int) {
	p := newPalette(a.stdout)
	if report.Identical {
		fmt.Fprintf(a.stdout, "%s and %s have identical token streams (%d tokens)\n",
			report.Left, report.Right, report.LeftTokens)
		return
	}
	fmt.Fprintln(a.stdout, p.heading.Render("--- "+report.Left))
	fmt.Fprintln(a.stdout, p.heading.Render("+++ "+report.Right))

	visible := make([]bool, len(edits))
	for i, e := range edits {
		if e.op == "=" {
			continue
		}
		for j := max(0, i-context); j <= min(len(edits)-1, i+context); j++ {
			visible[j] = true
		}
	}
	changeIndex := 0
	gap := false
	for i, e := range edits {
		if !visible[i] {
			gap = true
			continue
		}
		if gap {
			fmt.Fprintln(a.stdout, p.faint.Render("  ..."))
			gap = false
		}
		switch e.op {
		case "=":
			fmt.Fprintf(a.stdout, "  %6d %s\n", e.left, leftTrace[e.left])
		case "-":
			fmt.Fprintln(a.stdout, p.bad.Render(fmt.Sprintf("- %6d %s", e.left, report.Changes[changeIndex].Token)))
			changeIndex++
		case "+":
			fmt.Fprintln(a.stdout, p.good.Render(fmt.Sprintf("+ %6d %s", e.right, report.Changes[changeIndex].Token)))
			changeIndex++
		}
	}
	fmt.Fprintf(a.stdout, "%d removed, %d added\n", report.Removed, report.Added)
}

// edit is one step of a token alignment. op is "=", "-" or "+".
type edit struct {
	op    string
	left  int
	right int
}

// maxAlignmentCells bounds the LCS table. Larger differing regions are
// reported as a single removal followed by a single insertion.
const maxAlignmentCells = 1 << 22

// diffTokens aligns two token sequences. Common prefixes and suffixes
// are matched directly and only the differing middle is aligned with a
// longest-common-subsequence table.
func diffTokens(left, right []string) []edit {
	prefix := 0
	for prefix < len(left) && prefix < len(right) && left[prefix] == right[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(left)-prefix && suffix < len(right)-prefix &&
		left[len(left)-1-suffix] == right[len(right)-1-suffix] {
		suffix++
	}

	var edits []edit
	for i := range prefix {
		edits = append(edits, edit{op: "=", left: i, right: i})
	}
	edits = append(edits, alignMiddle(left[prefix:len(left)-suffix], right[prefix:len(right)-suffix], prefix)...)
	for i := range suffix {
		l := len(left) - suffix + i
		r := len(right) - suffix + i
		edits = append(edits, edit{op: "=", left: l, right: r})
	}
	return edits
}

func alignMiddle(left, right []string, offset int) []edit {
	n, m := len(left), len(right)
	var edits []edit
	if n*m > maxAlignmentCells {
		for i := range n {
			edits = append(edits, edit{op: "-", left: offset + i, right: -1})
		}
		for j := range m {
			edits = append(edits, edit{op: "+", left: -1, right: offset + j})
		}
		return edits
	}

	// lengths[i][j] is the LCS length of left[i:] and right[j:].
	lengths := make([][]int, n+1)
	for i := range lengths {
		lengths[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if left[i] == right[j] {
				lengths[i][j] = lengths[i+1][j+1] + 1
			} else {
				lengths[i][j] = max(lengths[i+1][j], lengths[i][j+1])
			}
		}
	}

	i, j := 0, 0
	for i < n || j < m {
		switch {
		case i < n && j < m && left[i] == right[j]:
			edits = append(edits, edit{op: "=", left: offset + i, right: offset + j})
			i++
			j++
		case i < n && (j == m || lengths[i+1][j] >= lengths[i][j+1]):
			edits = append(edits, edit{op: "-", left: offset + i, right: -1})
			i++
		default:
			edits = append(edits, edit{op: "+", left: -1, right: offset + j})
			j++
		}
	}
	return edits
}
