// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
)

// palette holds the styles used by the human-readable reports.
type palette struct {
	heading lipgloss.Style
	label   lipgloss.Style
	good    lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	faint   lipgloss.Style
}

// newPalette renders in 256 colours on a terminal and plain text
// everywhere else, so piped output and tests see no escape sequences.
func newPalette(w io.Writer) palette {
	profile := termenv.Ascii
	if cli.IsTerminal(w) {
		profile = termenv.ANSI256
	}
	renderer := lipgloss.NewRenderer(w, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)
	return palette{
		heading: renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("75")),
		label:   renderer.NewStyle().Foreground(lipgloss.Color("245")).Width(22),
		good:    renderer.NewStyle().Foreground(lipgloss.Color("78")),
		warn:    renderer.NewStyle().Foreground(lipgloss.Color("214")),
		bad:     renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		faint:   renderer.NewStyle().Faint(true),
	}
}
