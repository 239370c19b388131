// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/sealrun/lib/verify"
)

// Theme is the palette for check output, in ANSI 256-color codes.
type Theme struct {
	Pass  lipgloss.Color
	Fail  lipgloss.Color
	Warn  lipgloss.Color
	Skip  lipgloss.Color
	Faint lipgloss.Color
}

// DefaultTheme is used by [NewPrinter].
var DefaultTheme = Theme{
	Pass:  lipgloss.Color("114"), // green
	Fail:  lipgloss.Color("196"), // red
	Warn:  lipgloss.Color("220"), // amber
	Skip:  lipgloss.Color("245"), // gray
	Faint: lipgloss.Color("241"),
}

// Printer writes check lines and verdicts. Styling is applied only
// when the writer is a color-capable terminal; pipes and files receive
// plain text, so CI logs and tests see exactly "[PASS] name  detail".
type Printer struct {
	w        io.Writer
	renderer *lipgloss.Renderer
	theme    Theme
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, renderer: lipgloss.NewRenderer(w), theme: DefaultTheme}
}

func (p *Printer) statusColor(status verify.Status) lipgloss.Color {
	switch status {
	case verify.StatusPass:
		return p.theme.Pass
	case verify.StatusFail:
		return p.theme.Fail
	case verify.StatusWarn:
		return p.theme.Warn
	default:
		return p.theme.Skip
	}
}

// Check writes one check line.
func (p *Printer) Check(check verify.Check) {
	tag := p.renderer.NewStyle().Bold(true).Foreground(p.statusColor(check.Status)).
		Render("[" + strings.ToUpper(string(check.Status)) + "]")
	line := fmt.Sprintf("%s %-36s", tag, check.Name)
	if check.Detail != "" {
		line += " " + check.Detail
	}
	fmt.Fprintln(p.w, strings.TrimRight(line, " "))
}

// Field writes an indented "name: value" line with a faint label.
func (p *Printer) Field(name, value string) {
	label := p.renderer.NewStyle().Foreground(p.theme.Faint).Render(name + ":")
	fmt.Fprintf(p.w, "  %s %s\n", label, value)
}

// Result writes the final "RESULT: ..." line.
func (p *Printer) Result(ok bool, text string) {
	color := p.theme.Fail
	if ok {
		color = p.theme.Pass
	}
	fmt.Fprintf(p.w, "RESULT: %s\n", p.renderer.NewStyle().Bold(true).Foreground(color).Render(text))
}

// Report writes every check of report, a summary, and the verdict.
func (p *Printer) Report(report *verify.Report) {
	if report.Artifact != "" {
		fmt.Fprintf(p.w, "== %s\n", report.Artifact)
	}
	for _, check := range report.Checks {
		p.Check(check)
	}
	if report.RunID != "" {
		p.Field("run_id", report.RunID)
	}
	if report.CommitHash != "" {
		p.Field("commit_hash", report.CommitHash)
	}
	if report.ContentHash != "" {
		p.Field("content_hash", report.ContentHash)
	}
	p.Field("checks", fmt.Sprintf("%d passed, %d failed, %d warnings, %d skipped",
		report.Count(verify.StatusPass), report.Count(verify.StatusFail),
		report.Count(verify.StatusWarn), report.Count(verify.StatusSkip)))

	if report.Verdict() == verify.Admissible {
		p.Field("level", report.Level().String())
		p.Result(true, string(verify.Admissible))
		return
	}
	names := make([]string, 0, len(report.Failed()))
	for _, check := range report.Failed() {
		names = append(names, check.Name)
	}
	p.Field("failed", strings.Join(names, ", "))
	p.Result(false, fmt.Sprintf("%s (exit %d)", verify.Inadmissible, report.ExitCode()))
}
