// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders terminal output for the cairn CLI.
//
// Output is styled with lipgloss when the destination is a terminal and
// falls back to plain ASCII otherwise, so piped output stays greppable.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Cairn palette: slate stone with a moss accent.
var (
	ColorMoss    = lipgloss.Color("#7FB069") // highlights, success
	ColorLichen  = lipgloss.Color("#A8C686") // secondary text
	ColorStone   = lipgloss.Color("#8D99AE") // borders, muted text
	ColorGranite = lipgloss.Color("#4A5568") // empty bar segments

	ColorSuccess = ColorMoss
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Bold     lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	BarFull  lipgloss.Style
	BarEmpty lipgloss.Style
	Box      lipgloss.Style
}{
	Title:    lipgloss.NewStyle().Bold(true).Foreground(ColorMoss),
	Subtitle: lipgloss.NewStyle().Foreground(ColorLichen),
	Bold:     lipgloss.NewStyle().Bold(true),
	Muted:    lipgloss.NewStyle().Foreground(ColorStone),
	Success:  lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:  lipgloss.NewStyle().Foreground(ColorWarning),
	Error:    lipgloss.NewStyle().Foreground(ColorError),
	BarFull:  lipgloss.NewStyle().Foreground(ColorMoss),
	BarEmpty: lipgloss.NewStyle().Foreground(ColorGranite),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorStone).
		Padding(0, 1),
}

// Icon is a status marker.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconBullet  Icon = "•"
)

// Render returns the icon with its color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// plain returns the ASCII stand-in used when output is not a terminal.
func (i Icon) plain() string {
	switch i {
	case IconSuccess:
		return "[x]"
	case IconWarning:
		return "[!]"
	case IconError:
		return "[E]"
	case IconPending:
		return "[ ]"
	default:
		return "-"
	}
}

// IsTerminal reports whether w is a terminal (including Cygwin ptys).
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes CLI output, styled or plain.
type Printer struct {
	w     io.Writer
	plain bool
}

// NewPrinter styles output only when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, plain: !IsTerminal(w)}
}

// NewPlainPrinter never styles output.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{w: w, plain: true}
}

// Plain reports whether styling is disabled.
func (p *Printer) Plain() bool { return p.plain }

// Title prints a heading.
func (p *Printer) Title(text string) {
	if p.plain {
		fmt.Fprintf(p.w, "%s\n%s\n", text, strings.Repeat("=", len(text)))
		return
	}
	fmt.Fprintln(p.w, Styles.Title.Render(text))
}

// Line prints text as is.
func (p *Printer) Line(text string) {
	fmt.Fprintln(p.w, text)
}

// KeyValue prints an aligned "key: value" row.
func (p *Printer) KeyValue(key string, value any) {
	label := fmt.Sprintf("%-18s", key+":")
	if !p.plain {
		label = Styles.Muted.Render(label)
	}
	fmt.Fprintf(p.w, "  %s %v\n", label, value)
}

// Item prints one bullet row with a status icon.
func (p *Printer) Item(icon Icon, text string) {
	marker := icon.plain()
	if !p.plain {
		marker = icon.Render()
	}
	fmt.Fprintf(p.w, "  %s %s\n", marker, text)
}

// Bar prints a labeled progress bar.
func (p *Printer) Bar(label string, percent, width int) {
	fmt.Fprintf(p.w, "  %-24s %s %3d%%\n", label, p.bar(percent, width), clampPercent(percent))
}

// Quote prints a boxed quote, or an indented one in plain mode.
func (p *Printer) Quote(text string) {
	if p.plain {
		fmt.Fprintf(p.w, "  \"%s\"\n", text)
		return
	}
	fmt.Fprintln(p.w, Styles.Box.Render(Styles.Subtitle.Render(text)))
}

func (p *Printer) bar(percent, width int) string {
	full, empty := barSegments(percent, width)
	if p.plain {
		return "[" + strings.Repeat("#", full) + strings.Repeat(".", empty) + "]"
	}
	return Styles.BarFull.Render(strings.Repeat("█", full)) +
		Styles.BarEmpty.Render(strings.Repeat("░", empty))
}

// barSegments splits width cells into filled and empty, rounding to the
// nearest cell.
func barSegments(percent, width int) (full, empty int) {
	if width <= 0 {
		width = 20
	}
	full = (clampPercent(percent)*width + 50) / 100
	return full, width - full
}

func clampPercent(p int) int {
	return min(max(p, 0), 100)
}
