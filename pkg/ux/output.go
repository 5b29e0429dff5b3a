// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the Movi CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Movi color palette, taken from transit signage
var (
	ColorRouteBlue  = lipgloss.Color("#2F80ED") // Route blue - titles, highlights
	ColorSignalTeal = lipgloss.Color("#20B9B4") // Signal teal - secondary elements
	ColorDepotGray  = lipgloss.Color("#4F5D6B") // Depot gray - borders, muted text

	ColorSuccess = lipgloss.Color("#27AE60") // Green signal
	ColorWarning = lipgloss.Color("#F2C94C") // Amber signal
	ColorError   = lipgloss.Color("#EB5757") // Red signal
	ColorMuted   = ColorDepotGray
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	InfoBox    lipgloss.Style
	WarningBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorRouteBlue),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorSignalTeal),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorRouteBlue).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorDepotGray).
		Padding(0, 1),
	InfoBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorSignalTeal).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
	IconBus     Icon = "🚌"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// Output writes styled messages for one personality level. The package
// level helpers use a shared Output on stdout.
type Output struct {
	w     io.Writer
	errW  io.Writer
	level PersonalityLevel
}

// NewOutput creates an Output. Machine-mode warnings and errors go to errW.
func NewOutput(w, errW io.Writer, level PersonalityLevel) *Output {
	return &Output{w: w, errW: errW, level: level}
}

func stdout() *Output {
	return NewOutput(os.Stdout, os.Stderr, GetPersonality().Level)
}

// Title prints a styled title
func (o *Output) Title(text string) {
	if o.level == PersonalityMachine {
		return
	}
	fmt.Fprintln(o.w, Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func (o *Output) Success(text string) {
	switch o.level {
	case PersonalityMachine:
		fmt.Fprintf(o.w, "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(o.w, "%s %s\n", IconSuccess.Render(), text)
	default:
		fmt.Fprintf(o.w, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func (o *Output) Warning(text string) {
	switch o.level {
	case PersonalityMachine:
		fmt.Fprintf(o.errW, "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(o.w, "%s %s\n", IconWarning.Render(), text)
	default:
		fmt.Fprintf(o.w, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message
func (o *Output) Error(text string) {
	switch o.level {
	case PersonalityMachine:
		fmt.Fprintf(o.errW, "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(o.w, "%s %s\n", IconError.Render(), text)
	default:
		fmt.Fprintf(o.w, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func (o *Output) Info(text string) {
	if o.level == PersonalityMachine {
		fmt.Fprintln(o.w, text)
		return
	}
	fmt.Fprintf(o.w, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Box prints text in a rounded box
func (o *Output) Box(title, content string) {
	if o.level == PersonalityMachine {
		fmt.Fprintf(o.w, "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(o.w, Styles.Box.Width(60).Render(Styles.Title.Render(title)+"\n"+content))
}

// Counts prints name=value pairs sorted by name, one per line in machine
// mode and as a boxed table otherwise.
func (o *Output) Counts(title string, counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	if o.level == PersonalityMachine {
		for _, name := range names {
			fmt.Fprintf(o.w, "%s=%d\n", name, counts[name])
		}
		return
	}

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%-12s %s", name, Styles.Bold.Render(fmt.Sprintf("%d", counts[name])))
	}
	o.Box(title, b.String())
}

// Title prints a styled title to stdout.
func Title(text string) { stdout().Title(text) }

// Success prints a success message to stdout.
func Success(text string) { stdout().Success(text) }

// Warning prints a warning message.
func Warning(text string) { stdout().Warning(text) }

// Error prints an error message.
func Error(text string) { stdout().Error(text) }

// Info prints an informational message to stdout.
func Info(text string) { stdout().Info(text) }

// Box prints text in a rounded box to stdout.
func Box(title, content string) { stdout().Box(title, content) }
