// Package ui renders progress and status lines for the analyze CLI on stderr.
package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// UI writes human-oriented output. Machine-readable output (reports, OCR
// text) goes to stdout and never through UI.
type UI struct {
	out     io.Writer
	noColor bool
}

// New returns a UI writing to w. A nil w means stderr.
func New(w io.Writer, noColor bool) *UI {
	if w == nil {
		w = os.Stderr
	}
	return &UI{out: w, noColor: noColor}
}

// Success prints a success line.
func (u *UI) Success(format string, args ...any) {
	u.line(color.FgGreen, "✓", format, args...)
}

// Error prints an error line.
func (u *UI) Error(format string, args ...any) {
	u.line(color.FgRed, "✗", format, args...)
}

// Info prints an informational line.
func (u *UI) Info(format string, args ...any) {
	u.line(color.FgCyan, "ℹ", format, args...)
}

func (u *UI) line(attr color.Attribute, mark, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if u.noColor {
		fmt.Fprintf(u.out, "%s %s\n", mark, msg)
		return
	}
	color.New(attr).Fprintf(u.out, "%s %s\n", mark, msg)
}

// ProgressBar tracks job progress on a 0-100 scale.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar creates a bar with the given description.
func (u *UI) NewProgressBar(description string) *ProgressBar {
	out := u.out
	bar := progressbar.NewOptions(
		100,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &ProgressBar{bar: bar}
}

// Update moves the bar to progress and shows message beside it.
func (p *ProgressBar) Update(progress int, message string) {
	p.bar.Describe(message)
	_ = p.bar.Set(progress)
}

// Finish completes the bar.
func (p *ProgressBar) Finish() {
	_ = p.bar.Finish()
}

// Spinner shows indeterminate progress.
type Spinner struct {
	spinner *spinner.Spinner
}

// NewSpinner creates a stopped spinner with the given message.
func (u *UI) NewSpinner(message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = u.out
	return &Spinner{spinner: s}
}

// Start starts the animation.
func (s *Spinner) Start() { s.spinner.Start() }

// Stop stops the animation and clears the line.
func (s *Spinner) Stop() { s.spinner.Stop() }
