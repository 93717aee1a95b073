// Package ui prints human-oriented progress for the command line tools.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

const lineWidth = 60

// Printer writes colored progress lines to one writer.
type Printer struct {
	w      io.Writer
	green  *color.Color
	yellow *color.Color
	blue   *color.Color
	red    *color.Color
}

// New returns a printer for w. Color follows fatih/color's terminal
// detection and NO_COLOR.
func New(w io.Writer) *Printer {
	return &Printer{
		w:      w,
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow, color.Bold),
		blue:   color.New(color.FgBlue),
		red:    color.New(color.FgRed),
	}
}

var std = New(os.Stdout)

// Header prints a formatted header
func (p *Printer) Header(text string) {
	line := strings.Repeat("=", lineWidth)
	p.green.Fprintf(p.w, "\n%s\n", line)
	p.green.Fprintf(p.w, "%s\n", center(text, lineWidth))
	p.green.Fprintf(p.w, "%s\n\n", line)
}

// Step prints a step indicator
func (p *Printer) Step(stepNum, totalSteps int, text string) {
	p.yellow.Fprintf(p.w, "[%d/%d] %s\n", stepNum, totalSteps, text)
}

// Success prints a success message
func (p *Printer) Success(text string) {
	p.green.Fprintf(p.w, "  → %s\n", text)
}

// Info prints an info message
func (p *Printer) Info(text string) {
	fmt.Fprintf(p.w, "  → %s\n", text)
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	p.yellow.Fprintf(p.w, "  ⚠ %s\n", text)
}

// Error prints an error message
func (p *Printer) Error(text string) {
	p.red.Fprintf(p.w, "Error: %s\n", text)
}

// BlueText prints blue text
func (p *Printer) BlueText(text string) {
	p.blue.Fprintln(p.w, text)
}

// YellowText prints yellow text
func (p *Printer) YellowText(text string) {
	p.yellow.Fprintln(p.w, text)
}

// KeyValues prints aligned "key: value" rows in the given order.
func (p *Printer) KeyValues(rows [][2]string) {
	width := 0
	for _, r := range rows {
		width = max(width, len(r[0]))
	}
	for _, r := range rows {
		fmt.Fprintf(p.w, "  %-*s  %s\n", width+1, r[0]+":", r[1])
	}
}

// Package-level helpers print to stdout.

func Header(text string) { std.Header(text) }
func Step(stepNum, totalSteps int, text string) { std.Step(stepNum, totalSteps, text) }
func Success(text string) { std.Success(text) }
func Info(text string) { std.Info(text) }
func Warning(text string) { std.Warning(text) }
func Error(text string) { std.Error(text) }
func BlueText(text string) { std.BlueText(text) }
func YellowText(text string) { std.YellowText(text) }

// center centers text within a given width
func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text
}
