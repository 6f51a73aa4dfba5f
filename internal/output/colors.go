// Package output prints human-facing session progress to the console.
package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Stage     *color.Color
	Session   *color.Color
	Success   *color.Color
	Error     *color.Color
	Muted     *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Stage:     color.New(color.FgCyan, color.Bold),
		Session:   color.New(color.FgBlue),
		Success:   color.New(color.FgGreen),
		Error:     color.New(color.FgRed, color.Bold),
		Muted:     color.New(color.Faint),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range []*color.Color{
		scheme.Stage,
		scheme.Session,
		scheme.Success,
		scheme.Error,
		scheme.Muted,
		scheme.Highlight,
	} {
		c.DisableColor()
	}
	return scheme
}

// SuccessIcon returns a checkmark symbol with appropriate color
func SuccessIcon(noColor bool) string {
	if noColor {
		return "✓"
	}
	return color.New(color.FgGreen).Sprint("✓")
}

// ErrorIcon returns an X symbol with appropriate color
func ErrorIcon(noColor bool) string {
	if noColor {
		return "✗"
	}
	return color.New(color.FgRed).Sprint("✗")
}

// ProgressIcon returns an arrow marking a stage in progress
func ProgressIcon(noColor bool) string {
	if noColor {
		return "→"
	}
	return color.New(color.FgCyan).Sprint("→")
}
