// Package ui provides terminal styling and output helpers for the coord
// CLI, grounded on the teacher's internal/ui package (terminal.go,
// table.go): TTY detection for gating interactive prompts, and lipgloss
// styles for status/explain output.
package ui

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal returns true if stdout is connected to a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor follows the same conventions as the teacher: NO_COLOR
// disables, CLICOLOR_FORCE forces, otherwise falls back to TTY detection.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if os.Getenv("CLICOLOR_FORCE") != "" {
		return true
	}
	return IsTerminal()
}

// GetWidth returns the terminal width or a sane default for piped output.
func GetWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}
