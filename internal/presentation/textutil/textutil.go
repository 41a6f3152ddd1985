// Package textutil formats feed text for terminal output.
package textutil

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// SingleLine collapses whitespace, including newlines, into single spaces.
func SingleLine(text string) string {
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

// Truncate trims text to width terminal cells with an ellipsis.
func Truncate(text string, width int) string {
	if width <= 0 {
		return ""
	}
	return ansi.Truncate(text, width, "...")
}

// Cell prepares a feed-provided value for a table cell.
func Cell(text string, width int) string {
	return Truncate(SingleLine(text), width)
}
