package render

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	accent = lipgloss.Color("#7D56F4")
	muted  = lipgloss.Color("#7D7A85")

	textStyle       = lipgloss.NewStyle()
	dimStyle        = lipgloss.NewStyle().Faint(true)
	commandStyle    = lipgloss.NewStyle().Bold(true)
	userPrefix      = lipgloss.NewStyle().Faint(true).Bold(true)
	assistantPrefix = lipgloss.NewStyle().Foreground(accent)
	reasoningStyle  = lipgloss.NewStyle().Foreground(muted).Italic(true)
	toolNameStyle   = lipgloss.NewStyle().Bold(true)
	pendingGlyph    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB454"))
	doneGlyph       = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	degradedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626")).Faint(true)
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(accent)
	hintStyle       = lipgloss.NewStyle().Foreground(muted)
	selectedStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFB454"))
)

func moreLines(n int) string {
	if n == 1 {
		return "… 1 more line"
	}
	return fmt.Sprintf("… %d more lines", n)
}
