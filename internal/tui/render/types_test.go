package render

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"
)

func TestLineTextStripsStyling(t *testing.T) {
	styled := Line{Spans: []Span{
		{Text: "● ", Style: lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))},
		{Text: "Bash ls", Style: lipgloss.NewStyle().Bold(true)},
	}}
	raw := Line{Raw: "\x1b[1mbold\x1b[0m"}

	plain := LinesToPlainStrings([]Line{styled, raw, {}})
	require.Equal(t, []string{"● Bash ls", "bold", ""}, plain)
	require.Equal(t, raw.Raw, raw.String())
}

func TestPrefixAndIndent(t *testing.T) {
	lines := []Line{Plain("first", lipgloss.NewStyle()), {Raw: "second"}}
	out := Prefix(lines, Span{Text: "⎿ "}, Span{Text: "  "})
	require.Equal(t, []string{"⎿ first", "  second"}, LinesToPlainStrings(out))

	require.Equal(t, []string{"   first", "   second"}, LinesToPlainStrings(Indent(lines, 3)))
}
