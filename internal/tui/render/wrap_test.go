package render

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"
)

func TestWrapText(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"fits", "hello", 10, []string{"hello"}},
		{"word boundary", "one two three", 7, []string{"one two", "three"}},
		{"wide runes", "你好世界", 4, []string{"你好", "世界"}},
		{"wide then ascii", "你好 hello", 4, []string{"你好", "hell", "o"}},
		{"keeps blank lines", "a\n\nb", 5, []string{"a", "", "b"}},
		{"tabs expand", "\tx", 3, []string{"x"}},
		{"no width", "anything goes", 0, []string{"anything goes"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, WrapText(tc.text, tc.width))
		})
	}
}

func TestWrapStyledProducesPlainLines(t *testing.T) {
	lines := wrapStyled("alpha beta", 5, lipgloss.NewStyle())
	require.Equal(t, []string{"alpha", "beta"}, LinesToPlainStrings(lines))
}
