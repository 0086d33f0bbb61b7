package slash

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var (
	nameStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#C4A1FF"))
	argsStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	descStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	highlightStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EBCB8B"))
	selectedStyle  = lipgloss.NewStyle().Background(lipgloss.Color("#2F2A3D"))
)

// View 渲染弹窗内容（不含外围边框），每个命令占一行。
func (s *State) View(width int) string {
	if s == nil || !s.open {
		return ""
	}
	if width <= 20 {
		width = 20
	}
	if len(s.matches) == 0 {
		return descStyle.Render("no matches")
	}
	nameWidth := 0
	for _, m := range s.matches {
		if w := runewidth.StringWidth(m.label()); w > nameWidth {
			nameWidth = w
		}
	}
	start, end := visibleRange(len(s.matches), s.maxLines, s.selected)
	lines := make([]string, 0, end-start)
	for idx := start; idx < end; idx++ {
		m := s.matches[idx]
		name := applyHighlights(m.label(), m.highlights)
		pad := strings.Repeat(" ", nameWidth-runewidth.StringWidth(m.label())+2)
		rest := m.item.Description
		if m.choice != "" {
			rest = m.item.DisplayName()
		} else if m.item.Args != "" {
			rest = m.item.Args + "  " + rest
		}
		rest = runewidth.Truncate(rest, width-nameWidth-2, "…")
		desc := descStyle.Render(rest)
		if m.choice == "" && m.item.Args != "" && strings.HasPrefix(rest, m.item.Args) {
			desc = argsStyle.Render(m.item.Args) + descStyle.Render(strings.TrimPrefix(rest, m.item.Args))
		}
		line := nameStyle.Render(name) + pad + desc
		if idx == s.selected {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// visibleRange 返回包含选中项、最多 maxLines 行的窗口。
func visibleRange(total, maxLines, selected int) (int, int) {
	if maxLines <= 0 || total <= maxLines {
		return 0, total
	}
	start := 0
	if selected >= maxLines {
		start = selected - maxLines + 1
	}
	return start, start + maxLines
}

func applyHighlights(name string, indexes []int) string {
	if len(indexes) == 0 {
		return name
	}
	marked := map[int]bool{}
	for _, idx := range indexes {
		marked[idx] = true
	}
	var sb strings.Builder
	for i, r := range []rune(name) {
		if marked[i] {
			sb.WriteString(highlightStyle.Render(string(r)))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
