package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// HighlightCommand 用轻量规则高亮一条 shell 命令：程序名加粗，
// 运算符、字符串与注释变暗。只处理前 maxLines 行。
func HighlightCommand(script string, maxLines int) []Line {
	raw := strings.Split(strings.TrimRight(script, "\n"), "\n")
	more := 0
	if maxLines > 0 && len(raw) > maxLines {
		more = len(raw) - maxLines
		raw = raw[:maxLines]
	}
	lines := make([]Line, 0, len(raw)+1)
	for _, rawLine := range raw {
		lines = append(lines, highlightShellLine(rawLine))
	}
	if more > 0 {
		lines = append(lines, Plain(moreLines(more), dimStyle))
	}
	return lines
}

func highlightShellLine(rawLine string) Line {
	if strings.HasPrefix(strings.TrimSpace(rawLine), "#") {
		return Plain(rawLine, dimStyle)
	}
	tokens := strings.Fields(rawLine)
	if len(tokens) == 0 {
		return Line{}
	}
	spans := []Span{}
	rest := rawLine
	expectProgram := true
	for _, tok := range tokens {
		idx := strings.Index(rest, tok)
		if idx > 0 {
			spans = append(spans, Span{Text: rest[:idx]})
		}
		style := lipgloss.Style{}
		switch {
		case isOperator(tok):
			style = dimStyle
			expectProgram = true
		case isQuoted(tok):
			style = dimStyle
			expectProgram = false
		case expectProgram:
			style = commandStyle
			expectProgram = false
		}
		spans = append(spans, Span{Text: tok, Style: style})
		rest = rest[idx+len(tok):]
	}
	if rest != "" {
		spans = append(spans, Span{Text: rest})
	}
	return Line{Spans: spans}
}

func isOperator(tok string) bool {
	switch tok {
	case "&&", "||", "|", "&", ";", ">", ">>", "<", "<<", "2>&1":
		return true
	default:
		return false
	}
}

func isQuoted(tok string) bool {
	if len(tok) < 2 {
		return false
	}
	return (tok[0] == '"' && tok[len(tok)-1] == '"') || (tok[0] == '\'' && tok[len(tok)-1] == '\'')
}
