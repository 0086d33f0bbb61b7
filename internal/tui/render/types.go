// Package render 把消息与时间线条目画成终端行。
package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Span 表示一段文本及其样式。
type Span struct {
	Text  string
	Style lipgloss.Style
}

// Line 由多个 Span 组成。Raw 非空时表示已经带 ANSI 的预渲染内容（例如 markdown 输出），原样输出。
type Line struct {
	Spans []Span
	Raw   string
}

// Plain 构造单 span 的行。
func Plain(text string, style lipgloss.Style) Line {
	return Line{Spans: []Span{{Text: text, Style: style}}}
}

// String renders the line with its styles applied.
func (l Line) String() string {
	if l.Raw != "" {
		return l.Raw
	}
	var sb strings.Builder
	for _, sp := range l.Spans {
		sb.WriteString(sp.Style.Render(sp.Text))
	}
	return sb.String()
}

// Text returns the line without styling.
func (l Line) Text() string {
	if l.Raw != "" {
		return ansi.Strip(l.Raw)
	}
	var sb strings.Builder
	for _, sp := range l.Spans {
		sb.WriteString(sp.Text)
	}
	return sb.String()
}

// LinesToStrings 将样式化的行转换为字符串列表。
func LinesToStrings(lines []Line) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, line.String())
	}
	return out
}

// LinesToPlainStrings 去掉样式，主要用于测试与复制到剪贴板。
func LinesToPlainStrings(lines []Line) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, line.Text())
	}
	return out
}

// Prefix 为首行/续行添加前缀。
func Prefix(lines []Line, first, rest Span) []Line {
	out := make([]Line, 0, len(lines))
	for i, l := range lines {
		p := rest
		if i == 0 {
			p = first
		}
		if l.Raw != "" {
			out = append(out, Line{Raw: p.Style.Render(p.Text) + l.Raw})
			continue
		}
		spans := make([]Span, 0, len(l.Spans)+1)
		spans = append(spans, p)
		spans = append(spans, l.Spans...)
		out = append(out, Line{Spans: spans})
	}
	return out
}

// Indent prefixes every line with n spaces.
func Indent(lines []Line, n int) []Line {
	pad := Span{Text: strings.Repeat(" ", n)}
	return Prefix(lines, pad, pad)
}
