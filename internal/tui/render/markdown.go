package render

import (
	"strings"

	"chatline/internal/logger"

	"github.com/charmbracelet/glamour"
)

var log = logger.Named("render")

// Markdown 按宽度缓存 glamour 渲染器。渲染失败时退回纯文本换行，单条消息的异常不影响整屏。
type Markdown struct {
	style    string
	width    int
	renderer *glamour.TermRenderer
	failed   bool
}

// NewMarkdown 创建渲染器。style 为空时按终端背景自动选择；"plain" 关闭 markdown 渲染。
func NewMarkdown(style string) *Markdown {
	return &Markdown{style: strings.TrimSpace(style)}
}

func (m *Markdown) ensure(width int) *glamour.TermRenderer {
	if m == nil || m.style == "plain" {
		return nil
	}
	if m.renderer != nil && m.width == width {
		return m.renderer
	}
	if m.failed && m.width == width {
		return nil
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if m.style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(m.style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	m.width = width
	if err != nil {
		log.Warnf("markdown renderer unavailable: %v", err)
		m.renderer, m.failed = nil, true
		return nil
	}
	m.renderer, m.failed = r, false
	return r
}

// Render 返回渲染后的行。
func (m *Markdown) Render(text string, width int) []Line {
	text = strings.TrimRight(text, "\n")
	if width < 10 {
		width = 10
	}
	r := m.ensure(width)
	if r == nil {
		return wrapStyled(text, width, textStyle)
	}
	out, err := r.Render(text)
	if err != nil {
		log.Debugf("markdown render failed: %v", err)
		return wrapStyled(text, width, textStyle)
	}
	out = strings.Trim(out, "\n")
	lines := make([]Line, 0, strings.Count(out, "\n")+1)
	for _, l := range strings.Split(out, "\n") {
		lines = append(lines, Line{Raw: strings.TrimRight(l, " ")})
	}
	// glamour 会给空行留下空 Raw，统一成空 span 行，保证行数稳定
	for i := range lines {
		if lines[i].Raw == "" {
			lines[i] = Line{}
		}
	}
	return lines
}
