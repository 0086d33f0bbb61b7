package render

import (
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// Viewport 包装 bubbles viewport：内容不变时跳过重排，位于底部时追加内容自动跟随。
type Viewport struct {
	viewport.Model
	lines []string
}

func NewViewport(width, height int) Viewport {
	return Viewport{Model: viewport.New(width, height)}
}

// Resize 更新宽高，返回宽度是否变化（宽度变化意味着需要重新排版）。
func (v *Viewport) Resize(width, height int) bool {
	widthChanged := v.Width != width
	v.Width = width
	v.Height = height
	if widthChanged {
		v.lines = nil
	}
	return widthChanged
}

// HandleUpdate 代理 bubbles 的 Update。
func (v *Viewport) HandleUpdate(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	v.Model, cmd = v.Model.Update(msg)
	return cmd
}

// SetLines 替换内容。原本停在底部时保持在底部，否则保留当前偏移。
func (v *Viewport) SetLines(lines []string) {
	if slices.Equal(lines, v.lines) {
		return
	}
	stick := len(v.lines) == 0 || v.AtBottom()
	v.lines = append(v.lines[:0:0], lines...)
	v.SetContent(strings.Join(lines, "\n"))
	if stick {
		v.GotoBottom()
	}
}

// SetLinesAt 替换内容并把偏移设为 offset，用于窗口扩展后的锚点保持与跳转。
func (v *Viewport) SetLinesAt(lines []string, offset int) {
	v.lines = append(v.lines[:0:0], lines...)
	v.SetContent(strings.Join(lines, "\n"))
	v.SetYOffset(offset)
}

// Offset 返回首个可见行的下标。
func (v *Viewport) Offset() int {
	return v.YOffset
}

// LineCount returns the number of content lines.
func (v *Viewport) LineCount() int {
	return len(v.lines)
}

// Lines 返回当前内容的副本。
func (v *Viewport) Lines() []string {
	return append([]string(nil), v.lines...)
}
