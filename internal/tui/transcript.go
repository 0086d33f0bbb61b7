package tui

import (
	"fmt"

	"chatline/internal/chat"
	"chatline/internal/timeline"
	"chatline/internal/tui/render"
	"chatline/internal/window"
)

var welcomeLines = []string{
	"Welcome to chatline. Type a message to start.",
	"/ lists commands • /sessions switches conversations",
}

// block 是单条消息渲染结果的缓存，sig 变化时重新渲染。
type block struct {
	sig   string
	lines []string
}

// blockTop 记录本次渲染中每条消息的首行位置，用于在内容变化时保持视口锚点。
type blockTop struct {
	id  string
	top int
}

func (m *Model) refreshTranscript() {
	m.dirty = true
}

func (m *Model) signature(msg chat.Message, interactive bool) string {
	textLen := len(msg.Content)
	for _, b := range msg.ContentBlocks {
		textLen += len(b.Text)
	}
	return fmt.Sprintf("%d|%d|%d|%d|%d|%d|%t|%t|%t|%d",
		m.viewport.Width, textLen, len(msg.ContentBlocks), len(msg.ToolCalls), msg.CompletedToolCount(),
		len(msg.Answered), msg.PlanApproved, msg.Cancelled, interactive, m.expandGen)
}

// messageLines 返回消息渲染后的行（含末尾空行）。
func (m *Model) messageLines(msg chat.Message, interactive bool) []string {
	sig := m.signature(msg, interactive)
	if b, ok := m.blocks[msg.ID]; ok && b.sig == sig {
		return b.lines
	}
	var items []timeline.Item
	if msg.Role == chat.RoleAssistant {
		items = m.items.Items(msg)
	}
	ctx := render.ContextFor(msg, maxInt(20, m.viewport.Width), m.md)
	ctx.Expanded = m.expanded
	ctx.Interactive = interactive
	lines := render.LinesToStrings(render.Message(msg, items, ctx))
	lines = append(lines, "")
	m.blocks[msg.ID] = block{sig: sig, lines: lines}
	return lines
}

func (m *Model) measurer(msgs []chat.Message, interactiveID string) window.Measurer {
	return func(i int) int {
		if i < 0 || i >= len(msgs) {
			return 0
		}
		return len(m.messageLines(msgs[i], msgs[i].ID == interactiveID))
	}
}

func (m *Model) interactiveID() string {
	p, ok := m.interaction()
	if !ok {
		return ""
	}
	return p.messageID
}

// flushTranscript 按窗口区间重建视口内容。优先级：待执行的跳转 > 窗口扩展锚点 > 按消息保持当前位置 > 跟随底部。
func (m *Model) flushTranscript() {
	if !m.dirty {
		return
	}
	m.dirty = false
	msgs := m.store.Messages(m.sessionID)
	total := len(msgs)
	if total == 0 {
		m.tops = nil
		m.viewport.SetLines(welcomeLines)
		return
	}

	// 记录当前首行所在的消息，内容变化后据此恢复位置
	prevID, prevIntra := m.anchorMessage()
	wasBottom := m.viewport.AtBottom()

	interactive := m.interactiveID()
	start, end := m.win.Range(total)
	lines := make([]string, 0, (end-start)*4)
	tops := make([]blockTop, 0, end-start)
	for i := start; i < end; i++ {
		tops = append(tops, blockTop{id: msgs[i].ID, top: len(lines)})
		lines = append(lines, m.messageLines(msgs[i], msgs[i].ID == interactive)...)
	}
	m.tops = tops

	if target, ok := m.win.TakePending(); ok {
		if off, ok := m.win.Offset(total, target, m.viewport.Height, m.measurer(msgs, interactive)); ok {
			m.viewport.SetLinesAt(lines, off)
			m.anchor = -1
			return
		}
	}
	if m.anchor >= 0 {
		m.viewport.SetLinesAt(lines, m.anchor)
		m.anchor = -1
		return
	}
	if !wasBottom && prevID != "" {
		for _, t := range tops {
			if t.id == prevID {
				m.viewport.SetLinesAt(lines, t.top+prevIntra)
				return
			}
		}
	}
	m.viewport.SetLines(lines)
}

func (m *Model) anchorMessage() (string, int) {
	off := m.viewport.Offset()
	id, intra := "", 0
	for _, t := range m.tops {
		if t.top > off {
			break
		}
		id, intra = t.id, off-t.top
	}
	return id, intra
}

// afterScroll 在视口滚动后检查是否需要向前扩展窗口。
func (m *Model) afterScroll() {
	msgs := m.store.Messages(m.sessionID)
	off, expanded := m.win.OnScroll(len(msgs), m.viewport.Offset(), m.measurer(msgs, m.interactiveID()))
	if expanded {
		m.anchor = off
		m.refreshTranscript()
	}
}

// gotoMessage 把第 n 条（从 1 开始）消息滚入视口。
func (m *Model) gotoMessage(n int, align window.Align) {
	total := len(m.store.Messages(m.sessionID))
	m.win.ScrollToIndex(total, n-1, align)
	m.refreshTranscript()
}

// toggleLastStacks 展开或折叠最后一条 assistant 消息中的全部 stack 条目。
func (m *Model) toggleLastStacks() bool {
	msgs := m.store.Messages(m.sessionID)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != chat.RoleAssistant {
			continue
		}
		toggled := false
		for _, it := range m.items.Items(msgs[i]) {
			if it.Kind == timeline.KindStack {
				m.expanded[it.Key] = !m.expanded[it.Key]
				toggled = true
			}
		}
		if toggled {
			m.expandGen++
			m.refreshTranscript()
		}
		return toggled
	}
	return false
}

// lastReply returns the plain text of the newest assistant message.
func (m *Model) lastReply() (string, bool) {
	msgs := m.store.Messages(m.sessionID)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleAssistant {
			text := msgs[i].PlainText()
			return text, text != ""
		}
	}
	return "", false
}
