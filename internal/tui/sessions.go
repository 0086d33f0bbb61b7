package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatline/internal/chat"
	"chatline/internal/session"
	"chatline/internal/tui/render"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"
)

const pickerRows = 8

type sessionsLoadedMsg struct {
	sessions []chat.Session
	query    string
	err      error
}

type sessionCreatedMsg struct {
	session chat.Session
	err     error
}

type sessionArchivedMsg struct {
	id  string
	err error
}

// sessionList 让 fuzzy.FindFrom 直接在会话切片上匹配标题与 id。
type sessionList []chat.Session

func (l sessionList) String(i int) string { return l[i].Title + " " + l[i].ID }
func (l sessionList) Len() int            { return len(l) }

// sessionPicker 是 /sessions 打开的模糊搜索切换器。
type sessionPicker struct {
	all      sessionList
	query    string
	matches  []int
	selected int
}

func newSessionPicker(sessions []chat.Session, query string) *sessionPicker {
	p := &sessionPicker{all: sessions}
	p.setQuery(query)
	return p
}

func (p *sessionPicker) setQuery(q string) {
	p.query = q
	p.selected = 0
	p.matches = p.matches[:0]
	if strings.TrimSpace(q) == "" {
		for i := range p.all {
			p.matches = append(p.matches, i)
		}
		return
	}
	for _, res := range fuzzy.FindFrom(q, p.all) {
		p.matches = append(p.matches, res.Index)
	}
}

// Selected returns the highlighted session.
func (p *sessionPicker) Selected() (chat.Session, bool) {
	if len(p.matches) == 0 {
		return chat.Session{}, false
	}
	return p.all[p.matches[p.selected]], true
}

// HandleKey 处理方向键与查询编辑，返回 done=true 表示需要关闭。
func (p *sessionPicker) HandleKey(msg tea.KeyMsg) (chosen *chat.Session, done bool) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		return nil, true
	case tea.KeyEnter:
		if s, ok := p.Selected(); ok {
			return &s, true
		}
		return nil, true
	case tea.KeyUp, tea.KeyCtrlP:
		if p.selected > 0 {
			p.selected--
		}
	case tea.KeyDown, tea.KeyCtrlN:
		if p.selected < len(p.matches)-1 {
			p.selected++
		}
	case tea.KeyBackspace:
		if r := []rune(p.query); len(r) > 0 {
			p.setQuery(string(r[:len(r)-1]))
		}
	case tea.KeyRunes, tea.KeySpace:
		p.setQuery(p.query + string(msg.Runes))
	}
	return nil, false
}

func (p *sessionPicker) View(width int, current string, statusOf func(string) session.Status) string {
	lines := []string{titleStyle.Render("Sessions") + mutedStyle.Render("  › "+p.query)}
	if len(p.matches) == 0 {
		lines = append(lines, mutedStyle.Render("no matches"))
	}
	start := 0
	if p.selected >= pickerRows {
		start = p.selected - pickerRows + 1
	}
	for i := start; i < len(p.matches) && i < start+pickerRows; i++ {
		s := p.all[p.matches[i]]
		marker := "  "
		if s.ID == current {
			marker = "• "
		}
		if st := statusOf(s.ID); st != session.Idle {
			marker = "◐ "
		}
		row := fmt.Sprintf("%s%s  %s", marker, s.Title, s.UpdatedAt.Format(time.DateTime))
		if s.Archived {
			row += " (archived)"
		}
		row = render.Truncate(row, width-4)
		if i == p.selected {
			row = noticeStyle.Render(row)
		}
		lines = append(lines, row)
	}
	lines = append(lines, mutedStyle.Render("enter switch • esc close"))
	return modalStyle.Width(maxInt(30, width-2)).Render(strings.Join(lines, "\n"))
}

func (m *Model) loadSessions(query string) tea.Cmd {
	hist := m.hist
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		list, err := hist.Sessions(ctx, false)
		return sessionsLoadedMsg{sessions: list, query: query, err: err}
	}
}

func (m *Model) createSession(title string) tea.Cmd {
	hist := m.hist
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s, err := hist.CreateSession(ctx, title)
		return sessionCreatedMsg{session: s, err: err}
	}
}

func (m *Model) archiveSession(id string) tea.Cmd {
	hist := m.hist
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return sessionArchivedMsg{id: id, err: hist.Archive(ctx, id)}
	}
}

// switchSession 切换到另一个会话：窗口复位、渲染缓存清空、按需拉取历史。
// 旧会话仍在流式输出时保持其状态，事件继续写入它自己的分区。
func (m *Model) switchSession(s chat.Session) tea.Cmd {
	m.sessionID = s.ID
	m.title = s.Title
	m.win.Reset(s.ID)
	m.blocks = make(map[string]block)
	m.items.Reset()
	m.expanded = make(map[string]bool)
	m.anchor = -1
	m.refreshTranscript()
	m.viewport.GotoBottom()
	tuiLog.WithField("session_id", s.ID).Info("switched session")
	return m.store.Open(s.ID)
}
