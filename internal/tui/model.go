// Package tui 是 chatline 的终端界面：会话消息列表、输入框、状态行与斜杠命令。
//
// 所有状态只在 Bubble Tea 的 Update 中修改；后端事件经 events.Router 转成 session.EventMsg 送入程序。
package tui

import (
	"fmt"
	"strings"
	"time"

	"chatline/internal/chat"
	"chatline/internal/history"
	"chatline/internal/logger"
	"chatline/internal/session"
	"chatline/internal/timeline"
	"chatline/internal/tui/render"
	"chatline/internal/tui/slash"
	"chatline/internal/window"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var tuiLog = logger.Named("tui")

const maxComposerLines = 6

type Options struct {
	Store   *session.Store
	History history.Store
	Prompts *history.PromptLog
	Session chat.Session
	Window  window.Options
	// MarkdownStyle 为 glamour 样式名；空为自动，"plain" 关闭渲染。
	MarkdownStyle string
	Backend       string
	InitialPrompt string
	Clipboard     func(string) error
	Clock         func() time.Time
}

type startPromptMsg struct {
	Text string
}

type Model struct {
	store   *session.Store
	hist    history.Store
	backend string

	sessionID string
	title     string

	textarea textarea.Model
	viewport render.Viewport
	spin     spinner.Model
	status   *statusIndicator
	slash    *slash.State
	picker   *sessionPicker
	prompts  promptHistory

	win       *window.Window
	items     *timeline.Cache
	md        *render.Markdown
	blocks    map[string]block
	tops      []blockTop
	expanded  map[string]bool
	expandGen int
	// anchor >= 0 时下一次渲染使用该偏移（窗口扩展后保持可见内容不动）。
	anchor int
	dirty  bool

	notice    string
	initSend  string
	clipboard func(string) error

	width  int
	height int
}

func New(opts Options) *Model {
	ti := textarea.New()
	ti.Placeholder = "Ask anything… (/ for commands)"
	ti.Prompt = "› "
	ti.CharLimit = 0
	ti.SetWidth(90)
	ti.SetHeight(1)
	ti.ShowLineNumbers = false
	ti.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(accentColor)

	copyFn := opts.Clipboard
	if copyFn == nil {
		copyFn = clipboard.WriteAll
	}

	m := &Model{
		store:     opts.Store,
		hist:      opts.History,
		backend:   opts.Backend,
		sessionID: opts.Session.ID,
		title:     opts.Session.Title,
		textarea:  ti,
		viewport:  render.NewViewport(90, 12),
		spin:      spin,
		status:    newStatusIndicator(opts.Clock),
		slash:     slash.NewState(slash.Options{}),
		prompts:   newPromptHistory(opts.Prompts),
		win:       window.New(opts.Window),
		items:     timeline.NewCache(0),
		md:        render.NewMarkdown(opts.MarkdownStyle),
		blocks:    make(map[string]block),
		expanded:  make(map[string]bool),
		anchor:    -1,
		dirty:     true,
		initSend:  strings.TrimSpace(opts.InitialPrompt),
		clipboard: copyFn,
	}
	m.win.Reset(m.sessionID)
	return m
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.store.Open(m.sessionID), m.spin.Tick, textarea.Blink}
	if m.initSend != "" {
		prompt := m.initSend
		cmds = append(cmds, func() tea.Msg { return startPromptMsg{Text: prompt} })
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m.finish()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m.finish(cmd)
	case startPromptMsg:
		m.prompts.Add(m.sessionID, msg.Text)
		return m.finish(m.submit(msg.Text))
	case sessionsLoadedMsg:
		if msg.err != nil {
			m.setNotice(fmt.Sprintf("list sessions: %v", msg.err))
			return m.finish()
		}
		m.picker = newSessionPicker(msg.sessions, msg.query)
		return m.finish()
	case sessionCreatedMsg:
		if msg.err != nil {
			m.setNotice(fmt.Sprintf("create session: %v", msg.err))
			return m.finish()
		}
		return m.finish(m.switchSession(msg.session))
	case sessionArchivedMsg:
		if msg.err != nil {
			m.setNotice(fmt.Sprintf("archive session: %v", msg.err))
			return m.finish()
		}
		m.store.Forget(msg.id)
		m.setNotice("session archived")
		if msg.id == m.sessionID {
			return m.finish(m.createSession(""))
		}
		return m.finish()
	case tea.MouseMsg:
		cmd := m.viewport.HandleUpdate(msg)
		m.afterScroll()
		return m.finish(cmd)
	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if session.Owns(msg) {
		cmd := m.store.Update(msg)
		m.refreshTranscript()
		return m.finish(cmd)
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m.finish(cmd)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.picker != nil {
		chosen, done := m.picker.HandleKey(msg)
		if done {
			m.picker = nil
			if chosen != nil && chosen.ID != m.sessionID {
				return m.finish(m.switchSession(*chosen))
			}
		}
		return m.finish()
	}
	if act, handled := m.slash.HandleKey(msg.String()); handled {
		return m.finish(m.applySlashAction(act))
	}
	if cmd, handled := m.handleInteractionKey(msg); handled {
		return m.finish(cmd)
	}
	if handled := m.handleScrollKeys(msg); handled {
		m.afterScroll()
		return m.finish()
	}

	switch msg.String() {
	case "esc":
		m.notice = ""
		switch m.store.Status(m.sessionID) {
		case session.Sending, session.AwaitingInput:
			if m.store.TurnID(m.sessionID) != "" {
				m.refreshTranscript()
				return m.finish(m.store.CancelTurn(m.sessionID))
			}
		case session.Error:
			m.store.DismissError(m.sessionID)
		}
		return m.finish()
	case "enter":
		return m.finish(m.submitComposer())
	case "alt+enter", "ctrl+j":
		m.textarea.InsertString("\n")
		m.setComposerHeight()
		return m.finish()
	case "ctrl+o":
		m.toggleLastStacks()
		return m.finish()
	case "ctrl+y":
		return m.finish(m.handleSlash(slash.CommandCopy, ""))
	case "up":
		if m.textarea.Line() == 0 {
			if text, ok := m.prompts.Prev(m.textarea.Value()); ok {
				m.setComposer(text)
				return m.finish()
			}
		}
	case "down":
		if m.prompts.Browsing() && m.textarea.Line() >= m.textarea.LineCount()-1 {
			if text, ok := m.prompts.Next(); ok {
				m.setComposer(text)
				return m.finish()
			}
		}
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	m.syncSlash()
	m.setComposerHeight()
	return m.finish(cmd)
}

func (m *Model) handleScrollKeys(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup":
		m.viewport.PageUp()
	case "pgdown":
		m.viewport.PageDown()
	case "alt+up", "ctrl+up":
		m.viewport.ScrollUp(1)
	case "alt+down", "ctrl+down":
		m.viewport.ScrollDown(1)
	case "ctrl+home":
		m.viewport.GotoTop()
	case "ctrl+end":
		m.viewport.GotoBottom()
	default:
		return false
	}
	return true
}

func (m *Model) applySlashAction(act slash.Action) tea.Cmd {
	switch act.Kind {
	case slash.ActionInsert:
		m.setComposer(act.NewValue)
		m.syncSlash()
	case slash.ActionSubmitCommand:
		m.resetComposer()
		return m.handleSlash(act.Command, act.Args)
	case slash.ActionError:
		m.setNotice(act.Message)
	}
	return nil
}

// submitComposer 处理 Enter：斜杠命令、回答待处理的提问，或作为新消息提交。
func (m *Model) submitComposer() tea.Cmd {
	input := strings.TrimSpace(m.textarea.Value())
	if input == "" {
		return nil
	}
	if strings.HasPrefix(input, "/") {
		if act := m.slash.ResolveSubmit(input); act.Kind != slash.ActionNone {
			if act.Kind == slash.ActionError {
				m.setNotice(act.Message)
				return nil
			}
			return m.applySlashAction(act)
		}
	}
	m.resetComposer()
	m.prompts.Add(m.sessionID, input)
	m.notice = ""
	if cmd, ok := m.answerPending(input); ok {
		m.viewport.GotoBottom()
		return cmd
	}
	return m.submit(input)
}

func (m *Model) submit(text string) tea.Cmd {
	m.refreshTranscript()
	m.viewport.GotoBottom()
	return m.store.Submit(m.sessionID, text)
}

func (m *Model) copy(text string) error {
	if m.clipboard == nil {
		return fmt.Errorf("clipboard unavailable")
	}
	return m.clipboard(text)
}

func (m *Model) setNotice(text string) {
	m.notice = text
}

func (m *Model) setComposer(text string) {
	m.textarea.SetValue(text)
	m.textarea.CursorEnd()
	m.setComposerHeight()
}

func (m *Model) resetComposer() {
	m.textarea.Reset()
	m.slash.Close()
	m.prompts.ResetBrowsing()
	m.setComposerHeight()
}

func (m *Model) syncSlash() {
	li := m.textarea.LineInfo()
	m.slash.SyncInput(slash.Input{
		Value:        m.textarea.Value(),
		CursorLine:   m.textarea.Line(),
		CursorColumn: li.StartColumn + li.ColumnOffset,
	})
}

func (m *Model) setComposerHeight() {
	lines := strings.Count(m.textarea.Value(), "\n") + 1
	if lines > maxComposerLines {
		lines = maxComposerLines
	}
	if m.textarea.Height() != lines {
		m.textarea.SetHeight(lines)
	}
}

// finish 在每次 Update 结束时统一完成布局、状态行同步与消息列表重绘。
func (m *Model) finish(cmds ...tea.Cmd) (tea.Model, tea.Cmd) {
	m.status.Sync(m.store.Status(m.sessionID), len(m.store.Queue(m.sessionID)))
	m.layout()
	m.flushTranscript()
	return m, tea.Batch(cmds...)
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.textarea.SetWidth(maxInt(20, width-4))
	m.layout()
}

// layout 根据当前各区域的实际高度分配视口高度。
func (m *Model) layout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	top, bottom := m.chrome()
	used := lipgloss.Height(strings.Join(top, "\n")) + lipgloss.Height(strings.Join(bottom, "\n"))
	if m.viewport.Resize(m.width, maxInt(3, m.height-used)) {
		// 宽度变化后所有缓存的行都需要重新排版
		m.blocks = make(map[string]block)
		m.refreshTranscript()
	}
}

// chrome 返回视口上方与下方的区域。
func (m *Model) chrome() (top, bottom []string) {
	top = []string{m.renderHeader()}
	if banner := m.store.Banner(m.sessionID); banner != "" {
		top = append(top, bannerStyle.Render(render.Truncate("error: "+banner, maxInt(10, m.width-2))))
	}
	if line := m.status.Render(m.spin.View(), m.width); line != "" {
		bottom = append(bottom, line)
	}
	if hint := m.interactionHint(); hint != "" {
		bottom = append(bottom, mutedStyle.Render(render.Truncate(hint, m.width)))
	}
	if m.notice != "" {
		bottom = append(bottom, noticeStyle.Render(render.Truncate(m.notice, m.width)))
	}
	if m.slash.Open() {
		bottom = append(bottom, modalStyle.Render(m.slash.View(maxInt(20, m.width-4))))
	}
	bottom = append(bottom, composerStyle.Width(maxInt(20, m.width-2)).Render(m.textarea.View()))
	return top, bottom
}

func (m *Model) renderHeader() string {
	opts := m.store.Options(m.sessionID)
	info := []string{m.title, opts.Model, string(opts.Mode)}
	if opts.Thinking != "" && opts.Thinking != chat.ThinkingOff {
		info = append(info, string(opts.Thinking))
	}
	if m.backend != "" {
		info = append(info, m.backend)
	}
	total := len(m.store.Messages(m.sessionID))
	if m.win.HasMore(total) {
		start, _ := m.win.Range(total)
		info = append(info, fmt.Sprintf("%d earlier ↑", start))
	}
	if m.store.Reconciling(m.sessionID) {
		info = append(info, "syncing")
	}
	rest := render.Truncate("  "+strings.Join(info, " • "), maxInt(10, m.width-len("chatline")))
	return titleStyle.Render("chatline") + mutedStyle.Render(rest)
}

func (m *Model) View() string {
	top, bottom := m.chrome()
	parts := append(top, m.viewport.View())
	parts = append(parts, bottom...)
	content := lipgloss.JoinVertical(lipgloss.Left, parts...)
	if m.picker != nil {
		overlay := m.picker.View(m.width, m.sessionID, m.store.Status)
		return lipgloss.JoinVertical(lipgloss.Left, content, overlay)
	}
	return content
}

// SessionID returns the session shown when the program exited.
func (m *Model) SessionID() string {
	return m.sessionID
}
