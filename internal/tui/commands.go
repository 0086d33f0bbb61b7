package tui

import (
	"fmt"
	"strconv"
	"strings"

	"chatline/internal/chat"
	"chatline/internal/session"
	"chatline/internal/tui/slash"
	"chatline/internal/window"

	tea "github.com/charmbracelet/bubbletea"
)

// handleSlash 执行斜杠命令，结果通过 notice 行反馈。
func (m *Model) handleSlash(cmd slash.Command, args string) tea.Cmd {
	args = strings.TrimSpace(args)
	switch cmd {
	case slash.CommandQuit, slash.CommandExit:
		return tea.Quit
	case slash.CommandNew:
		return m.createSession(args)
	case slash.CommandSessions:
		return m.loadSessions(args)
	case slash.CommandArchive:
		if m.store.Status(m.sessionID) == session.Sending {
			m.setNotice("cannot archive while a reply is streaming")
			return nil
		}
		return m.archiveSession(m.sessionID)
	case slash.CommandMode:
		mode, ok := chat.ParseExecutionMode(args)
		if !ok {
			m.setNotice("usage: /mode plan|build|yolo")
			return nil
		}
		opts := m.store.Options(m.sessionID)
		opts.Mode = mode
		m.store.SetOptions(m.sessionID, opts)
		m.setNotice(fmt.Sprintf("mode set to %s", mode))
	case slash.CommandModel:
		if args == "" {
			m.setNotice(fmt.Sprintf("model: %s", m.store.Options(m.sessionID).Model))
			return nil
		}
		opts := m.store.Options(m.sessionID)
		opts.Model = args
		m.store.SetOptions(m.sessionID, opts)
		m.setNotice(fmt.Sprintf("model set to %s", args))
	case slash.CommandThinking:
		level, ok := parseThinking(args)
		if !ok {
			m.setNotice("usage: /thinking off|think|megathink|ultrathink")
			return nil
		}
		opts := m.store.Options(m.sessionID)
		opts.Thinking = level
		m.store.SetOptions(m.sessionID, opts)
		m.setNotice(fmt.Sprintf("thinking set to %s", level))
	case slash.CommandRetry:
		m.refreshTranscript()
		return m.store.RetryQueue(m.sessionID)
	case slash.CommandClearQueue:
		m.store.ClearQueue(m.sessionID)
		m.setNotice("queue cleared")
	case slash.CommandDismiss:
		m.store.DismissError(m.sessionID)
	case slash.CommandGoto:
		n, align, err := parseGoto(args)
		if err != nil {
			m.setNotice(err.Error())
			return nil
		}
		m.gotoMessage(n, align)
	case slash.CommandExpand:
		if !m.toggleLastStacks() {
			m.setNotice("nothing to expand")
		}
	case slash.CommandCopy:
		text, ok := m.lastReply()
		if !ok {
			m.setNotice("no reply to copy")
			return nil
		}
		if err := m.copy(text); err != nil {
			m.setNotice(fmt.Sprintf("copy failed: %v", err))
			return nil
		}
		m.setNotice("copied last reply")
	}
	return nil
}

func parseThinking(raw string) (chat.ThinkingLevel, bool) {
	switch chat.ThinkingLevel(strings.ToLower(strings.TrimSpace(raw))) {
	case chat.ThinkingOff:
		return chat.ThinkingOff, true
	case chat.ThinkingThink:
		return chat.ThinkingThink, true
	case chat.ThinkingMega:
		return chat.ThinkingMega, true
	case chat.ThinkingUltra:
		return chat.ThinkingUltra, true
	}
	return "", false
}

func parseGoto(args string) (int, window.Align, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, window.AlignStart, fmt.Errorf("usage: /goto <n> [start|center|end]")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 {
		return 0, window.AlignStart, fmt.Errorf("invalid message number %q", fields[0])
	}
	align := window.AlignStart
	if len(fields) > 1 {
		align = window.ParseAlign(fields[1])
	}
	return n, align, nil
}
