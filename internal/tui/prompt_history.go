package tui

import (
	"strings"

	"chatline/internal/history"
)

// promptHistory 负责输入框历史浏览状态（上下箭头），条目来自 history.PromptLog。
// cursor == len(entries) 表示当前在"最新输入"（非浏览历史）位置。
type promptHistory struct {
	log     *history.PromptLog
	entries []string
	cursor  int
	draft   string
}

func newPromptHistory(log *history.PromptLog) promptHistory {
	h := promptHistory{log: log}
	if log == nil {
		return h
	}
	entries, err := log.Recent()
	if err != nil {
		tuiLog.Warnf("load prompt history: %v", err)
	}
	h.entries = entries
	h.cursor = len(entries)
	return h
}

// Add 记录一次提交并追加到磁盘，与上一条相同的输入只保留一份。
func (h *promptHistory) Add(sessionID, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if n := len(h.entries); n == 0 || h.entries[n-1] != text {
		h.entries = append(h.entries, text)
		if len(h.entries) > history.MaxPrompts {
			h.entries = h.entries[len(h.entries)-history.MaxPrompts:]
		}
		if h.log != nil {
			if err := h.log.Append(sessionID, text); err != nil {
				tuiLog.Warnf("append prompt history: %v", err)
			}
		}
	}
	h.ResetBrowsing()
}

func (h *promptHistory) Browsing() bool {
	return h.cursor < len(h.entries)
}

func (h *promptHistory) ResetBrowsing() {
	h.cursor = len(h.entries)
	h.draft = ""
}

func (h *promptHistory) Prev(current string) (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	if h.cursor == len(h.entries) {
		h.draft = current
	}
	if h.cursor > 0 {
		h.cursor--
	}
	return h.entries[h.cursor], true
}

func (h *promptHistory) Next() (string, bool) {
	if h.cursor >= len(h.entries) {
		return "", false
	}
	if h.cursor < len(h.entries)-1 {
		h.cursor++
		return h.entries[h.cursor], true
	}
	h.cursor = len(h.entries)
	return h.draft, true
}
