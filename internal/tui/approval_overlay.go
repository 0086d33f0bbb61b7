package tui

import (
	"strconv"
	"strings"

	"chatline/internal/chat"
	"chatline/internal/timeline"

	tea "github.com/charmbracelet/bubbletea"
)

// pendingInteraction 描述当前会话等待用户处理的提问或计划。
type pendingInteraction struct {
	messageID string
	question  *chat.ToolCall
	plan      bool
}

func (m *Model) interaction() (pendingInteraction, bool) {
	if msgID, call, ok := m.store.PendingQuestion(m.sessionID); ok {
		return pendingInteraction{messageID: msgID, question: &call}, true
	}
	if msgID, ok := m.store.PendingPlan(m.sessionID); ok {
		return pendingInteraction{messageID: msgID, plan: true}, true
	}
	return pendingInteraction{}, false
}

// handleInteractionKey 处理待批准计划的快捷键，仅在输入框为空时生效。
func (m *Model) handleInteractionKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if strings.TrimSpace(m.textarea.Value()) != "" {
		return nil, false
	}
	p, ok := m.interaction()
	if !ok {
		return nil, false
	}
	switch {
	case p.plan && msg.String() == "a":
		m.refreshTranscript()
		return m.store.ApprovePlan(m.sessionID, p.messageID), true
	case p.plan && msg.String() == "A":
		m.refreshTranscript()
		return m.store.ApprovePlanElevated(m.sessionID, p.messageID), true
	case p.question != nil && msg.String() == "ctrl+s":
		m.refreshTranscript()
		return m.store.SkipQuestion(m.sessionID, p.question.ID), true
	}
	return nil, false
}

// answerPending 把输入框文本作为待回答问题的答案提交；没有待回答问题时返回 false。
func (m *Model) answerPending(text string) (tea.Cmd, bool) {
	p, ok := m.interaction()
	if !ok || p.question == nil {
		return nil, false
	}
	questions, _ := timeline.ParseQuestions(p.question.Input)
	answers := resolveAnswers(questions, text)
	m.refreshTranscript()
	return m.store.AnswerQuestion(m.sessionID, p.question.ID, answers), true
}

// resolveAnswers 按 ";" 拆分出每道题的答案；纯数字（可用逗号分隔多个）选择对应选项。
func resolveAnswers(questions []timeline.Question, text string) []string {
	parts := strings.Split(text, ";")
	if len(questions) <= 1 {
		parts = []string{text}
	}
	answers := make([]string, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if i >= len(questions) {
			answers = append(answers, part)
			continue
		}
		q := questions[i]
		labels := optionLabels(q, part)
		if len(labels) == 0 {
			answers = append(answers, prefixed(q, part))
			continue
		}
		answers = append(answers, prefixed(q, strings.Join(labels, ", ")))
	}
	return answers
}

func optionLabels(q timeline.Question, part string) []string {
	fields := strings.FieldsFunc(part, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 || (!q.MultiSelect && len(fields) > 1) {
		return nil
	}
	labels := make([]string, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 || n > len(q.Options) {
			return nil
		}
		labels = append(labels, q.Options[n-1].Label)
	}
	return labels
}

func prefixed(q timeline.Question, answer string) string {
	if q.Header == "" {
		return answer
	}
	return q.Header + ": " + answer
}

func (m *Model) interactionHint() string {
	p, ok := m.interaction()
	if !ok {
		return ""
	}
	if p.plan {
		return "plan waiting • a approve • A approve (unrestricted) • or type feedback"
	}
	return "question waiting • type an option number or an answer • ctrl+s skip"
}
