package session

import "chatline/internal/chat"

// Status returns the session status; unknown sessions are Idle.
func (s *Store) Status(sessionID string) Status {
	if st, ok := s.sessions[sessionID]; ok {
		return st.status
	}
	return Idle
}

// Messages 返回渲染用的消息列表：已提交、尚未对账的保留消息、以及 Sending 时的实时消息。
func (s *Store) Messages(sessionID string) []chat.Message {
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return st.display()
}

// Committed returns the last fetched persisted history.
func (s *Store) Committed(sessionID string) []chat.Message {
	if st, ok := s.sessions[sessionID]; ok {
		return st.committed
	}
	return nil
}

// Live returns a copy of the live assistant buffer while a turn streams.
func (s *Store) Live(sessionID string) (chat.Message, bool) {
	st, ok := s.sessions[sessionID]
	if !ok || st.live == nil {
		return chat.Message{}, false
	}
	return st.live.Clone(), true
}

func (s *Store) Queue(sessionID string) []Pending {
	if st, ok := s.sessions[sessionID]; ok {
		return append([]Pending(nil), st.queue...)
	}
	return nil
}

// Banner returns the dismissable error text for the session.
func (s *Store) Banner(sessionID string) string {
	if st, ok := s.sessions[sessionID]; ok {
		return st.banner
	}
	return ""
}

func (s *Store) TurnID(sessionID string) string {
	if st, ok := s.sessions[sessionID]; ok {
		return st.turnID
	}
	return ""
}

// Reconciling reports whether a history fetch is in flight.
func (s *Store) Reconciling(sessionID string) bool {
	if st, ok := s.sessions[sessionID]; ok {
		return st.fetching
	}
	return false
}

func (s *Store) Options(sessionID string) chat.SendOptions {
	if st, ok := s.sessions[sessionID]; ok {
		return st.options
	}
	return s.defaults
}

// PendingQuestion returns the unanswered question of the latest assistant message.
func (s *Store) PendingQuestion(sessionID string) (messageID string, call chat.ToolCall, ok bool) {
	st, found := s.sessions[sessionID]
	if !found {
		return "", chat.ToolCall{}, false
	}
	msg := st.latestAssistant()
	if msg == nil {
		return "", chat.ToolCall{}, false
	}
	call, ok = msg.PendingQuestion()
	return msg.ID, call, ok
}

// PendingPlan returns the id of the latest assistant message if it proposes an unapproved plan.
func (s *Store) PendingPlan(sessionID string) (string, bool) {
	st, found := s.sessions[sessionID]
	if !found {
		return "", false
	}
	msg := st.latestAssistant()
	if msg == nil || !msg.PendingPlan() {
		return "", false
	}
	return msg.ID, true
}

// Sending returns the ids of sessions with a turn in flight.
func (s *Store) Sending() []string {
	var ids []string
	for id, st := range s.sessions {
		if st.turnID != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
