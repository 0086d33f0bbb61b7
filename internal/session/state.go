package session

import (
	"chatline/internal/chat"
)

// Status 是单个会话的流式状态。
type Status int

const (
	Idle Status = iota
	Sending
	AwaitingInput
	Error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case AwaitingInput:
		return "awaiting_input"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Pending 是排队等待发送的用户输入。
type Pending struct {
	Text    string
	Options chat.SendOptions
}

// state 只在 UI 事件循环里读写，按会话 id 分区，因此不加锁。
type state struct {
	id      string
	status  Status
	options chat.SendOptions

	// turnID 非空表示后端仍在流式输出该回合；终止事件后清空，迟到的事件因此被视为过期。
	turnID string
	live   *chat.Message

	committed []chat.Message
	// retained 保存已发出但尚未出现在 committed 中的消息（乐观的用户消息、已结束回合的 live 内容），
	// 直到历史拉取结果包含它们为止。
	retained []chat.Message

	queue  []Pending
	banner string

	// 本地已做出的审批/回答，拉取结果可能早于持久化写入完成，重放到新列表上。
	approved map[string]bool
	answered map[string]bool

	fetchSeq int
	fetching bool
}

func (st *state) committedIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(st.committed))
	for _, m := range st.committed {
		ids[m.ID] = struct{}{}
	}
	return ids
}

// display 合并已提交、保留与 live 三部分，按 id 去重。
func (st *state) display() []chat.Message {
	ids := st.committedIDs()
	out := make([]chat.Message, 0, len(st.committed)+len(st.retained)+1)
	out = append(out, st.committed...)
	for _, m := range st.retained {
		if _, ok := ids[m.ID]; ok {
			continue
		}
		ids[m.ID] = struct{}{}
		out = append(out, m)
	}
	if st.live != nil {
		if _, ok := ids[st.live.ID]; !ok {
			out = append(out, *st.live)
		}
	}
	return out
}

// retainLive moves the live buffer into the retained list so it stays visible until reconciled.
func (st *state) retainLive() {
	if st.live == nil {
		return
	}
	if !st.live.Empty() {
		st.retained = append(st.retained, st.live.Clone())
	}
	st.live = nil
}

// reconcile 用拉取到的权威列表替换 committed，并丢弃已被持久化覆盖的保留消息。
func (st *state) reconcile(messages []chat.Message) {
	st.committed = messages
	for i := range st.committed {
		st.applyMarks(&st.committed[i])
	}
	ids := st.committedIDs()
	kept := st.retained[:0]
	for _, m := range st.retained {
		if _, ok := ids[m.ID]; !ok {
			kept = append(kept, m)
		}
	}
	st.retained = kept
}

func (st *state) applyMarks(msg *chat.Message) {
	if st.approved[msg.ID] {
		msg.PlanApproved = true
	}
	for _, call := range msg.ToolCalls {
		if st.answered[call.ID] {
			if msg.Answered == nil {
				msg.Answered = make(map[string]bool)
			}
			msg.Answered[call.ID] = true
		}
	}
}

// latestAssistant returns the newest assistant message if it is also the newest message overall.
func (st *state) latestAssistant() *chat.Message {
	if st.live != nil {
		return st.live
	}
	ids := st.committedIDs()
	for i := len(st.retained) - 1; i >= 0; i-- {
		m := &st.retained[i]
		if _, dup := ids[m.ID]; dup {
			continue
		}
		if m.Role == chat.RoleAssistant {
			return m
		}
		return nil
	}
	if n := len(st.committed); n > 0 && st.committed[n-1].Role == chat.RoleAssistant {
		return &st.committed[n-1]
	}
	return nil
}

// findMessage locates a message by id across every copy the state holds.
func (st *state) findMessage(id string) []*chat.Message {
	var out []*chat.Message
	if st.live != nil && st.live.ID == id {
		out = append(out, st.live)
	}
	for i := range st.retained {
		if st.retained[i].ID == id {
			out = append(out, &st.retained[i])
		}
	}
	for i := range st.committed {
		if st.committed[i].ID == id {
			out = append(out, &st.committed[i])
		}
	}
	return out
}

// findTool locates the message owning the tool call.
func (st *state) findTool(toolID string) (string, bool) {
	for _, m := range st.display() {
		if _, ok := m.ToolCall(toolID); ok {
			return m.ID, true
		}
	}
	return "", false
}

func awaitingInput(msg *chat.Message) bool {
	if msg == nil {
		return false
	}
	if _, ok := msg.PendingQuestion(); ok {
		return true
	}
	return msg.PendingPlan()
}
