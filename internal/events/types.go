package events

import (
	"time"

	"chatline/internal/chat"
)

// Type 描述后端事件流中的事件类型。每个事件都带 session id 与 turn id。
type Type string

const (
	// EventContentAppend 追加 reasoning 或 text 片段。
	EventContentAppend Type = "content.append"
	// EventToolInvoked 宣布一次工具调用，同时在内容块中占位。
	EventToolInvoked   Type = "tool.invoked"
	EventToolCompleted Type = "tool.completed"
	// EventTurnComplete 在后端把本轮消息写入持久化历史之后发出。
	EventTurnComplete  Type = "turn.complete"
	EventTurnError     Type = "turn.error"
	EventTurnCancelled Type = "turn.cancelled"
)

// ContentDelta 是 EventContentAppend 的载荷。
type ContentDelta struct {
	Block chat.BlockType `json:"block"`
	Text  string         `json:"text"`
}

// ToolInvocation 是 EventToolInvoked 的载荷。
type ToolInvocation struct {
	Call chat.ToolCall `json:"call"`
}

// ToolResult 是 EventToolCompleted 的载荷。
type ToolResult struct {
	ToolID  string `json:"tool_id"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error,omitempty"`
}

// TurnFailure 是 EventTurnError 的载荷。
type TurnFailure struct {
	Error string `json:"error"`
}

// Event 是事件队列中传递的唯一消息格式，Payload 的结构由 Type 决定。
type Event struct {
	Type      Type
	SessionID string
	TurnID    string
	Timestamp time.Time
	Payload   any
}

// New stamps the event with the current time.
func New(typ Type, sessionID, turnID string, payload any) Event {
	return Event{Type: typ, SessionID: sessionID, TurnID: turnID, Timestamp: time.Now(), Payload: payload}
}

// Terminal reports whether the event ends a turn.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventTurnComplete, EventTurnError, EventTurnCancelled:
		return true
	}
	return false
}
