package chat

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType 区分 assistant 回合内的内容片段。
type BlockType string

const (
	BlockReasoning BlockType = "thinking"
	BlockText      BlockType = "text"
	BlockToolUse   BlockType = "tool_use"
)

// ContentBlock 是 assistant 回合的一个有序片段，顺序即因果顺序。
type ContentBlock struct {
	Type       BlockType `json:"type"`
	Text       string    `json:"text,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

func ReasoningBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockReasoning, Text: text}
}

func ToolBlock(id string) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolCallID: id}
}

// ToolCall 描述一次工具调用。Output 在完成前为 nil，只会被写入一次。
type ToolCall struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Input           json.RawMessage `json:"input,omitempty"`
	Output          *string         `json:"output,omitempty"`
	ParentToolUseID string          `json:"parent_tool_use_id,omitempty"`
}

// Completed reports whether the tool output has been attached.
func (c ToolCall) Completed() bool {
	return c.Output != nil
}

// Message 是一次会话回合（user 或 assistant）。
// 旧数据可能没有 ContentBlocks，只有扁平的 ToolCalls。
type Message struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"session_id"`
	Role          Role            `json:"role"`
	Content       string          `json:"content"`
	ContentBlocks []ContentBlock  `json:"content_blocks,omitempty"`
	ToolCalls     []ToolCall      `json:"tool_calls,omitempty"`
	PlanApproved  bool            `json:"plan_approved,omitempty"`
	Cancelled     bool            `json:"cancelled,omitempty"`
	Answered      map[string]bool `json:"answered_questions,omitempty"`
	Model         string          `json:"model,omitempty"`
	ExecutionMode ExecutionMode   `json:"execution_mode,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewUserMessage 构造带新 ID 的用户消息。
func NewUserMessage(sessionID, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	}
}

// ToolCall returns the tool call with the given id.
func (m Message) ToolCall(id string) (ToolCall, bool) {
	for _, call := range m.ToolCalls {
		if call.ID == id {
			return call, true
		}
	}
	return ToolCall{}, false
}

// CompletedToolCount 统计已有输出的工具调用数，用作渲染缓存版本的一部分。
func (m Message) CompletedToolCount() int {
	n := 0
	for _, call := range m.ToolCalls {
		if call.Completed() {
			n++
		}
	}
	return n
}

// PendingQuestion returns the first question tool that has not been answered yet.
func (m Message) PendingQuestion() (ToolCall, bool) {
	if m.Role != RoleAssistant || m.Cancelled {
		return ToolCall{}, false
	}
	for _, call := range m.ToolCalls {
		if IsQuestionTool(call.Name) && !m.Answered[call.ID] && !call.Completed() {
			return call, true
		}
	}
	return ToolCall{}, false
}

// PendingPlan reports whether the message proposes a plan that still waits for approval.
func (m Message) PendingPlan() bool {
	if m.Role != RoleAssistant || m.Cancelled || m.PlanApproved {
		return false
	}
	for _, call := range m.ToolCalls {
		if IsPlanExitTool(call.Name) {
			return true
		}
	}
	return false
}

// Clone 深拷贝消息，避免 live buffer 与已提交列表共享切片。
func (m Message) Clone() Message {
	out := m
	out.ContentBlocks = append([]ContentBlock(nil), m.ContentBlocks...)
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, call := range m.ToolCalls {
			out.ToolCalls[i] = call
			out.ToolCalls[i].Input = append(json.RawMessage(nil), call.Input...)
			if call.Output != nil {
				v := *call.Output
				out.ToolCalls[i].Output = &v
			}
		}
	}
	if m.Answered != nil {
		out.Answered = make(map[string]bool, len(m.Answered))
		for k, v := range m.Answered {
			out.Answered[k] = v
		}
	}
	return out
}

// PlainText joins the text blocks, falling back to Content for legacy messages.
func (m Message) PlainText() string {
	if len(m.ContentBlocks) == 0 {
		return m.Content
	}
	parts := make([]string, 0, len(m.ContentBlocks))
	for _, b := range m.ContentBlocks {
		if b.Type == BlockText && strings.TrimSpace(b.Text) != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}
