package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session 是持久化的会话元数据；消息列表由 history 存储单独保存。
type Session struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	WorktreeID string    `json:"worktree_id,omitempty"`
	Archived   bool      `json:"archived,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewSession(title string) Session {
	now := time.Now()
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New session"
	}
	return Session{ID: uuid.NewString(), Title: title, CreatedAt: now, UpdatedAt: now}
}

// ExecutionMode 描述后端执行权限。
type ExecutionMode string

const (
	// ModePlan 只读规划模式。
	ModePlan ExecutionMode = "plan"
	// ModeBuild 自动应用修改。
	ModeBuild ExecutionMode = "build"
	// ModeYolo 不受限制。
	ModeYolo ExecutionMode = "yolo"
)

// ParseExecutionMode accepts the canonical names plus the long aliases used in config files.
func ParseExecutionMode(raw string) (ExecutionMode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "plan", "read-only-plan":
		return ModePlan, true
	case "build", "auto-apply":
		return ModeBuild, true
	case "yolo", "unrestricted":
		return ModeYolo, true
	}
	return "", false
}

// ThinkingLevel 控制推理预算。
type ThinkingLevel string

const (
	ThinkingOff   ThinkingLevel = "off"
	ThinkingThink ThinkingLevel = "think"
	ThinkingMega  ThinkingLevel = "megathink"
	ThinkingUltra ThinkingLevel = "ultrathink"
)

// SendOptions 随每次发送传给后端。
type SendOptions struct {
	Provider string
	Model    string
	Mode     ExecutionMode
	Thinking ThinkingLevel
}
