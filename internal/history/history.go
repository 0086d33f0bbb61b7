// Package history 持久化会话与消息。后端在一轮结束时写入助手消息，
// UI 在 turn.complete 之后通过 Fetch 拉取权威列表。
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatline/internal/chat"
	"chatline/internal/logger"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageNotFound = errors.New("message not found")
)

var log = logger.Named("history")

// Fetcher 是会话状态机所需的最小读取接口。
type Fetcher interface {
	Fetch(ctx context.Context, sessionID string) ([]chat.Message, error)
}

// Store 是完整的持久化接口。Append 对相同 id 的消息执行覆盖写。
type Store interface {
	Fetcher
	Append(ctx context.Context, msg chat.Message) error
	MarkPlanApproved(ctx context.Context, sessionID, messageID string) error
	MarkAnswered(ctx context.Context, sessionID, messageID, toolID string) error

	CreateSession(ctx context.Context, title string) (chat.Session, error)
	Session(ctx context.Context, sessionID string) (chat.Session, error)
	// Sessions 按更新时间倒序返回会话。
	Sessions(ctx context.Context, includeArchived bool) ([]chat.Session, error)
	Archive(ctx context.Context, sessionID string) error
	Close() error
}

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Open 按驱动名创建存储，dir 为数据目录。
func Open(driver, dir string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverJSON:
		return NewFileStore(dir), nil
	case DriverSQLite:
		return OpenSQLite(dir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// upsert replaces the message with the same id or appends it.
func upsert(messages []chat.Message, msg chat.Message) []chat.Message {
	for i := range messages {
		if messages[i].ID == msg.ID {
			messages[i] = msg
			return messages
		}
	}
	return append(messages, msg)
}

func markAnswered(msg *chat.Message, toolID string) {
	if msg.Answered == nil {
		msg.Answered = make(map[string]bool)
	}
	msg.Answered[toolID] = true
}
