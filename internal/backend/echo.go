package backend

import (
	"context"
	"errors"
	"strings"
	"time"

	"chatline/internal/chat"
)

// EchoProvider 是没有配置 API key 时的离线兜底：把输入按词回显。
type EchoProvider struct {
	Prefix string
	// Delay 控制每个片段之间的间隔，便于在终端里观察流式效果。
	Delay time.Duration
}

func (EchoProvider) Name() string { return "echo" }

func (p EchoProvider) Stream(ctx context.Context, turn Turn, sink Sink) error {
	text := strings.TrimSpace(turn.Text)
	if text == "" {
		return errors.New("no message to echo")
	}
	if turn.Options.Thinking != "" && turn.Options.Thinking != chat.ThinkingOff {
		sink.Append(chat.BlockReasoning, "echoing the last message")
	}
	words := strings.SplitAfter(p.Prefix+text, " ")
	for _, w := range words {
		if p.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		sink.Append(chat.BlockText, w)
	}
	return nil
}
