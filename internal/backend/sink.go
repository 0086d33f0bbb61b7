package backend

import (
	"context"
	"sync"
	"time"

	"chatline/internal/chat"
	"chatline/internal/events"
)

// turnSink 一边组装助手消息一边把事件发布到队列。
type turnSink struct {
	ctx   context.Context
	queue *events.Queue
	req   SendRequest

	mu  sync.Mutex
	msg chat.Message
}

func newTurnSink(ctx context.Context, queue *events.Queue, req SendRequest) *turnSink {
	return &turnSink{
		ctx:   ctx,
		queue: queue,
		req:   req,
		msg: chat.Message{
			ID:            req.TurnID,
			SessionID:     req.SessionID,
			Role:          chat.RoleAssistant,
			Model:         req.Options.Model,
			ExecutionMode: req.Options.Mode,
			Timestamp:     time.Now(),
		},
	}
}

func (s *turnSink) Append(block chat.BlockType, text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	s.msg.AppendContent(block, text)
	s.mu.Unlock()
	s.publish(events.EventContentAppend, events.ContentDelta{Block: block, Text: text})
}

func (s *turnSink) Invoke(call chat.ToolCall) {
	s.mu.Lock()
	added := s.msg.AppendTool(call)
	s.mu.Unlock()
	if added {
		s.publish(events.EventToolInvoked, events.ToolInvocation{Call: call})
	}
}

func (s *turnSink) Complete(toolID, output string, isError bool) {
	s.mu.Lock()
	known := s.msg.CompleteTool(toolID, output)
	s.mu.Unlock()
	if known {
		s.publish(events.EventToolCompleted, events.ToolResult{ToolID: toolID, Output: output, IsError: isError})
	}
}

// Message returns a copy of the assembled assistant message.
func (s *turnSink) Message() chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msg.Clone()
}

func (s *turnSink) publish(typ events.Type, payload any) {
	ev := events.New(typ, s.req.SessionID, s.req.TurnID, payload)
	if err := s.queue.Publish(s.ctx, ev); err != nil {
		log.WithField("type", typ).Debugf("publish dropped: %v", err)
	}
}
