// Package backend 把一次发送变成事件流：调用模型提供方，边流式输出边发布事件，
// 结束时先持久化助手消息再发布 turn.complete，保证 UI 拉取历史时一定能看到它。
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chatline/internal/chat"
	"chatline/internal/events"
	"chatline/internal/history"
	"chatline/internal/logger"

	"golang.org/x/sync/semaphore"
)

var log = logger.Named("backend")

// ErrTurnCancelled 表示回合被调用方取消。
var ErrTurnCancelled = errors.New("turn cancelled")

// SendRequest 描述一次用户发送。MessageID 是乐观显示的用户消息 id，TurnID 同时作为助手消息 id。
type SendRequest struct {
	SessionID string
	TurnID    string
	MessageID string
	Text      string
	Options   chat.SendOptions
}

// Sender 由会话状态机调用。Send 阻塞到回合结束；Cancel 不阻塞。
type Sender interface {
	Send(ctx context.Context, req SendRequest) error
	Cancel(sessionID string)
}

// Turn 是交给 Provider 的一次请求。
type Turn struct {
	SessionID string
	History   []chat.Message
	Text      string
	Options   chat.SendOptions
	// Instructions 是项目说明，附加在系统提示之后。
	Instructions string
}

// Sink 接收 Provider 的流式输出，顺序即因果顺序。
type Sink interface {
	Append(block chat.BlockType, text string)
	Invoke(call chat.ToolCall)
	Complete(toolID, output string, isError bool)
}

// Provider 流式生成一个助手回合。返回 nil 表示正常结束。
type Provider interface {
	Name() string
	Stream(ctx context.Context, turn Turn, sink Sink) error
}

// Recorder 是 Runner 对持久化层的依赖。
type Recorder interface {
	history.Fetcher
	Append(ctx context.Context, msg chat.Message) error
}

type activeTurn struct {
	turnID string
	cancel context.CancelFunc
}

// Runner 实现 Sender：每个会话同一时刻最多一个回合。
type Runner struct {
	provider Provider
	queue    *events.Queue
	store    Recorder

	budget       int
	instructions string
	// slots 为 nil 时不限制并发回合数。
	slots *semaphore.Weighted

	mu     sync.Mutex
	active map[string]activeTurn
}

func NewRunner(provider Provider, queue *events.Queue, store Recorder) *Runner {
	return &Runner{
		provider: provider,
		queue:    queue,
		store:    store,
		active:   make(map[string]activeTurn),
	}
}

// SetContextBudget 限制每次请求携带的历史的估算 token 数；0 表示不限制。
func (r *Runner) SetContextBudget(tokens int) {
	r.budget = tokens
}

// SetInstructions 设置随每个回合发送的项目说明。
func (r *Runner) SetInstructions(text string) {
	r.instructions = strings.TrimSpace(text)
}

// SetMaxConcurrent 限制跨会话同时进行的回合数；同一会话内本来就是串行的。n <= 0 表示不限制。
func (r *Runner) SetMaxConcurrent(n int) {
	if n <= 0 {
		r.slots = nil
		return
	}
	r.slots = semaphore.NewWeighted(int64(n))
}

// Provider returns the provider the runner streams from.
func (r *Runner) Provider() Provider {
	return r.provider
}

func (r *Runner) Send(ctx context.Context, req SendRequest) error {
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.TurnID) == "" {
		return errors.New("send request requires session and turn id")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.register(req.SessionID, req.TurnID, cancel)
	defer r.unregister(req.SessionID, req.TurnID)

	entry := log.WithFields(logger.Fields{
		"session_id": req.SessionID,
		"turn_id":    req.TurnID,
		"provider":   r.provider.Name(),
		"model":      req.Options.Model,
	})
	// 终止事件在回合 ctx 取消后仍要送达
	bg := context.WithoutCancel(ctx)

	if r.slots != nil {
		if err := r.slots.Acquire(ctx, 1); err != nil {
			r.publish(bg, events.New(events.EventTurnCancelled, req.SessionID, req.TurnID, nil))
			entry.Info("turn cancelled while waiting for a slot")
			return ErrTurnCancelled
		}
		defer r.slots.Release(1)
	}

	prior, err := r.store.Fetch(ctx, req.SessionID)
	if err != nil {
		return r.fail(bg, req, fmt.Errorf("load history: %w", err))
	}
	user := chat.Message{
		ID:        req.MessageID,
		SessionID: req.SessionID,
		Role:      chat.RoleUser,
		Content:   req.Text,
		Timestamp: time.Now(),
	}
	if user.ID == "" {
		user = chat.NewUserMessage(req.SessionID, req.Text)
	}
	if err := r.store.Append(ctx, user); err != nil {
		return r.fail(bg, req, fmt.Errorf("persist user message: %w", err))
	}

	sink := newTurnSink(ctx, r.queue, req)
	entry.Info("turn started")
	streamErr := r.provider.Stream(ctx, Turn{
		SessionID:    req.SessionID,
		History:      fitHistory(prior, req.Text, r.budget),
		Text:         TruncateMiddle(req.Text, r.budget),
		Options:      req.Options,
		Instructions: r.instructions,
	}, sink)
	final := sink.Message()

	switch {
	case ctx.Err() != nil || errors.Is(streamErr, ErrTurnCancelled):
		final.Cancelled = true
		if !final.Empty() {
			if err := r.store.Append(bg, final); err != nil {
				entry.Warnf("persist cancelled turn: %v", err)
			}
		}
		r.publish(bg, events.New(events.EventTurnCancelled, req.SessionID, req.TurnID, nil))
		entry.Info("turn cancelled")
		return ErrTurnCancelled
	case streamErr != nil:
		if !final.Empty() {
			if err := r.store.Append(bg, final); err != nil {
				entry.Warnf("persist failed turn: %v", err)
			}
		}
		return r.fail(bg, req, streamErr)
	}

	if err := r.store.Append(bg, final); err != nil {
		return r.fail(bg, req, fmt.Errorf("persist assistant message: %w", err))
	}
	r.publish(bg, events.New(events.EventTurnComplete, req.SessionID, req.TurnID, nil))
	entry.WithField("tools", len(final.ToolCalls)).Info("turn complete")
	return nil
}

// Cancel 取消会话当前回合；没有进行中的回合时什么也不做。
func (r *Runner) Cancel(sessionID string) {
	r.mu.Lock()
	turn, ok := r.active[sessionID]
	r.mu.Unlock()
	if ok {
		turn.cancel()
	}
}

// Active reports whether the session has a turn in flight.
func (r *Runner) Active(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[sessionID]
	return ok
}

func (r *Runner) register(sessionID, turnID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// 新回合顶替旧回合
	if prev, ok := r.active[sessionID]; ok {
		prev.cancel()
	}
	r.active[sessionID] = activeTurn{turnID: turnID, cancel: cancel}
}

func (r *Runner) unregister(sessionID, turnID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.active[sessionID]; ok && cur.turnID == turnID {
		delete(r.active, sessionID)
	}
}

func (r *Runner) fail(ctx context.Context, req SendRequest, err error) error {
	log.WithFields(logger.Fields{"session_id": req.SessionID, "turn_id": req.TurnID}).Warnf("turn failed: %v", err)
	r.publish(ctx, events.New(events.EventTurnError, req.SessionID, req.TurnID, events.TurnFailure{Error: err.Error()}))
	return err
}

func (r *Runner) publish(ctx context.Context, ev events.Event) {
	if err := r.queue.Publish(ctx, ev); err != nil {
		log.WithField("type", ev.Type).Debugf("publish dropped: %v", err)
	}
}

// transcript 把历史压成交替的 user/assistant 文本，连续同角色的消息合并，空消息跳过。
func transcript(prior []chat.Message, text string) []chat.Message {
	out := make([]chat.Message, 0, len(prior)+1)
	add := func(role chat.Role, content string) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + content
			return
		}
		out = append(out, chat.Message{Role: role, Content: content})
	}
	for _, m := range prior {
		add(m.Role, m.PlainText())
	}
	add(chat.RoleUser, text)
	return out
}

// rawInput normalizes a tool input payload to JSON.
func rawInput(v string) json.RawMessage {
	v = strings.TrimSpace(v)
	if v == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(v)
}
