// Package session 实现按会话分区的流式状态机：发送、排队、实时缓冲、与持久化历史的对账。
//
// Store 只能在 Bubble Tea 的 Update 中调用。所有需要等待后端的操作（发送、拉取历史、写回审批标记）
// 都以 tea.Cmd 返回，结果作为消息重新进入 Update。
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatline/internal/backend"
	"chatline/internal/chat"
	"chatline/internal/events"
	"chatline/internal/history"
	"chatline/internal/logger"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

var log = logger.Named("session")

// History 是状态机对持久化层的依赖。
type History interface {
	history.Fetcher
	MarkPlanApproved(ctx context.Context, sessionID, messageID string) error
	MarkAnswered(ctx context.Context, sessionID, messageID, toolID string) error
}

const (
	planApprovedPrompt = "The plan is approved. Proceed with the implementation."
	skippedAnswer      = "(skipped)"
)

// EventMsg 把后端事件送入 Update。
type EventMsg events.Event

type sendDoneMsg struct {
	sessionID string
	turnID    string
	err       error
}

type fetchedMsg struct {
	sessionID string
	seq       int
	messages  []chat.Message
	err       error
}

type persistedMsg struct {
	sessionID string
	op        string
	err       error
}

// Store 持有所有会话的状态。
type Store struct {
	ctx      context.Context
	sender   backend.Sender
	history  History
	defaults chat.SendOptions
	sessions map[string]*state
	now      func() time.Time
}

// NewStore 创建状态机。ctx 用于所有后端调用。
func NewStore(ctx context.Context, sender backend.Sender, hist History, defaults chat.SendOptions) *Store {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Store{
		ctx:      ctx,
		sender:   sender,
		history:  hist,
		defaults: defaults,
		sessions: make(map[string]*state),
		now:      time.Now,
	}
}

// Open 注册会话并拉取其历史。重复调用只触发一次新的拉取。
func (s *Store) Open(sessionID string) tea.Cmd {
	st := s.ensure(sessionID)
	return s.fetch(st)
}

// Forget 丢弃会话的内存状态；若仍在发送则先取消。
func (s *Store) Forget(sessionID string) {
	st, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	if st.turnID != "" {
		s.sender.Cancel(sessionID)
	}
	delete(s.sessions, sessionID)
}

func (s *Store) ensure(sessionID string) *state {
	st, ok := s.sessions[sessionID]
	if !ok {
		st = &state{
			id:       sessionID,
			options:  s.defaults,
			approved: make(map[string]bool),
			answered: make(map[string]bool),
		}
		s.sessions[sessionID] = st
	}
	return st
}

// SetOptions 覆盖会话后续发送使用的选项。
func (s *Store) SetOptions(sessionID string, opts chat.SendOptions) {
	s.ensure(sessionID).options = opts
}

// Submit 提交用户输入，总是进入队尾。Sending 时只排队；AwaitingInput 时先跳过待处理的提问/计划；
// Error 时按队首重试；Idle 时派发队首。
func (s *Store) Submit(sessionID, text string) tea.Cmd {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	st := s.ensure(sessionID)
	p := Pending{Text: text, Options: st.options}

	switch st.status {
	case Sending:
		st.queue = append(st.queue, p)
		log.WithFields(logger.Fields{"session_id": sessionID, "queued": len(st.queue)}).Debug("message queued")
		return nil
	case AwaitingInput:
		persist := s.skipPending(st)
		st.queue = append(st.queue, p)
		st.status = Idle
		return tea.Batch(persist, s.dispatchNext(st))
	case Error:
		st.queue = append(st.queue, p)
		return s.RetryQueue(sessionID)
	default:
		// 队列先于新消息发送
		st.queue = append(st.queue, p)
		return s.dispatchNext(st)
	}
}

// CancelTurn 通知后端取消，并立即清空实时缓冲、回到 Idle，然后派发队首。
func (s *Store) CancelTurn(sessionID string) tea.Cmd {
	st, ok := s.sessions[sessionID]
	if !ok || st.turnID == "" {
		return nil
	}
	s.sender.Cancel(sessionID)
	log.WithFields(logger.Fields{"session_id": sessionID, "turn_id": st.turnID}).Info("turn cancelled")
	st.turnID = ""
	st.live = nil
	st.status = Idle
	return tea.Batch(s.fetch(st), s.dispatchNext(st))
}

// AnswerQuestion 记录回答并把答案作为下一回合发送。
func (s *Store) AnswerQuestion(sessionID, toolID string, answers []string) tea.Cmd {
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	persist, found := s.markAnswered(st, toolID)
	if !found {
		log.WithFields(logger.Fields{"session_id": sessionID, "tool_id": toolID}).Warn("answer for unknown question")
		return nil
	}
	s.abandonStream(st)
	text := strings.Join(answers, "\n")
	if strings.TrimSpace(text) == "" {
		text = skippedAnswer
	}
	return tea.Batch(persist, s.dispatch(st, Pending{Text: text, Options: st.options}))
}

// SkipQuestion 标记提问已处理但不发送回答。
func (s *Store) SkipQuestion(sessionID, toolID string) tea.Cmd {
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	persist, found := s.markAnswered(st, toolID)
	if !found {
		return nil
	}
	return tea.Batch(persist, s.settle(st))
}

// ApprovePlan 批准计划并以 build 模式继续。
func (s *Store) ApprovePlan(sessionID, messageID string) tea.Cmd {
	return s.approve(sessionID, messageID, chat.ModeBuild)
}

// ApprovePlanElevated 批准计划并以不受限模式继续。
func (s *Store) ApprovePlanElevated(sessionID, messageID string) tea.Cmd {
	return s.approve(sessionID, messageID, chat.ModeYolo)
}

func (s *Store) approve(sessionID, messageID string, mode chat.ExecutionMode) tea.Cmd {
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	copies := st.findMessage(messageID)
	if len(copies) == 0 {
		log.WithFields(logger.Fields{"session_id": sessionID, "message_id": messageID}).Warn("approve for unknown message")
		return nil
	}
	st.approved[messageID] = true
	for _, m := range copies {
		m.PlanApproved = true
	}
	persist := s.persist(sessionID, "plan_approved", func(ctx context.Context) error {
		return s.history.MarkPlanApproved(ctx, sessionID, messageID)
	})
	s.abandonStream(st)
	opts := st.options
	opts.Mode = mode
	return tea.Batch(persist, s.dispatch(st, Pending{Text: planApprovedPrompt, Options: opts}))
}

// DismissError 清除错误横幅并回到 Idle，不派发队列。
func (s *Store) DismissError(sessionID string) {
	st, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	st.banner = ""
	if st.status == Error {
		st.status = Idle
	}
}

// RetryQueue 在 Error 或 Idle 时派发队首。
func (s *Store) RetryQueue(sessionID string) tea.Cmd {
	st, ok := s.sessions[sessionID]
	if !ok || st.status == Sending || st.status == AwaitingInput {
		return nil
	}
	st.banner = ""
	st.status = Idle
	return s.dispatchNext(st)
}

// ClearQueue 丢弃排队的输入。
func (s *Store) ClearQueue(sessionID string) {
	if st, ok := s.sessions[sessionID]; ok {
		st.queue = nil
	}
}

// Update 处理状态机相关的消息；其他消息返回 nil。
func (s *Store) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case EventMsg:
		return s.handleEvent(events.Event(msg))
	case sendDoneMsg:
		return s.handleSendDone(msg)
	case fetchedMsg:
		s.handleFetched(msg)
	case persistedMsg:
		if msg.err != nil {
			log.WithFields(logger.Fields{"session_id": msg.sessionID, "op": msg.op}).Warnf("persist failed: %v", msg.err)
		}
	}
	return nil
}

// Owns reports whether msg belongs to the state machine and should be passed to Update.
func Owns(msg tea.Msg) bool {
	switch msg.(type) {
	case EventMsg, sendDoneMsg, fetchedMsg, persistedMsg:
		return true
	}
	return false
}

func (s *Store) handleEvent(ev events.Event) tea.Cmd {
	st, ok := s.sessions[ev.SessionID]
	if !ok || st.turnID == "" || ev.TurnID != st.turnID {
		log.WithFields(logger.Fields{"session_id": ev.SessionID, "turn_id": ev.TurnID, "type": ev.Type}).Debug("stale event ignored")
		return nil
	}

	switch ev.Type {
	case events.EventContentAppend:
		delta, ok := ev.Payload.(events.ContentDelta)
		if !ok {
			return nil
		}
		st.live.AppendContent(delta.Block, delta.Text)
	case events.EventToolInvoked:
		inv, ok := ev.Payload.(events.ToolInvocation)
		if !ok {
			return nil
		}
		if st.live.AppendTool(inv.Call) && st.status == Sending && awaitingInput(st.live) {
			st.status = AwaitingInput
		}
	case events.EventToolCompleted:
		res, ok := ev.Payload.(events.ToolResult)
		if !ok {
			return nil
		}
		if !st.live.CompleteTool(res.ToolID, res.Output) {
			log.WithFields(logger.Fields{"session_id": st.id, "tool_id": res.ToolID}).Debug("result for unknown tool")
		}
	case events.EventTurnComplete:
		st.turnID = ""
		st.retainLive()
		return tea.Batch(s.fetch(st), s.settle(st))
	case events.EventTurnCancelled:
		st.turnID = ""
		st.live = nil
		st.status = Idle
		return tea.Batch(s.fetch(st), s.dispatchNext(st))
	case events.EventTurnError:
		msg := "turn failed"
		if f, ok := ev.Payload.(events.TurnFailure); ok && f.Error != "" {
			msg = f.Error
		}
		s.fail(st, msg)
		return s.fetch(st)
	}
	return nil
}

func (s *Store) handleSendDone(msg sendDoneMsg) tea.Cmd {
	if msg.err == nil || errors.Is(msg.err, context.Canceled) || errors.Is(msg.err, backend.ErrTurnCancelled) {
		return nil
	}
	st, ok := s.sessions[msg.sessionID]
	if !ok || st.turnID != msg.turnID {
		return nil
	}
	s.fail(st, msg.err.Error())
	return s.fetch(st)
}

func (s *Store) handleFetched(msg fetchedMsg) {
	st, ok := s.sessions[msg.sessionID]
	if !ok || msg.seq != st.fetchSeq {
		return
	}
	st.fetching = false
	if msg.err != nil {
		log.WithField("session_id", msg.sessionID).Warnf("history fetch failed: %v", msg.err)
		if st.banner == "" {
			st.banner = fmt.Sprintf("history refresh failed: %v", msg.err)
		}
		return
	}
	st.reconcile(msg.messages)
	if st.status == Idle && awaitingInput(st.latestAssistant()) {
		st.status = AwaitingInput
	}
}

func (s *Store) fail(st *state, message string) {
	log.WithFields(logger.Fields{"session_id": st.id, "turn_id": st.turnID}).Warnf("turn error: %s", message)
	st.turnID = ""
	st.retainLive()
	st.status = Error
	st.banner = message
}

// settle 在回合结束（或待处理提问被跳过）后决定下一状态：仍有待回答内容则 AwaitingInput，否则 Idle 并派发队首。
func (s *Store) settle(st *state) tea.Cmd {
	if awaitingInput(st.latestAssistant()) {
		st.status = AwaitingInput
		return nil
	}
	if st.turnID != "" {
		st.status = Sending
		return nil
	}
	st.status = Idle
	return s.dispatchNext(st)
}

func (s *Store) dispatchNext(st *state) tea.Cmd {
	if st.status != Idle || len(st.queue) == 0 {
		return nil
	}
	next := st.queue[0]
	st.queue = st.queue[1:]
	return s.dispatch(st, next)
}

func (s *Store) dispatch(st *state, p Pending) tea.Cmd {
	user := chat.NewUserMessage(st.id, p.Text)
	turnID := uuid.NewString()
	st.turnID = turnID
	st.status = Sending
	st.banner = ""
	st.retained = append(st.retained, user)
	st.live = &chat.Message{
		ID:            turnID,
		SessionID:     st.id,
		Role:          chat.RoleAssistant,
		Model:         p.Options.Model,
		ExecutionMode: p.Options.Mode,
		Timestamp:     s.now(),
	}
	log.WithFields(logger.Fields{"session_id": st.id, "turn_id": turnID, "queued": len(st.queue)}).Info("dispatching turn")

	req := backend.SendRequest{
		SessionID: st.id,
		TurnID:    turnID,
		MessageID: user.ID,
		Text:      p.Text,
		Options:   p.Options,
	}
	ctx, sender, sessionID := s.ctx, s.sender, st.id
	return func() tea.Msg {
		err := sender.Send(ctx, req)
		return sendDoneMsg{sessionID: sessionID, turnID: turnID, err: err}
	}
}

// abandonStream 在用户以新回合回应时放弃仍在流式输出的旧回合，其内容保留到对账。
func (s *Store) abandonStream(st *state) {
	if st.turnID == "" {
		return
	}
	s.sender.Cancel(st.id)
	st.turnID = ""
	st.retainLive()
}

// skipPending 把最新助手消息中的待回答提问标记为已跳过。
func (s *Store) skipPending(st *state) tea.Cmd {
	msg := st.latestAssistant()
	if msg == nil {
		s.abandonStream(st)
		return nil
	}
	var cmds []tea.Cmd
	for {
		call, ok := msg.PendingQuestion()
		if !ok {
			break
		}
		cmd, ok := s.markAnswered(st, call.ID)
		if !ok {
			break
		}
		cmds = append(cmds, cmd)
	}
	s.abandonStream(st)
	return tea.Batch(cmds...)
}

func (s *Store) markAnswered(st *state, toolID string) (tea.Cmd, bool) {
	messageID, ok := st.findTool(toolID)
	if !ok {
		return nil, false
	}
	st.answered[toolID] = true
	for _, m := range st.findMessage(messageID) {
		if m.Answered == nil {
			m.Answered = make(map[string]bool)
		}
		m.Answered[toolID] = true
	}
	sessionID := st.id
	return s.persist(sessionID, "answered", func(ctx context.Context) error {
		return s.history.MarkAnswered(ctx, sessionID, messageID, toolID)
	}), true
}

func (s *Store) fetch(st *state) tea.Cmd {
	st.fetchSeq++
	st.fetching = true
	seq, sessionID, ctx, hist := st.fetchSeq, st.id, s.ctx, s.history
	return func() tea.Msg {
		msgs, err := hist.Fetch(ctx, sessionID)
		return fetchedMsg{sessionID: sessionID, seq: seq, messages: msgs, err: err}
	}
}

func (s *Store) persist(sessionID, op string, fn func(context.Context) error) tea.Cmd {
	ctx := s.ctx
	return func() tea.Msg {
		return persistedMsg{sessionID: sessionID, op: op, err: fn(ctx)}
	}
}
