package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chatline/internal/backend"
	"chatline/internal/chat"
	"chatline/internal/events"
	"chatline/internal/history"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	reqs    []backend.SendRequest
	cancels []string
	err     error
}

func (f *fakeSender) Send(_ context.Context, req backend.SendRequest) error {
	f.reqs = append(f.reqs, req)
	return f.err
}

func (f *fakeSender) Cancel(sessionID string) {
	f.cancels = append(f.cancels, sessionID)
}

func (f *fakeSender) texts() []string {
	out := make([]string, 0, len(f.reqs))
	for _, r := range f.reqs {
		out = append(out, r.Text)
	}
	return out
}

func (f *fakeSender) last() backend.SendRequest {
	return f.reqs[len(f.reqs)-1]
}

type fakeHistory struct {
	msgs     map[string][]chat.Message
	fetchErr error
	approved []string
	answered []string
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{msgs: make(map[string][]chat.Message)}
}

func (h *fakeHistory) Fetch(_ context.Context, sessionID string) ([]chat.Message, error) {
	if h.fetchErr != nil {
		return nil, h.fetchErr
	}
	out := make([]chat.Message, 0, len(h.msgs[sessionID]))
	for _, m := range h.msgs[sessionID] {
		out = append(out, m.Clone())
	}
	return out, nil
}

func (h *fakeHistory) MarkPlanApproved(_ context.Context, _, messageID string) error {
	h.approved = append(h.approved, messageID)
	return nil
}

func (h *fakeHistory) MarkAnswered(_ context.Context, _, _, toolID string) error {
	h.answered = append(h.answered, toolID)
	return nil
}

// persistTurn 模拟后端在 turn.complete 之前写入的用户消息与助手消息。
func (h *fakeHistory) persistTurn(req backend.SendRequest, reply chat.Message) {
	reply.ID = req.TurnID
	reply.SessionID = req.SessionID
	reply.Role = chat.RoleAssistant
	user := chat.Message{ID: req.MessageID, SessionID: req.SessionID, Role: chat.RoleUser, Content: req.Text}
	h.msgs[req.SessionID] = append(h.msgs[req.SessionID], user, reply)
}

func newTestStore() (*Store, *fakeSender, *fakeHistory) {
	sender := &fakeSender{}
	hist := newFakeHistory()
	return NewStore(context.Background(), sender, hist, chat.SendOptions{Model: "m", Mode: chat.ModeBuild}), sender, hist
}

// run 同步执行命令并把结果送回 Update，直到没有后续命令。
func run(s *Store, cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			run(s, c)
		}
		return
	}
	run(s, s.Update(msg))
}

func emit(s *Store, typ events.Type, sessionID, turnID string, payload any) tea.Cmd {
	return s.Update(EventMsg(events.New(typ, sessionID, turnID, payload)))
}

func textReply(text string) chat.Message {
	return chat.Message{Content: text, ContentBlocks: []chat.ContentBlock{chat.TextBlock(text)}}
}

func ids(msgs []chat.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestSubmitWhileSendingQueuesAndDispatchesEachOnce(t *testing.T) {
	s, sender, hist := newTestStore()

	run(s, s.Submit("s1", "first"))
	require.Equal(t, Sending, s.Status("s1"))
	run(s, s.Submit("s1", "second"))
	run(s, s.Submit("s1", "  "))
	run(s, s.Submit("s1", "third"))
	require.Len(t, sender.reqs, 1)
	require.Len(t, s.Queue("s1"), 2)

	for i := 0; i < 3; i++ {
		req := sender.last()
		run(s, emit(s, events.EventContentAppend, "s1", req.TurnID, events.ContentDelta{Block: chat.BlockText, Text: "ok"}))
		hist.persistTurn(req, textReply("ok"))
		run(s, emit(s, events.EventTurnComplete, "s1", req.TurnID, nil))
	}

	require.Equal(t, []string{"first", "second", "third"}, sender.texts())
	require.Empty(t, s.Queue("s1"))
	require.Equal(t, Idle, s.Status("s1"))
	require.Len(t, s.Messages("s1"), 6)
	require.Equal(t, ids(hist.msgs["s1"]), ids(s.Messages("s1")))
}

func TestQueuedMessageKeepsOptionsAtSubmitTime(t *testing.T) {
	s, sender, hist := newTestStore()
	run(s, s.Submit("s1", "a"))
	run(s, s.Submit("s1", "b"))
	s.SetOptions("s1", chat.SendOptions{Model: "other", Mode: chat.ModePlan})

	req := sender.last()
	hist.persistTurn(req, textReply("x"))
	run(s, emit(s, events.EventTurnComplete, "s1", req.TurnID, nil))

	require.Equal(t, "b", sender.last().Text)
	require.Equal(t, "m", sender.last().Options.Model)
}

func TestMessagesHaveNoGapOrDuplicateAcrossReconcile(t *testing.T) {
	s, sender, hist := newTestStore()
	run(s, s.Submit("s1", "hi"))
	req := sender.last()

	// 乐观的用户消息 + 实时助手消息
	run(s, emit(s, events.EventContentAppend, "s1", req.TurnID, events.ContentDelta{Block: chat.BlockText, Text: "hel"}))
	run(s, emit(s, events.EventContentAppend, "s1", req.TurnID, events.ContentDelta{Block: chat.BlockText, Text: "lo"}))
	require.Equal(t, []string{req.MessageID, req.TurnID}, ids(s.Messages("s1")))
	live, ok := s.Live("s1")
	require.True(t, ok)
	require.Equal(t, "hello", live.Content)

	// 拉取尚未返回：仍然显示同样两条
	pending := emit(s, events.EventTurnComplete, "s1", req.TurnID, nil)
	require.True(t, s.Reconciling("s1"))
	_, ok = s.Live("s1")
	require.False(t, ok)
	require.Equal(t, []string{req.MessageID, req.TurnID}, ids(s.Messages("s1")))

	// 落后的拉取只含用户消息：助手消息仍由保留列表补上
	hist.msgs["s1"] = []chat.Message{{ID: req.MessageID, SessionID: "s1", Role: chat.RoleUser, Content: "hi"}}
	run(s, pending)
	require.Equal(t, []string{req.MessageID, req.TurnID}, ids(s.Messages("s1")))
	require.Len(t, s.Committed("s1"), 1)

	hist.msgs["s1"] = nil
	hist.persistTurn(req, textReply("hello"))
	run(s, s.Open("s1"))
	msgs := s.Messages("s1")
	require.Equal(t, []string{req.MessageID, req.TurnID}, ids(msgs))
	require.Len(t, s.Committed("s1"), 2)
	require.False(t, s.Reconciling("s1"))
	require.Equal(t, "hello", msgs[1].PlainText())
}

func TestStaleFetchIsIgnored(t *testing.T) {
	s, _, hist := newTestStore()
	hist.msgs["s1"] = []chat.Message{{ID: "a", Role: chat.RoleUser}, {ID: "b", Role: chat.RoleAssistant}}
	older := s.Open("s1")
	newer := s.Open("s1")

	run(s, newer)
	hist.msgs["s1"] = hist.msgs["s1"][:1]
	run(s, older)
	require.Equal(t, []string{"a", "b"}, ids(s.Messages("s1")))
}

func TestFetchErrorSetsBanner(t *testing.T) {
	s, _, hist := newTestStore()
	hist.fetchErr = history.ErrSessionNotFound
	run(s, s.Open("s1"))
	require.True(t, strings.HasPrefix(s.Banner("s1"), "history refresh failed"))
	require.Equal(t, Idle, s.Status("s1"))
}

func TestTurnErrorKeepsQueueUntilRetry(t *testing.T) {
	s, sender, _ := newTestStore()
	run(s, s.Submit("s1", "a"))
	run(s, s.Submit("s1", "b"))
	req := sender.last()

	run(s, emit(s, events.EventContentAppend, "s1", req.TurnID, events.ContentDelta{Block: chat.BlockText, Text: "partial"}))
	run(s, emit(s, events.EventTurnError, "s1", req.TurnID, events.TurnFailure{Error: "overloaded"}))
	require.Equal(t, Error, s.Status("s1"))
	require.Equal(t, "overloaded", s.Banner("s1"))
	require.Len(t, sender.reqs, 1)
	require.Len(t, s.Queue("s1"), 1)
	// 失败回合的部分输出保留可见
	require.Equal(t, []string{req.MessageID, req.TurnID}, ids(s.Messages("s1")))

	s.DismissError("s1")
	require.Equal(t, Idle, s.Status("s1"))
	require.Empty(t, s.Banner("s1"))
	require.Len(t, sender.reqs, 1)
	require.Len(t, s.Queue("s1"), 1)

	run(s, s.RetryQueue("s1"))
	require.Equal(t, []string{"a", "b"}, sender.texts())
	require.Equal(t, Sending, s.Status("s1"))
}

func TestSubmitInErrorStateRetriesQueueHead(t *testing.T) {
	s, sender, _ := newTestStore()
	run(s, s.Submit("s1", "a"))
	run(s, s.Submit("s1", "b"))
	run(s, emit(s, events.EventTurnError, "s1", sender.last().TurnID, nil))
	require.Equal(t, "turn failed", s.Banner("s1"))

	run(s, s.Submit("s1", "c"))
	require.Equal(t, []string{"a", "b"}, sender.texts())
	require.Equal(t, []Pending{{Text: "c", Options: s.Options("s1")}}, s.Queue("s1"))
}

func TestSubmitAfterDismissSendsQueuedFirst(t *testing.T) {
	s, sender, _ := newTestStore()
	run(s, s.Submit("s1", "a"))
	run(s, s.Submit("s1", "b"))
	run(s, emit(s, events.EventTurnError, "s1", sender.last().TurnID, events.TurnFailure{Error: "x"}))
	s.DismissError("s1")

	run(s, s.Submit("s1", "c"))
	require.Equal(t, []string{"a", "b"}, sender.texts())
	require.Equal(t, []string{"c"}, pendingTexts(s.Queue("s1")))
	require.Equal(t, Sending, s.Status("s1"))
}

func TestSubmitWhileAwaitingInputKeepsQueueOrder(t *testing.T) {
	s, sender, hist := newTestStore()
	run(s, s.Submit("s1", "a"))
	run(s, s.Submit("s1", "b"))
	req := sender.last()
	reply := chat.Message{
		ToolCalls:     []chat.ToolCall{{ID: "q1", Name: chat.ToolQuestion}},
		ContentBlocks: []chat.ContentBlock{chat.ToolBlock("q1")},
	}
	run(s, emit(s, events.EventToolInvoked, "s1", req.TurnID, events.ToolInvocation{Call: reply.ToolCalls[0]}))
	hist.persistTurn(req, reply)
	run(s, emit(s, events.EventTurnComplete, "s1", req.TurnID, nil))
	require.Equal(t, AwaitingInput, s.Status("s1"))
	require.Len(t, s.Queue("s1"), 1)

	run(s, s.Submit("s1", "c"))
	require.Equal(t, []string{"a", "b"}, sender.texts())
	require.Equal(t, []string{"c"}, pendingTexts(s.Queue("s1")))
	require.Equal(t, []string{"q1"}, hist.answered)
	require.Equal(t, Sending, s.Status("s1"))
}

func pendingTexts(queue []Pending) []string {
	out := make([]string, 0, len(queue))
	for _, p := range queue {
		out = append(out, p.Text)
	}
	return out
}

func TestClearQueueDiscardsPending(t *testing.T) {
	s, sender, _ := newTestStore()
	run(s, s.Submit("s1", "a"))
	run(s, s.Submit("s1", "b"))
	run(s, emit(s, events.EventTurnError, "s1", sender.last().TurnID, events.TurnFailure{Error: "x"}))

	s.ClearQueue("s1")
	run(s, s.RetryQueue("s1"))
	require.Len(t, sender.reqs, 1)
	require.Equal(t, Idle, s.Status("s1"))
}

func TestSendFailureWithoutEventEntersError(t *testing.T) {
	s, sender, _ := newTestStore()
	sender.err = errors.New("connection refused")
	run(s, s.Submit("s1", "a"))
	require.Equal(t, Error, s.Status("s1"))
	require.Equal(t, "connection refused", s.Banner("s1"))

	s2, sender2, _ := newTestStore()
	sender2.err = backend.ErrTurnCancelled
	run(s2, s2.Submit("s1", "a"))
	require.Equal(t, Sending, s2.Status("s1"))
}

func TestCancelTurnClearsLiveAndDispatchesNext(t *testing.T) {
	s, sender, _ := newTestStore()
	run(s, s.Submit("s1", "a"))
	run(s, s.Submit("s1", "b"))
	old := sender.last()
	run(s, emit(s, events.EventContentAppend, "s1", old.TurnID, events.ContentDelta{Block: chat.BlockText, Text: "partial"}))

	run(s, s.CancelTurn("s1"))
	require.Equal(t, []string{"s1"}, sender.cancels)
	require.Equal(t, []string{"a", "b"}, sender.texts())
	require.NotEqual(t, old.TurnID, s.TurnID("s1"))

	// 旧回合的迟到事件被忽略
	run(s, emit(s, events.EventContentAppend, "s1", old.TurnID, events.ContentDelta{Block: chat.BlockText, Text: "late"}))
	run(s, emit(s, events.EventTurnCancelled, "s1", old.TurnID, nil))
	live, ok := s.Live("s1")
	require.True(t, ok)
	require.Empty(t, live.Content)
	require.Equal(t, Sending, s.Status("s1"))
	for _, m := range s.Messages("s1") {
		require.NotEqual(t, old.TurnID, m.ID)
	}

	run(s, s.CancelTurn("s1"))
	require.Equal(t, Idle, s.Status("s1"))
	require.Nil(t, s.CancelTurn("s1"))
}

func TestBackendCancelledEventDispatchesNext(t *testing.T) {
	s, sender, _ := newTestStore()
	run(s, s.Submit("s1", "a"))
	run(s, s.Submit("s1", "b"))
	run(s, emit(s, events.EventTurnCancelled, "s1", sender.last().TurnID, nil))
	require.Equal(t, []string{"a", "b"}, sender.texts())
	require.Equal(t, Sending, s.Status("s1"))
}

func TestSessionsAreIsolated(t *testing.T) {
	s, sender, hist := newTestStore()
	run(s, s.Submit("s1", "one"))
	reqOne := sender.last()
	run(s, s.Submit("s2", "two"))
	reqTwo := sender.last()
	require.ElementsMatch(t, []string{"s1", "s2"}, s.Sending())

	run(s, emit(s, events.EventContentAppend, "s1", reqOne.TurnID, events.ContentDelta{Block: chat.BlockText, Text: "for one"}))
	// 事件带错会话 id 时不会串到别的会话
	run(s, emit(s, events.EventContentAppend, "s2", reqOne.TurnID, events.ContentDelta{Block: chat.BlockText, Text: "wrong"}))
	live, _ := s.Live("s2")
	require.Empty(t, live.Content)

	hist.persistTurn(reqOne, textReply("for one"))
	run(s, emit(s, events.EventTurnComplete, "s1", reqOne.TurnID, nil))
	require.Equal(t, Idle, s.Status("s1"))
	require.Equal(t, Sending, s.Status("s2"))
	require.Equal(t, reqTwo.TurnID, s.TurnID("s2"))
	require.Equal(t, []string{"s2"}, s.Sending())
	require.Len(t, s.Messages("s2"), 2)
}

func TestQuestionToolAwaitsInputAndSubmitSkipsIt(t *testing.T) {
	s, sender, hist := newTestStore()
	run(s, s.Submit("s1", "help"))
	req := sender.last()
	run(s, emit(s, events.EventToolInvoked, "s1", req.TurnID, events.ToolInvocation{Call: chat.ToolCall{ID: "q1", Name: chat.ToolQuestion}}))
	require.Equal(t, AwaitingInput, s.Status("s1"))
	msgID, call, ok := s.PendingQuestion("s1")
	require.True(t, ok)
	require.Equal(t, req.TurnID, msgID)
	require.Equal(t, "q1", call.ID)

	run(s, s.Submit("s1", "never mind"))
	require.Equal(t, []string{"s1"}, sender.cancels)
	require.Equal(t, []string{"help", "never mind"}, sender.texts())
	require.Equal(t, []string{"q1"}, hist.answered)
	require.Equal(t, Sending, s.Status("s1"))
	_, _, ok = s.PendingQuestion("s1")
	require.False(t, ok)
}

func TestAnswerQuestionSendsAnswerAsNextTurn(t *testing.T) {
	s, sender, hist := newTestStore()
	run(s, s.Submit("s1", "help"))
	req := sender.last()
	reply := chat.Message{
		ToolCalls:     []chat.ToolCall{{ID: "q1", Name: chat.ToolQuestion}},
		ContentBlocks: []chat.ContentBlock{chat.ToolBlock("q1")},
	}
	run(s, emit(s, events.EventToolInvoked, "s1", req.TurnID, events.ToolInvocation{Call: reply.ToolCalls[0]}))
	hist.persistTurn(req, reply)
	run(s, emit(s, events.EventTurnComplete, "s1", req.TurnID, nil))
	require.Equal(t, AwaitingInput, s.Status("s1"))

	require.Nil(t, s.AnswerQuestion("s1", "missing", []string{"x"}))
	run(s, s.AnswerQuestion("s1", "q1", []string{"yes", "blue"}))
	require.Equal(t, "yes\nblue", sender.last().Text)
	require.Equal(t, []string{"q1"}, hist.answered)
	require.True(t, s.Committed("s1")[1].Answered["q1"])
}

func TestSkipQuestionReturnsToIdle(t *testing.T) {
	s, sender, hist := newTestStore()
	hist.msgs["s1"] = []chat.Message{
		{ID: "u", Role: chat.RoleUser},
		{ID: "a", Role: chat.RoleAssistant, ToolCalls: []chat.ToolCall{{ID: "q1", Name: chat.ToolQuestion}}},
	}
	run(s, s.Open("s1"))
	require.Equal(t, AwaitingInput, s.Status("s1"))

	run(s, s.SkipQuestion("s1", "q1"))
	require.Equal(t, Idle, s.Status("s1"))
	require.Empty(t, sender.reqs)

	// 持久化层尚未写入时重新拉取，本地标记仍然生效
	run(s, s.Open("s1"))
	require.Equal(t, Idle, s.Status("s1"))
}

func TestApprovePlanContinuesInBuildMode(t *testing.T) {
	s, sender, hist := newTestStore()
	s.SetOptions("s1", chat.SendOptions{Model: "m", Mode: chat.ModePlan})
	run(s, s.Submit("s1", "plan it"))
	req := sender.last()
	reply := chat.Message{ToolCalls: []chat.ToolCall{{ID: "p1", Name: chat.ToolPlanExit, Input: []byte(`{"plan":"1. do"}`)}}}
	run(s, emit(s, events.EventToolInvoked, "s1", req.TurnID, events.ToolInvocation{Call: reply.ToolCalls[0]}))
	require.Equal(t, AwaitingInput, s.Status("s1"))
	hist.persistTurn(req, reply)
	run(s, emit(s, events.EventTurnComplete, "s1", req.TurnID, nil))

	planID, ok := s.PendingPlan("s1")
	require.True(t, ok)
	require.Equal(t, req.TurnID, planID)

	run(s, s.ApprovePlan("s1", planID))
	require.Equal(t, planApprovedPrompt, sender.last().Text)
	require.Equal(t, chat.ModeBuild, sender.last().Options.Mode)
	require.Equal(t, chat.ModePlan, s.Options("s1").Mode)
	require.Equal(t, []string{planID}, hist.approved)

	// 拉取结果还没有 plan_approved 标记
	run(s, s.Open("s1"))
	require.True(t, s.Committed("s1")[1].PlanApproved)
	_, ok = s.PendingPlan("s1")
	require.False(t, ok)
}

func TestApprovePlanElevatedUsesYolo(t *testing.T) {
	s, sender, hist := newTestStore()
	hist.msgs["s1"] = []chat.Message{{ID: "a", Role: chat.RoleAssistant, ToolCalls: []chat.ToolCall{{ID: "p1", Name: chat.ToolPlanExit}}}}
	run(s, s.Open("s1"))
	require.Nil(t, s.ApprovePlanElevated("s1", "nope"))
	run(s, s.ApprovePlanElevated("s1", "a"))
	require.Equal(t, chat.ModeYolo, sender.last().Options.Mode)
}

func TestForgetCancelsInflightTurn(t *testing.T) {
	s, sender, _ := newTestStore()
	run(s, s.Submit("s1", "a"))
	s.Forget("s1")
	require.Equal(t, []string{"s1"}, sender.cancels)
	require.Nil(t, s.Messages("s1"))
	require.Equal(t, Idle, s.Status("s1"))
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "awaiting_input", AwaitingInput.String())
	require.Equal(t, "unknown", Status(42).String())
}
