package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatline/internal/chat"
	"chatline/internal/config"
	"chatline/internal/events"
	"chatline/internal/history"

	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	stream func(ctx context.Context, turn Turn, sink Sink) error
}

func (scriptedProvider) Name() string { return "scripted" }

func (p scriptedProvider) Stream(ctx context.Context, turn Turn, sink Sink) error {
	return p.stream(ctx, turn, sink)
}

func newRunnerFixture(t *testing.T, p Provider) (*Runner, *events.Queue, <-chan events.Event, history.Store, chat.Session) {
	t.Helper()
	store := history.NewFileStore(t.TempDir())
	sess, err := store.CreateSession(context.Background(), "test")
	require.NoError(t, err)
	q := events.NewQueue(256)
	sub := q.Subscribe()
	t.Cleanup(q.Close)
	return NewRunner(p, q, store), q, sub, store, sess
}

func drainEvents(sub <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-sub:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestRunnerPersistsBeforeTurnComplete(t *testing.T) {
	provider := scriptedProvider{stream: func(_ context.Context, turn Turn, sink Sink) error {
		require.Len(t, turn.History, 0)
		sink.Append(chat.BlockReasoning, "hmm")
		sink.Append(chat.BlockText, "he")
		sink.Append(chat.BlockText, "llo")
		sink.Invoke(chat.ToolCall{ID: "t1", Name: "Read", Input: []byte(`{"file_path":"a.go"}`)})
		sink.Invoke(chat.ToolCall{ID: "t1", Name: "Read"})
		sink.Complete("t1", "contents", false)
		sink.Complete("missing", "x", false)
		return nil
	}}
	runner, _, sub, store, sess := newRunnerFixture(t, provider)

	req := SendRequest{SessionID: sess.ID, TurnID: "turn-1", MessageID: "user-1", Text: "hi"}
	require.NoError(t, runner.Send(context.Background(), req))
	require.False(t, runner.Active(sess.ID))

	evs := drainEvents(sub)
	var types []events.Type
	for _, ev := range evs {
		require.Equal(t, sess.ID, ev.SessionID)
		require.Equal(t, "turn-1", ev.TurnID)
		types = append(types, ev.Type)
	}
	require.Equal(t, []events.Type{
		events.EventContentAppend,
		events.EventContentAppend,
		events.EventContentAppend,
		events.EventToolInvoked,
		events.EventToolCompleted,
		events.EventTurnComplete,
	}, types)

	msgs, err := store.Fetch(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "user-1", msgs[0].ID)
	require.Equal(t, "turn-1", msgs[1].ID)
	require.Equal(t, chat.RoleAssistant, msgs[1].Role)
	require.Equal(t, []chat.ContentBlock{
		chat.ReasoningBlock("hmm"),
		chat.TextBlock("hello"),
		chat.ToolBlock("t1"),
	}, msgs[1].ContentBlocks)
	require.Equal(t, "contents", *msgs[1].ToolCalls[0].Output)
}

func TestRunnerCancel(t *testing.T) {
	started := make(chan struct{})
	provider := scriptedProvider{stream: func(ctx context.Context, _ Turn, sink Sink) error {
		sink.Append(chat.BlockText, "partial")
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}
	runner, _, sub, store, sess := newRunnerFixture(t, provider)

	done := make(chan error, 1)
	go func() {
		done <- runner.Send(context.Background(), SendRequest{SessionID: sess.ID, TurnID: "t", MessageID: "u", Text: "go"})
	}()
	<-started
	require.True(t, runner.Active(sess.ID))
	runner.Cancel(sess.ID)

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrTurnCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after cancel")
	}

	evs := drainEvents(sub)
	require.Equal(t, events.EventTurnCancelled, evs[len(evs)-1].Type)

	msgs, err := store.Fetch(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.True(t, msgs[1].Cancelled)
}

func TestRunnerMaxConcurrentQueuesOtherSessions(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 2)
	runner, _, sub, store, first := newRunnerFixture(t, scriptedProvider{stream: func(ctx context.Context, turn Turn, sink Sink) error {
		started <- turn.SessionID
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		sink.Append(chat.BlockText, "ok")
		return nil
	}})
	second, err := store.CreateSession(context.Background(), "other")
	require.NoError(t, err)
	runner.SetMaxConcurrent(1)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- runner.Send(context.Background(), SendRequest{SessionID: first.ID, TurnID: "a1", Text: "one"})
	}()
	require.Equal(t, first.ID, <-started)

	secondDone := make(chan error, 1)
	go func() {
		secondDone <- runner.Send(context.Background(), SendRequest{SessionID: second.ID, TurnID: "b1", Text: "two"})
	}()
	require.Eventually(t, func() bool { return runner.Active(second.ID) }, time.Second, 5*time.Millisecond)
	select {
	case id := <-started:
		t.Fatalf("session %s started while the only slot was taken", id)
	case <-time.After(20 * time.Millisecond):
	}

	// 等待名额期间取消
	runner.Cancel(second.ID)
	require.ErrorIs(t, <-secondDone, ErrTurnCancelled)

	close(release)
	require.NoError(t, <-firstDone)

	var cancelled bool
	for _, ev := range drainEvents(sub) {
		if ev.SessionID == second.ID && ev.Type == events.EventTurnCancelled {
			cancelled = true
		}
	}
	require.True(t, cancelled)
}

func TestRunnerProviderError(t *testing.T) {
	provider := scriptedProvider{stream: func(_ context.Context, _ Turn, sink Sink) error {
		sink.Append(chat.BlockText, "half")
		return errors.New("upstream 529")
	}}
	runner, _, sub, _, sess := newRunnerFixture(t, provider)

	err := runner.Send(context.Background(), SendRequest{SessionID: sess.ID, TurnID: "t", MessageID: "u", Text: "go"})
	require.EqualError(t, err, "upstream 529")

	evs := drainEvents(sub)
	last := evs[len(evs)-1]
	require.Equal(t, events.EventTurnError, last.Type)
	require.Equal(t, events.TurnFailure{Error: "upstream 529"}, last.Payload)
}

func TestRunnerUnknownSessionFails(t *testing.T) {
	runner, _, sub, _, _ := newRunnerFixture(t, EchoProvider{})
	err := runner.Send(context.Background(), SendRequest{SessionID: "nope", TurnID: "t", Text: "x"})
	require.ErrorIs(t, err, history.ErrSessionNotFound)
	evs := drainEvents(sub)
	require.Len(t, evs, 1)
	require.Equal(t, events.EventTurnError, evs[0].Type)
}

func TestEchoProviderPassesHistory(t *testing.T) {
	var seen Turn
	runner, _, _, store, sess := newRunnerFixture(t, scriptedProvider{stream: func(ctx context.Context, turn Turn, sink Sink) error {
		seen = turn
		return EchoProvider{Prefix: "> "}.Stream(ctx, turn, sink)
	}})
	ctx := context.Background()
	require.NoError(t, runner.Send(ctx, SendRequest{SessionID: sess.ID, TurnID: "t1", MessageID: "u1", Text: "one"}))
	require.NoError(t, runner.Send(ctx, SendRequest{SessionID: sess.ID, TurnID: "t2", MessageID: "u2", Text: "two words"}))

	require.Len(t, seen.History, 2)
	msgs, err := store.Fetch(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	require.Equal(t, "> two words", msgs[3].PlainText())

	tr := transcript(seen.History, seen.Text)
	require.Len(t, tr, 3)
	require.Equal(t, chat.RoleUser, tr[2].Role)
}

func TestTranscriptMergesSameRole(t *testing.T) {
	prior := []chat.Message{
		{Role: chat.RoleUser, Content: "a"},
		{Role: chat.RoleUser, Content: "b"},
		{Role: chat.RoleAssistant, Content: "  "},
	}
	out := transcript(prior, "c")
	require.Len(t, out, 1)
	require.Equal(t, "a\n\nb\n\nc", out[0].Content)
}

func TestOptionMapping(t *testing.T) {
	require.Equal(t, int64(0), ThinkingBudget(chat.ThinkingOff))
	require.Equal(t, int64(31999), ThinkingBudget(chat.ThinkingUltra))
	require.Equal(t, "low", ReasoningEffort(chat.ThinkingOff))
	require.Equal(t, "xhigh", ReasoningEffort(chat.ThinkingUltra))
	require.Equal(t, chat.ThinkingThink, ParseThinkingLevel("bogus"))
	require.Equal(t, chat.ThinkingMega, ParseThinkingLevel(" MegaThink "))

	opts := DefaultOptions(config.Backend{Provider: "anthropic", Model: "m", Mode: "read-only-plan", Thinking: "off"})
	require.Equal(t, chat.ModePlan, opts.Mode)
	require.Equal(t, chat.ThinkingOff, opts.Thinking)

	opts = DefaultOptions(config.Backend{Mode: "weird"})
	require.Equal(t, chat.ModeBuild, opts.Mode)
}

func TestNewProviderFallsBackToEcho(t *testing.T) {
	p, note, err := NewProvider(config.Backend{Provider: "anthropic"})
	require.NoError(t, err)
	require.Equal(t, "echo", p.Name())
	require.NotEmpty(t, note)

	p, _, err = NewProvider(config.Backend{Provider: "openai", OpenAIToken: "k"})
	require.NoError(t, err)
	require.Equal(t, "openai", p.Name())

	_, _, err = NewProvider(config.Backend{Provider: "gemini"})
	require.Error(t, err)
}

func TestNormalizeBaseURLs(t *testing.T) {
	require.Equal(t, "https://api.example.com", normalizeAnthropicBaseURL(" https://api.example.com/v1/ "))
	require.Equal(t, "https://gw.example.com/v1", normalizeOpenAIBaseURL("https://gw.example.com/v1/chat/completions"))
	require.Equal(t, "https://gw.example.com/v1", normalizeOpenAIBaseURL("https://gw.example.com"))
	require.Equal(t, "", normalizeOpenAIBaseURL("  "))
}
