package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendContentMergesAdjacentBlocks(t *testing.T) {
	var m Message
	m.AppendContent(BlockReasoning, "let me ")
	m.AppendContent(BlockReasoning, "think")
	m.AppendContent(BlockText, "Hello ")
	m.AppendContent(BlockText, "world")
	m.AppendContent(BlockText, "")
	m.AppendContent(BlockToolUse, "ignored")

	require.Equal(t, []ContentBlock{ReasoningBlock("let me think"), TextBlock("Hello world")}, m.ContentBlocks)
	require.Equal(t, "Hello world", m.Content)
}

func TestToolCallsAreAddedAndCompletedOnce(t *testing.T) {
	var m Message
	require.True(t, m.AppendTool(ToolCall{ID: "t1", Name: "Bash", Input: json.RawMessage(`{"command":"ls"}`)}))
	require.False(t, m.AppendTool(ToolCall{ID: "t1", Name: "Bash"}))
	require.False(t, m.AppendTool(ToolCall{Name: "NoID"}))
	m.AppendContent(BlockText, "after")

	require.Equal(t, []ContentBlock{ToolBlock("t1"), TextBlock("after")}, m.ContentBlocks)

	require.True(t, m.CompleteTool("t1", "first"))
	require.True(t, m.CompleteTool("t1", "second"))
	require.False(t, m.CompleteTool("missing", "x"))
	call, ok := m.ToolCall("t1")
	require.True(t, ok)
	require.Equal(t, "first", *call.Output)
	require.Equal(t, 1, m.CompletedToolCount())
}

func TestPendingQuestionAndPlan(t *testing.T) {
	m := Message{Role: RoleAssistant, ToolCalls: []ToolCall{
		{ID: "q1", Name: "AskUserQuestion"},
		{ID: "p1", Name: "ExitPlanMode"},
	}}
	call, ok := m.PendingQuestion()
	require.True(t, ok)
	require.Equal(t, "q1", call.ID)
	require.True(t, m.PendingPlan())

	m.Answered = map[string]bool{"q1": true}
	m.PlanApproved = true
	_, ok = m.PendingQuestion()
	require.False(t, ok)
	require.False(t, m.PendingPlan())

	m = Message{Role: RoleAssistant, Cancelled: true, ToolCalls: []ToolCall{{ID: "q1", Name: "AskUserQuestion"}}}
	_, ok = m.PendingQuestion()
	require.False(t, ok)
}

func TestCloneDoesNotShareState(t *testing.T) {
	out := "done"
	m := Message{
		ContentBlocks: []ContentBlock{TextBlock("a")},
		ToolCalls:     []ToolCall{{ID: "t1", Input: json.RawMessage(`{}`), Output: &out}},
		Answered:      map[string]bool{"q": true},
	}
	c := m.Clone()
	c.ContentBlocks[0].Text = "changed"
	*c.ToolCalls[0].Output = "changed"
	c.Answered["q"] = false

	require.Equal(t, "a", m.ContentBlocks[0].Text)
	require.Equal(t, "done", *m.ToolCalls[0].Output)
	require.True(t, m.Answered["q"])
}

func TestPlainTextFallsBackToContent(t *testing.T) {
	require.Equal(t, "legacy", Message{Content: "legacy"}.PlainText())
	m := Message{ContentBlocks: []ContentBlock{TextBlock("one"), ReasoningBlock("hidden"), TextBlock("  "), TextBlock("two")}}
	require.Equal(t, "one\n\ntwo", m.PlainText())
}

func TestParseExecutionMode(t *testing.T) {
	cases := map[string]ExecutionMode{
		"plan":           ModePlan,
		"read-only-plan": ModePlan,
		" Build ":        ModeBuild,
		"auto-apply":     ModeBuild,
		"unrestricted":   ModeYolo,
	}
	for raw, want := range cases {
		got, ok := ParseExecutionMode(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, got, raw)
	}
	_, ok := ParseExecutionMode("turbo")
	require.False(t, ok)
}

func TestToolClassification(t *testing.T) {
	require.True(t, IsTaskTool("Task"))
	require.True(t, IsTaskTool("Agent"))
	require.True(t, IsQuestionTool("AskUserQuestion"))
	require.True(t, IsPlanExitTool("ExitPlanMode"))
	require.True(t, IsTodoTool("TodoWrite"))
	require.False(t, IsTaskTool("Bash"))
}
