package render

import (
	"encoding/json"
	"strings"
	"testing"

	"chatline/internal/chat"
	"chatline/internal/timeline"

	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func plain(lines []Line) string {
	return strings.Join(LinesToPlainStrings(lines), "\n")
}

func TestToolItemShowsGlyphAndOutputPreview(t *testing.T) {
	call := chat.ToolCall{ID: "t1", Name: "Read", Input: json.RawMessage(`{"file_path":"a.go"}`)}
	pending := Item(timeline.Item{Kind: timeline.KindTool, Tool: call, Label: "Read a.go"}, Context{Width: 60})
	require.Equal(t, []string{"○ Read a.go"}, LinesToPlainStrings(pending))

	call.Output = strp("1\n2\n3\n4\n5")
	done := LinesToPlainStrings(Item(timeline.Item{Kind: timeline.KindTool, Tool: call, Label: "Read a.go"}, Context{Width: 60}))
	require.Equal(t, "● Read a.go", done[0])
	require.Equal(t, "  ⎿ 1", done[1])
	require.Equal(t, "    … 2 more lines", done[len(done)-1])
}

func TestDegradedToolRendersLabelOnly(t *testing.T) {
	call := chat.ToolCall{ID: "t1", Name: "Bash", Input: json.RawMessage(`{bad`), Output: strp("x")}
	got := LinesToPlainStrings(Item(timeline.Item{Kind: timeline.KindTool, Tool: call, Label: "Bash", Degraded: true}, Context{Width: 40}))
	require.Equal(t, []string{"● Bash"}, got)
}

func TestBashCommandIsShown(t *testing.T) {
	call := chat.ToolCall{ID: "t1", Name: "Bash", Input: json.RawMessage(`{"command":"go test ./... && echo ok"}`)}
	got := plain(Item(timeline.Item{Kind: timeline.KindTool, Tool: call, Label: "Bash go test ./..."}, Context{Width: 60}))
	require.Contains(t, got, "    go test ./... && echo ok")
}

func TestTaskItemListsSubTools(t *testing.T) {
	task := timeline.Item{
		Kind:  timeline.KindTask,
		Tool:  chat.ToolCall{ID: "task", Name: "Task"},
		Label: "Task explore",
		SubTools: []timeline.Item{
			{Kind: timeline.KindTool, Tool: chat.ToolCall{ID: "a", Name: "Grep"}, Label: "Grep foo"},
			{Kind: timeline.KindTool, Tool: chat.ToolCall{ID: "b", Name: "Read", Output: strp("")}, Label: "Read b.go"},
		},
	}
	got := LinesToPlainStrings(Item(task, Context{Width: 60}))
	require.Equal(t, []string{"○ Task explore", "  ├ ○ Grep foo", "  └ ● Read b.go"}, got)
}

func TestNestedTaskRendersGrandchildren(t *testing.T) {
	task := timeline.Item{
		Kind:  timeline.KindTask,
		Tool:  chat.ToolCall{ID: "t1", Name: "Task"},
		Label: "Task outer",
		SubTools: []timeline.Item{
			{Kind: timeline.KindTask, Tool: chat.ToolCall{ID: "t2", Name: "Task"}, Label: "Task inner", SubTools: []timeline.Item{
				{Kind: timeline.KindTool, Tool: chat.ToolCall{ID: "s", Name: "Bash"}, Label: "Bash ls"},
			}},
			{Kind: timeline.KindTool, Tool: chat.ToolCall{ID: "r", Name: "Read"}, Label: "Read a.go"},
		},
	}
	got := LinesToPlainStrings(Item(task, Context{Width: 60}))
	require.Equal(t, []string{
		"○ Task outer",
		"  ├ ○ Task inner",
		"  │   └ ○ Bash ls",
		"  └ ○ Read a.go",
	}, got)
}

func TestStackCollapsedAndExpanded(t *testing.T) {
	stack := timeline.Item{
		Key:  "m:stack",
		Kind: timeline.KindStack,
		Children: []timeline.Item{
			{Kind: timeline.KindReasoning, Text: "hmm"},
			{Kind: timeline.KindTool, Tool: chat.ToolCall{ID: "a", Name: "Grep", Output: strp("")}, Label: "Grep foo"},
		},
	}
	collapsed := LinesToPlainStrings(Item(stack, Context{Width: 60}))
	require.Equal(t, []string{"● ⋯ 2 steps: thinking, Grep"}, collapsed)

	expanded := plain(Item(stack, Context{Width: 60, Expanded: map[string]bool{"m:stack": true}}))
	require.Contains(t, expanded, "│ hmm")
	require.Contains(t, expanded, "● Grep foo")
}

func TestReasoningIsTruncated(t *testing.T) {
	text := strings.Repeat("line\n", 10)
	got := LinesToPlainStrings(Item(timeline.Item{Kind: timeline.KindReasoning, Text: text}, Context{Width: 40}))
	require.Len(t, got, maxReasoningLines+1)
	require.Equal(t, "│ … 4 more lines", got[len(got)-1])
}

func TestQuestionItemStates(t *testing.T) {
	q := timeline.Item{
		Kind: timeline.KindQuestion,
		Tool: chat.ToolCall{ID: "q1", Name: chat.ToolQuestion},
		Questions: []timeline.Question{{
			Header:  "Pick",
			Prompt:  "Which db?",
			Options: []timeline.Option{{Label: "sqlite"}, {Label: "files", Description: "jsonl"}},
		}},
	}
	got := plain(Item(q, Context{Width: 60, Interactive: true}))
	require.Contains(t, got, "  1. sqlite")
	require.Contains(t, got, "  2. files - jsonl")
	require.Contains(t, got, "type a number")

	answered := plain(Item(q, Context{Width: 60, Answered: map[string]bool{"q1": true}}))
	require.Contains(t, answered, "✓ answered")
}

func TestPlanItemStates(t *testing.T) {
	p := timeline.Item{Kind: timeline.KindPlan, Tool: chat.ToolCall{ID: "p", Name: chat.ToolPlanExit}, Plan: "1. do it"}
	md := NewMarkdown("plain")
	require.Contains(t, plain(Item(p, Context{Width: 60, Markdown: md, Interactive: true})), "[a] approve")
	require.Contains(t, plain(Item(p, Context{Width: 60, Markdown: md, PlanApproved: true})), "✓ plan approved")
}

func TestMessagePrefixes(t *testing.T) {
	user := chat.Message{Role: chat.RoleUser, Content: "hello"}
	require.Equal(t, []string{"› hello"}, LinesToPlainStrings(Message(user, nil, Context{Width: 40})))

	live := chat.Message{Role: chat.RoleAssistant}
	require.Equal(t, []string{"• …"}, LinesToPlainStrings(Live(live, nil, Context{Width: 40})))

	cancelled := chat.Message{Role: chat.RoleAssistant, Cancelled: true}
	items := []timeline.Item{{Kind: timeline.KindText, Text: "partial"}}
	got := LinesToPlainStrings(Message(cancelled, items, Context{Width: 40, Markdown: NewMarkdown("plain")}))
	require.Equal(t, []string{"• partial", "  (cancelled)"}, got)
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", Truncate("abc", 5))
	require.Equal(t, "ab…", Truncate("abcdef", 3))
	require.Equal(t, "", Truncate("abc", 0))
	require.Equal(t, "界…", Truncate("界界界", 3))
}
