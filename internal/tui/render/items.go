package render

import (
	"fmt"
	"strings"

	"chatline/internal/chat"
	"chatline/internal/timeline"

	"github.com/tidwall/gjson"
)

const (
	maxReasoningLines = 6
	maxOutputLines    = 3
	maxCommandLines   = 4
)

// Context 携带渲染条目所需的消息级状态。
type Context struct {
	Width    int
	Markdown *Markdown
	// Expanded 记录用户展开过的 stack 条目（按 Key）。
	Expanded map[string]bool

	Answered     map[string]bool
	PlanApproved bool
	Cancelled    bool
	// Interactive 为 true 时给待回答的问题/计划附加按键提示。
	Interactive bool
}

// ContextFor 以消息自身的状态填充 Context。
func ContextFor(msg chat.Message, width int, md *Markdown) Context {
	return Context{
		Width:        width,
		Markdown:     md,
		Answered:     msg.Answered,
		PlanApproved: msg.PlanApproved,
		Cancelled:    msg.Cancelled,
	}
}

// Items 依次渲染时间线条目，条目之间不留空行。
func Items(items []timeline.Item, ctx Context) []Line {
	out := []Line{}
	for _, it := range items {
		out = append(out, Item(it, ctx)...)
	}
	return out
}

// Item renders a single timeline item.
func Item(it timeline.Item, ctx Context) []Line {
	switch it.Kind {
	case timeline.KindText:
		return textItem(it.Text, ctx)
	case timeline.KindReasoning:
		return reasoningItem(it.Text, ctx.Width)
	case timeline.KindTool:
		return toolItem(it, ctx.Width)
	case timeline.KindTask:
		return taskItem(it, ctx.Width)
	case timeline.KindStack:
		return stackItem(it, ctx)
	case timeline.KindQuestion:
		return questionItem(it, ctx)
	case timeline.KindPlan:
		return planItem(it, ctx)
	default:
		return nil
	}
}

func textItem(text string, ctx Context) []Line {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if ctx.Markdown == nil {
		return wrapStyled(text, ctx.Width, textStyle)
	}
	return ctx.Markdown.Render(text, ctx.Width)
}

func reasoningItem(text string, width int) []Line {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	raw := wrapText(text, width-2)
	more := 0
	if len(raw) > maxReasoningLines {
		more = len(raw) - maxReasoningLines
		raw = raw[:maxReasoningLines]
	}
	lines := make([]Line, 0, len(raw)+1)
	for _, l := range raw {
		lines = append(lines, Plain(l, reasoningStyle))
	}
	if more > 0 {
		lines = append(lines, Plain(moreLines(more), dimStyle))
	}
	bar := Span{Text: "│ ", Style: dimStyle}
	return Prefix(lines, bar, bar)
}

func glyph(call chat.ToolCall) Span {
	if call.Completed() {
		return Span{Text: "● ", Style: doneGlyph}
	}
	return Span{Text: "○ ", Style: pendingGlyph}
}

func toolHeader(it timeline.Item, width int) Line {
	label := it.Label
	if label == "" {
		label = it.Tool.Name
	}
	if it.Degraded {
		return Line{Spans: []Span{glyph(it.Tool), {Text: Truncate(label, width-2), Style: degradedStyle}}}
	}
	name, rest, _ := strings.Cut(label, " ")
	spans := []Span{glyph(it.Tool), {Text: name, Style: toolNameStyle}}
	if rest != "" {
		spans = append(spans, Span{Text: " " + Truncate(rest, width-3-len([]rune(name)))})
	}
	return Line{Spans: spans}
}

func toolItem(it timeline.Item, width int) []Line {
	lines := []Line{toolHeader(it, width)}
	if it.Degraded {
		return lines
	}
	if it.Tool.Name == "Bash" {
		if cmd := gjson.GetBytes(it.Tool.Input, "command").String(); cmd != "" {
			lines = append(lines, Indent(HighlightCommand(cmd, maxCommandLines), 4)...)
		}
	}
	return append(lines, outputPreview(it.Tool, width)...)
}

func outputPreview(call chat.ToolCall, width int) []Line {
	if call.Output == nil {
		return nil
	}
	text := strings.TrimRight(*call.Output, "\n")
	if strings.TrimSpace(text) == "" {
		return []Line{{Spans: []Span{{Text: "  ⎿ ", Style: dimStyle}, {Text: "(no output)", Style: dimStyle}}}}
	}
	raw := strings.Split(text, "\n")
	more := 0
	if len(raw) > maxOutputLines {
		more = len(raw) - maxOutputLines
		raw = raw[:maxOutputLines]
	}
	lines := make([]Line, 0, len(raw)+1)
	for _, l := range raw {
		lines = append(lines, Plain(Truncate(l, width-4), dimStyle))
	}
	if more > 0 {
		lines = append(lines, Plain(moreLines(more), dimStyle))
	}
	return Prefix(lines, Span{Text: "  ⎿ ", Style: dimStyle}, Span{Text: "    "})
}

func taskItem(it timeline.Item, width int) []Line {
	lines := []Line{toolHeader(it, width)}
	for i, sub := range it.SubTools {
		branch, rail := "├ ", "│ "
		if i == len(it.SubTools)-1 {
			branch, rail = "└ ", "  "
		}
		subLines := []Line{toolHeader(sub, width-4)}
		if sub.Kind == timeline.KindTask {
			subLines = taskItem(sub, width-4)
		}
		lines = append(lines, Prefix(subLines, Span{Text: "  " + branch, Style: dimStyle}, Span{Text: "  " + rail, Style: dimStyle})...)
	}
	if it.Tool.Completed() && len(it.SubTools) == 0 {
		lines = append(lines, outputPreview(it.Tool, width)...)
	}
	return lines
}

func stackItem(it timeline.Item, ctx Context) []Line {
	if ctx.Expanded[it.Key] {
		out := []Line{Plain(fmt.Sprintf("⋯ %d steps", len(it.Children)), dimStyle)}
		for _, child := range it.Children {
			out = append(out, Item(child, ctx)...)
		}
		return out
	}
	names := make([]string, 0, len(it.Children))
	done := 0
	for _, child := range it.Children {
		switch child.Kind {
		case timeline.KindReasoning:
			names = append(names, "thinking")
			done++
		default:
			names = append(names, child.Tool.Name)
			if child.Tool.Completed() {
				done++
			}
		}
	}
	g := Span{Text: "● ", Style: doneGlyph}
	if done < len(it.Children) {
		g = Span{Text: "○ ", Style: pendingGlyph}
	}
	summary := fmt.Sprintf("⋯ %d steps: %s", len(it.Children), strings.Join(names, ", "))
	return []Line{{Spans: []Span{g, {Text: Truncate(summary, ctx.Width-2), Style: dimStyle}}}}
}

func questionItem(it timeline.Item, ctx Context) []Line {
	out := []Line{}
	if strings.TrimSpace(it.Text) != "" {
		out = append(out, textItem(it.Text, ctx)...)
	}
	for _, q := range it.Questions {
		header := q.Header
		if header == "" {
			header = "Question"
		}
		out = append(out, Plain(header, headerStyle))
		out = append(out, wrapStyled(q.Prompt, ctx.Width, textStyle)...)
		for i, opt := range q.Options {
			label := fmt.Sprintf("  %d. %s", i+1, opt.Label)
			line := Line{Spans: []Span{{Text: label, Style: selectedStyle}}}
			if opt.Description != "" {
				line.Spans = append(line.Spans, Span{Text: " - " + opt.Description, Style: hintStyle})
			}
			out = append(out, line)
		}
	}
	switch {
	case ctx.Answered[it.Tool.ID] || it.Tool.Completed():
		out = append(out, Plain("✓ answered", doneGlyph))
	case ctx.Cancelled:
		out = append(out, Plain("(cancelled)", dimStyle))
	case ctx.Interactive:
		out = append(out, Plain("type a number or an answer, then enter", hintStyle))
	}
	return out
}

func planItem(it timeline.Item, ctx Context) []Line {
	out := []Line{Plain("Plan", headerStyle)}
	plan := it.Plan
	if strings.TrimSpace(plan) == "" {
		plan = "(empty plan)"
	}
	out = append(out, textItem(plan, ctx)...)
	switch {
	case ctx.PlanApproved:
		out = append(out, Plain("✓ plan approved", doneGlyph))
	case ctx.Cancelled:
		out = append(out, Plain("(cancelled)", dimStyle))
	case ctx.Interactive:
		out = append(out, Plain("[a] approve • [A] approve (unrestricted)", hintStyle))
	}
	return out
}
