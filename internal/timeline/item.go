// Package timeline turns a message's content blocks and tool calls into the
// ordered, render-ready item sequence shown in the transcript.
package timeline

import "chatline/internal/chat"

// Kind 标识时间线条目的类型。
type Kind string

const (
	KindText      Kind = "text"
	KindReasoning Kind = "reasoning"
	KindTool      Kind = "tool"
	KindTask      Kind = "task"
	KindStack     Kind = "stack"
	KindQuestion  Kind = "question"
	KindPlan      Kind = "plan"
)

// Item 是纯渲染用的派生值，每次渲染重新计算，不落盘。
type Item struct {
	// Key 在同一输入下保持稳定，供渲染层做身份识别。
	Key  string
	Kind Kind
	// Text 为 text/reasoning 内容，question 条目则为引导语（intro text）。
	Text string
	Tool chat.ToolCall
	// Label 是工具的一行摘要；payload 损坏时只剩工具名。
	Label    string
	Degraded bool

	SubTools  []Item
	Children  []Item
	Questions []Question
	Plan      string
}

// Stackable reports whether the item may be folded into a stacked group.
func (it Item) Stackable() bool {
	return it.Kind == KindReasoning || it.Kind == KindTool
}

// Question 是 AskUserQuestion 载荷中的一道题。
type Question struct {
	Header      string
	Prompt      string
	Options     []Option
	MultiSelect bool
}

type Option struct {
	Label       string
	Description string
}
