package backend

import (
	"strings"

	"chatline/internal/chat"
)

// ThinkingBudget 把思考级别映射为 Anthropic 的 thinking budget tokens；0 表示关闭。
func ThinkingBudget(level chat.ThinkingLevel) int64 {
	switch level {
	case chat.ThinkingThink:
		return 4000
	case chat.ThinkingMega:
		return 10000
	case chat.ThinkingUltra:
		return 31999
	default:
		return 0
	}
}

// ReasoningEffort 把思考级别映射为 OpenAI reasoning effort。
func ReasoningEffort(level chat.ThinkingLevel) string {
	switch level {
	case chat.ThinkingOff:
		return "low"
	case chat.ThinkingMega:
		return "high"
	case chat.ThinkingUltra:
		return "xhigh"
	default:
		return "medium"
	}
}

// ParseThinkingLevel accepts the level names case-insensitively; unknown values map to think.
func ParseThinkingLevel(raw string) chat.ThinkingLevel {
	switch chat.ThinkingLevel(strings.ToLower(strings.TrimSpace(raw))) {
	case chat.ThinkingOff:
		return chat.ThinkingOff
	case chat.ThinkingMega:
		return chat.ThinkingMega
	case chat.ThinkingUltra:
		return chat.ThinkingUltra
	default:
		return chat.ThinkingThink
	}
}

// systemPrompt 组合执行模式提示与项目说明。
func systemPrompt(turn Turn) string {
	base := SystemPrompt(turn.Options.Mode)
	if turn.Instructions == "" {
		return base
	}
	return base + "\n\n" + turn.Instructions
}

// SystemPrompt 根据执行模式给出系统提示。
func SystemPrompt(mode chat.ExecutionMode) string {
	base := "You are a coding assistant working inside a terminal chat client."
	switch mode {
	case chat.ModePlan:
		return base + " You are in plan mode: investigate and propose a plan, do not modify anything until the plan is approved."
	case chat.ModeYolo:
		return base + " You may act without asking for confirmation."
	default:
		return base + " Apply changes directly when the request is clear."
	}
}
