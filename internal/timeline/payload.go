package timeline

import (
	"encoding/json"
	"strings"

	"chatline/internal/chat"

	"github.com/tidwall/gjson"
)

const maxLabelRunes = 80

// 常见工具的摘要字段，按优先级排列。
var labelFields = map[string][]string{
	"Bash":      {"description", "command"},
	"Read":      {"file_path"},
	"Write":     {"file_path"},
	"Edit":      {"file_path"},
	"MultiEdit": {"file_path"},
	"Grep":      {"pattern"},
	"Glob":      {"pattern"},
	"WebFetch":  {"url"},
	"WebSearch": {"query"},
	"Task":      {"description", "subagent_type"},
	"Agent":     {"description"},
}

var fallbackFields = []string{"description", "file_path", "path", "command", "query", "pattern", "url"}

// ToolLabel 生成工具的一行摘要。payload 不是合法 JSON 时返回工具名并标记 degraded，
// 调用方据此以"仅标签"形式渲染，不会中断整个构建过程。
func ToolLabel(call chat.ToolCall) (string, bool) {
	name := strings.TrimSpace(call.Name)
	if name == "" {
		name = "tool"
	}
	input := trimmed(call.Input)
	if len(input) == 0 {
		return name, false
	}
	if !gjson.ValidBytes(input) {
		return name, true
	}
	fields, ok := labelFields[name]
	if !ok {
		fields = fallbackFields
	}
	for _, field := range fields {
		if v := gjson.GetBytes(input, field); v.Exists() && strings.TrimSpace(v.String()) != "" {
			return name + " " + truncateRunes(firstLine(v.String()), maxLabelRunes), false
		}
	}
	return name, false
}

// ParseQuestions 解析 AskUserQuestion 的 questions 数组。
func ParseQuestions(input json.RawMessage) ([]Question, bool) {
	input = trimmed(input)
	if len(input) == 0 || !gjson.ValidBytes(input) {
		return nil, false
	}
	arr := gjson.GetBytes(input, "questions")
	if !arr.IsArray() {
		return nil, false
	}
	var out []Question
	for _, q := range arr.Array() {
		prompt := strings.TrimSpace(q.Get("question").String())
		if prompt == "" {
			continue
		}
		question := Question{
			Header:      q.Get("header").String(),
			Prompt:      prompt,
			MultiSelect: q.Get("multiSelect").Bool(),
		}
		for _, opt := range q.Get("options").Array() {
			label := opt.Get("label").String()
			if opt.Type == gjson.String {
				label = opt.String()
			}
			if strings.TrimSpace(label) == "" {
				continue
			}
			question.Options = append(question.Options, Option{Label: label, Description: opt.Get("description").String()})
		}
		out = append(out, question)
	}
	return out, len(out) > 0
}

// PlanText 提取 ExitPlanMode 载荷中的计划正文。
func PlanText(input json.RawMessage) (string, bool) {
	input = trimmed(input)
	if len(input) == 0 || !gjson.ValidBytes(input) {
		return "", false
	}
	plan := gjson.GetBytes(input, "plan")
	if !plan.Exists() || strings.TrimSpace(plan.String()) == "" {
		return "", false
	}
	return plan.String(), true
}

func trimmed(raw json.RawMessage) []byte {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil
	}
	return []byte(s)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx]) + " …"
	}
	return s
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
