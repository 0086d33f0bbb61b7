package backend

import (
	"encoding/json"
	"errors"
	"strings"

	"chatline/internal/chat"

	"github.com/tidwall/gjson"
)

// ErrMalformedRecord 表示一行不是合法的 JSON 对象。
var ErrMalformedRecord = errors.New("malformed ndjson record")

// Outcome 是一行记录对回合状态的影响。
type Outcome int

const (
	Continue Outcome = iota
	Done
	Failed
	Cancelled
)

// Decoder 把 CLI 后端写出的 NDJSON 记录翻译成 Sink 调用。
// 支持 stream-json 风格（assistant/user/result）和扁平事件风格（chunk/thinking/tool_use/tool_result/done）。
type Decoder struct {
	sawText bool
}

// Decode 处理一行。Failed 时第二个返回值是错误描述。
func (d *Decoder) Decode(line string, sink Sink) (Outcome, string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Continue, "", nil
	}
	if !gjson.Valid(line) {
		return Continue, "", ErrMalformedRecord
	}
	rec := gjson.Parse(line)
	if !rec.IsObject() {
		return Continue, "", ErrMalformedRecord
	}

	switch rec.Get("type").String() {
	case "assistant":
		parent := rec.Get("parent_tool_use_id").String()
		rec.Get("message.content").ForEach(func(_, block gjson.Result) bool {
			d.assistantBlock(block, parent, sink)
			return true
		})
	case "user":
		rec.Get("message.content").ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() == "tool_result" {
				sink.Complete(block.Get("tool_use_id").String(), resultText(block.Get("content")), block.Get("is_error").Bool())
			}
			return true
		})
	case "message":
		if rec.Get("role").String() == "user" {
			return Continue, "", nil
		}
		d.text(rec.Get("content").String(), sink)
	case "chunk":
		d.text(rec.Get("content").String(), sink)
	case "thinking":
		sink.Append(chat.BlockReasoning, firstString(rec, "content", "thinking"))
	case "tool_use", "function_call":
		sink.Invoke(toolCallFrom(rec, rec.Get("parent_tool_use_id").String()))
	case "tool_result", "function_response":
		id := firstString(rec, "tool_use_id", "call_id")
		out := rec.Get("output")
		if !out.Exists() {
			out = rec.Get("response")
		}
		sink.Complete(id, resultText(out), rec.Get("is_error").Bool())
	case "result":
		if rec.Get("is_error").Bool() || strings.HasPrefix(rec.Get("subtype").String(), "error") {
			msg := firstString(rec, "result", "error")
			if msg == "" {
				msg = rec.Get("subtype").String()
			}
			return Failed, msg, nil
		}
		if !d.sawText {
			d.text(rec.Get("result").String(), sink)
		}
		return Done, "", nil
	case "done":
		if s := rec.Get("success"); s.Exists() && !s.Bool() {
			return Failed, firstString(rec, "error", "message"), nil
		}
		return Done, "", nil
	case "error":
		msg := firstString(rec, "error", "message", "error.message")
		if msg == "" {
			msg = "backend reported an error"
		}
		return Failed, msg, nil
	case "cancelled":
		return Cancelled, "", nil
	}
	return Continue, "", nil
}

func (d *Decoder) assistantBlock(block gjson.Result, parent string, sink Sink) {
	switch block.Get("type").String() {
	case "text":
		d.text(block.Get("text").String(), sink)
	case "thinking":
		sink.Append(chat.BlockReasoning, block.Get("thinking").String())
	case "tool_use", "function_call":
		sink.Invoke(toolCallFrom(block, parent))
	}
}

func (d *Decoder) text(s string, sink Sink) {
	if s == "" {
		return
	}
	d.sawText = true
	sink.Append(chat.BlockText, s)
}

func toolCallFrom(rec gjson.Result, parent string) chat.ToolCall {
	if p := rec.Get("parent_tool_use_id").String(); p != "" {
		parent = p
	}
	input := rec.Get("input")
	if !input.Exists() {
		input = rec.Get("args")
	}
	if !input.Exists() {
		input = rec.Get("arguments")
	}
	raw := json.RawMessage("{}")
	switch {
	case input.Type == gjson.String && gjson.Valid(input.String()):
		// OpenAI 风格把参数编码成字符串
		raw = json.RawMessage(input.String())
	case input.Exists():
		raw = json.RawMessage(input.Raw)
	}
	return chat.ToolCall{
		ID:              firstString(rec, "id", "call_id"),
		Name:            rec.Get("name").String(),
		Input:           raw,
		ParentToolUseID: parent,
	}
}

// resultText flattens a tool result that is either a string or a list of text blocks.
func resultText(v gjson.Result) string {
	if !v.IsArray() {
		if v.IsObject() {
			return v.Raw
		}
		return v.String()
	}
	var parts []string
	v.ForEach(func(_, item gjson.Result) bool {
		if t := item.Get("text"); t.Exists() {
			parts = append(parts, t.String())
		} else if item.Type == gjson.String {
			parts = append(parts, item.String())
		}
		return true
	})
	return strings.Join(parts, "\n")
}

func firstString(rec gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := rec.Get(p); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
