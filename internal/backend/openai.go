package backend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"chatline/internal/chat"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIProvider 使用 Chat Completions streaming，兼容各类 OpenAI 协议网关。
type OpenAIProvider struct {
	api   *openai.Client
	model string
}

func NewOpenAI(opts OpenAIOptions) (*OpenAIProvider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("missing OPENAI_API_KEY")
	}
	cfg := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if base := normalizeOpenAIBaseURL(opts.BaseURL); base != "" {
		cfg = append(cfg, option.WithBaseURL(strings.TrimRight(base, "/")))
	}
	client := openai.NewClient(cfg...)
	return &OpenAIProvider{api: &client, model: strings.TrimSpace(opts.Model)}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Stream(ctx context.Context, turn Turn, sink Sink) error {
	model := strings.TrimSpace(turn.Options.Model)
	if model == "" {
		model = p.model
	}
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(systemPrompt(turn))}
	for _, m := range transcript(turn.History, turn.Text) {
		if m.Role == chat.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if turn.Options.Thinking != "" && turn.Options.Thinking != chat.ThinkingOff {
		params.ReasoningEffort = shared.ReasoningEffort(ReasoningEffort(turn.Options.Thinking))
	}

	stream := p.api.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()
	collector := newToolCallCollector()
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				sink.Append(chat.BlockText, choice.Delta.Content)
			}
			for _, call := range choice.Delta.ToolCalls {
				collector.Add(call.Index, call.ID, call.Function.Name, call.Function.Arguments)
			}
			if choice.FinishReason == "tool_calls" {
				collector.Flush(sink)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return wrapHTTPError(err)
	}
	collector.Flush(sink)
	return nil
}

// toolCallCollector 按 index 聚合分片到达的工具调用；只有第一个分片带 id。
type toolCallCollector struct {
	calls map[int64]*pendingToolUse
}

func newToolCallCollector() *toolCallCollector {
	return &toolCallCollector{calls: make(map[int64]*pendingToolUse)}
}

func (c *toolCallCollector) Add(index int64, id, name, args string) {
	entry := c.calls[index]
	if entry == nil {
		entry = &pendingToolUse{}
		c.calls[index] = entry
	}
	if id != "" {
		entry.id = id
	}
	if name != "" {
		entry.name = name
	}
	entry.input.WriteString(args)
}

func (c *toolCallCollector) Flush(sink Sink) {
	indexes := make([]int64, 0, len(c.calls))
	for i := range c.calls {
		indexes = append(indexes, i)
	}
	sort.Slice(indexes, func(a, b int) bool { return indexes[a] < indexes[b] })
	for _, i := range indexes {
		call := c.calls[i]
		if strings.TrimSpace(call.name) == "" {
			continue
		}
		id := call.id
		if id == "" {
			id = fmt.Sprintf("call-%d", i+1)
		}
		sink.Invoke(chat.ToolCall{ID: id, Name: call.name, Input: rawInput(call.input.String())})
	}
	c.calls = make(map[int64]*pendingToolUse)
}

func wrapHTTPError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		if raw := strings.TrimSpace(apiErr.RawJSON()); raw != "" {
			return fmt.Errorf("http_%d: %s", apiErr.StatusCode, raw)
		}
		return fmt.Errorf("http_%d: %v", apiErr.StatusCode, err)
	}
	return err
}

// normalizeOpenAIBaseURL 去掉误填的 endpoint 后缀并补齐 /v1。
func normalizeOpenAIBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	path := strings.TrimRight(parsed.Path, "/")
	for _, suffix := range []string{"/chat/completions", "/completions", "/responses"} {
		if strings.HasSuffix(path, suffix) {
			path = strings.TrimSuffix(path, suffix)
			break
		}
	}
	path = strings.TrimRight(path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	for strings.Contains(path, "/v1/v1") {
		path = strings.ReplaceAll(path, "/v1/v1", "/v1")
	}
	parsed.Path = path
	return parsed.String()
}
