package backend

import (
	"context"
	"errors"
	"strings"

	"chatline/internal/chat"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type AnthropicOptions struct {
	Token     string
	BaseURL   string
	Model     string
	MaxTokens int64
}

// AnthropicProvider 通过 Messages streaming API 生成回合，支持 extended thinking。
type AnthropicProvider struct {
	api       *anthropic.Client
	model     string
	maxTokens int64
}

func NewAnthropic(opts AnthropicOptions) (*AnthropicProvider, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("missing anthropic token")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(token)}
	if base := normalizeAnthropicBaseURL(opts.BaseURL); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	client := anthropic.NewClient(reqOpts...)
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &AnthropicProvider{api: &client, model: strings.TrimSpace(opts.Model), maxTokens: maxTokens}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func normalizeAnthropicBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if strings.HasSuffix(base, "/v1") {
		base = strings.TrimRight(strings.TrimSuffix(base, "/v1"), "/")
	}
	return base
}

// pendingToolUse 收集一个 tool_use 块的增量输入，块结束时才宣布调用。
type pendingToolUse struct {
	id    string
	name  string
	input strings.Builder
}

func (p *AnthropicProvider) Stream(ctx context.Context, turn Turn, sink Sink) error {
	params := p.buildParams(turn)
	stream := p.api.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	state := newAnthropicStreamState()
	for stream.Next() {
		event := stream.Current()
		if state.Handle(event.AsAny(), sink) {
			return nil
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	state.flush(sink)
	return nil
}

// anthropicStreamState 把流事件翻译成 Sink 调用；返回 true 表示消息结束。
type anthropicStreamState struct {
	tools map[int64]*pendingToolUse
	order []int64
}

func newAnthropicStreamState() *anthropicStreamState {
	return &anthropicStreamState{tools: make(map[int64]*pendingToolUse)}
}

func (s *anthropicStreamState) Handle(event any, sink Sink) bool {
	switch v := event.(type) {
	case anthropic.ContentBlockStartEvent:
		if b, ok := v.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
			s.tools[v.Index] = &pendingToolUse{id: b.ID, name: b.Name}
			s.order = append(s.order, v.Index)
		}
	case anthropic.ContentBlockDeltaEvent:
		switch d := v.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			sink.Append(chat.BlockText, d.Text)
		case anthropic.ThinkingDelta:
			sink.Append(chat.BlockReasoning, d.Thinking)
		case anthropic.InputJSONDelta:
			if tool := s.tools[v.Index]; tool != nil {
				tool.input.WriteString(d.PartialJSON)
			}
		}
	case anthropic.ContentBlockStopEvent:
		s.emit(v.Index, sink)
	case anthropic.MessageStopEvent:
		s.flush(sink)
		return true
	}
	return false
}

func (s *anthropicStreamState) emit(index int64, sink Sink) {
	tool := s.tools[index]
	if tool == nil {
		return
	}
	delete(s.tools, index)
	sink.Invoke(chat.ToolCall{ID: tool.id, Name: tool.name, Input: rawInput(tool.input.String())})
}

// flush announces tool uses whose block never saw a stop event.
func (s *anthropicStreamState) flush(sink Sink) {
	for _, index := range s.order {
		s.emit(index, sink)
	}
	s.order = nil
}

func (p *AnthropicProvider) buildParams(turn Turn) anthropic.MessageNewParams {
	model := strings.TrimSpace(turn.Options.Model)
	if model == "" {
		model = p.model
	}
	var messages []anthropic.MessageParam
	for _, m := range transcript(turn.History, turn.Text) {
		if m.Role == chat.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: p.maxTokens,
		Messages:  messages,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt(turn)}},
	}
	if budget := ThinkingBudget(turn.Options.Thinking); budget > 0 {
		// max_tokens 必须大于 thinking budget
		if params.MaxTokens <= budget {
			params.MaxTokens = budget + p.maxTokens
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}
	return params
}
