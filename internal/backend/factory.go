package backend

import (
	"fmt"
	"strings"
	"time"

	"chatline/internal/chat"
	"chatline/internal/config"
)

// NewProvider 按配置创建 provider。缺少凭据时退回 echo，并返回一条提示。
func NewProvider(cfg config.Backend) (Provider, string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "anthropic", "claude":
		if strings.TrimSpace(cfg.AnthropicToken) == "" {
			return echoFallback(), "ANTHROPIC_API_KEY not set, using echo backend", nil
		}
		p, err := NewAnthropic(AnthropicOptions{
			Token:     cfg.AnthropicToken,
			BaseURL:   cfg.AnthropicURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxOutputTokens,
		})
		return p, "", err
	case "openai", "codex":
		if strings.TrimSpace(cfg.OpenAIToken) == "" {
			return echoFallback(), "OPENAI_API_KEY not set, using echo backend", nil
		}
		p, err := NewOpenAI(OpenAIOptions{APIKey: cfg.OpenAIToken, BaseURL: cfg.OpenAIURL, Model: cfg.Model})
		return p, "", err
	case "", "echo":
		return echoFallback(), "", nil
	default:
		return nil, "", fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func echoFallback() EchoProvider {
	return EchoProvider{Prefix: "echo: ", Delay: 30 * time.Millisecond}
}

// DefaultOptions 把配置转成会话默认的发送选项。
func DefaultOptions(cfg config.Backend) chat.SendOptions {
	mode, ok := chat.ParseExecutionMode(cfg.Mode)
	if !ok {
		mode = chat.ModeBuild
	}
	return chat.SendOptions{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		Mode:     mode,
		Thinking: ParseThinkingLevel(cfg.Thinking),
	}
}
