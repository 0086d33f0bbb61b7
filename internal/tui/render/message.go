package render

import (
	"strings"

	"chatline/internal/chat"
	"chatline/internal/timeline"
)

// Message 渲染一条消息。assistant 消息的条目由调用方通过 timeline.Cache 提供。
func Message(msg chat.Message, items []timeline.Item, ctx Context) []Line {
	if msg.Role == chat.RoleUser {
		return userMessage(msg, ctx.Width)
	}
	body := Items(items, withInnerWidth(ctx))
	if len(body) == 0 {
		body = []Line{Plain("…", dimStyle)}
	}
	if msg.Cancelled {
		body = append(body, Plain("(cancelled)", degradedStyle))
	}
	return Prefix(body, Span{Text: "• ", Style: assistantPrefix}, Span{Text: "  "})
}

// Live 渲染正在流式生成的 assistant 消息，问题与计划附带按键提示。
func Live(msg chat.Message, items []timeline.Item, ctx Context) []Line {
	ctx.Interactive = true
	return Message(msg, items, ctx)
}

func userMessage(msg chat.Message, width int) []Line {
	text := strings.TrimRight(msg.Content, "\n")
	body := wrapStyled(text, width-2, textStyle)
	return Prefix(body, Span{Text: "› ", Style: userPrefix}, Span{Text: "  "})
}

func withInnerWidth(ctx Context) Context {
	ctx.Width -= 2
	if ctx.Width < 10 {
		ctx.Width = 10
	}
	return ctx
}
