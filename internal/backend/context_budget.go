package backend

import (
	"strconv"
	"unicode/utf8"

	"chatline/internal/chat"
)

// 不依赖 tokenizer 的粗估：ceil(len_bytes/4)。
const approxBytesPerToken = 4

// ApproxTokenCount 估算文本的 token 数。
func ApproxTokenCount(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + approxBytesPerToken - 1) / approxBytesPerToken
}

// TruncateMiddle 在 token 预算内保留文本首尾，中间替换为省略标记。不会切开 UTF-8 字符。
func TruncateMiddle(s string, maxTokens int) string {
	budget := maxTokens * approxBytesPerToken
	if maxTokens <= 0 || len(s) <= budget {
		return s
	}
	left := budget / 2
	right := budget - left
	prefixEnd := 0
	for idx := range s {
		_, size := utf8.DecodeRuneInString(s[idx:])
		if idx+size > left {
			break
		}
		prefixEnd = idx + size
	}
	suffixStart := len(s) - right
	for suffixStart < len(s) && !utf8.RuneStart(s[suffixStart]) {
		suffixStart++
	}
	if suffixStart < prefixEnd {
		suffixStart = prefixEnd
	}
	removed := utf8.RuneCountInString(s[prefixEnd:suffixStart])
	return s[:prefixEnd] + "…" + strconv.Itoa(removed) + " chars truncated…" + s[suffixStart:]
}

// fitHistory 从最早的消息开始丢弃，直到历史加本次输入的估算 token 数不超过 budget。
// budget <= 0 时不限制。
func fitHistory(prior []chat.Message, text string, budget int) []chat.Message {
	if budget <= 0 || len(prior) == 0 {
		return prior
	}
	used := ApproxTokenCount(text)
	start := len(prior)
	for start > 0 {
		cost := ApproxTokenCount(prior[start-1].PlainText())
		if used+cost > budget {
			break
		}
		used += cost
		start--
	}
	if start > 0 {
		log.WithField("dropped", start).Debug("history trimmed to fit context budget")
	}
	return prior[start:]
}
