package events

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"chatline/internal/logger"
)

// DefaultEQLogPath 默认的事件队列日志文件路径。
const DefaultEQLogPath = "logs/eq.log"

// log 复用全局 logger，标记事件组件。
var log = logger.Named("events")

// NewFileLogger 为事件队列创建独立的文件日志；失败时退回全局 logger。
func NewFileLogger(path string) (*logger.LogEntry, io.Closer) {
	if path == "" {
		return logger.Named("eq"), nil
	}
	entry, closer, _, err := logger.SetupComponentFile("eq", path)
	if err != nil {
		log.Warnf("failed to set up eq log file (%s): %v", path, err)
		return logger.Named("eq"), nil
	}
	return entry, closer
}

func logEvent(entry *logger.LogEntry, event Event) {
	if entry == nil {
		return
	}
	fields := logger.Fields{
		"type":       event.Type,
		"session_id": event.SessionID,
	}
	if event.TurnID != "" {
		fields["turn_id"] = event.TurnID
	}
	if payload := encodePayload(event.Payload); payload != "" {
		fields["payload"] = payload
	}
	entry.WithFields(fields).Debug("published event")
}

// encodePayload 把载荷转成便于阅读的文本：字符串原样输出（若本身是转义过的 JSON 则还原并缩进），
// 其他值输出缩进 JSON。
func encodePayload(payload any) string {
	if payload == nil {
		return ""
	}
	if s, ok := payload.(string); ok {
		trimmed := strings.TrimSpace(s)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			unescaped := strings.ReplaceAll(trimmed, `\n`, "\n")
			var buf bytes.Buffer
			if err := json.Indent(&buf, []byte(unescaped), "", "  "); err == nil {
				return buf.String()
			}
		}
		return s
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
