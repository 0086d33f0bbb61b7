// Package logger 包装 logrus：统一的单行格式、按组件命名的入口，以及写文件的辅助函数。
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LogEntry/Fields 暴露底层类型，避免调用方直接依赖 logrus 包。
type LogEntry = logrus.Entry
type Fields = logrus.Fields

// DefaultLogPath 默认日志文件路径。
const DefaultLogPath = "logs/chatline.log"

// 打开日志文件时超过该大小就先轮转成 <path>.1。
const maxLogBytes = 8 << 20

// 单独成标签、不再出现在尾部字段里的 key。
var tagKeys = map[string]bool{"component": true, "caller": true, "type": true, "session_id": true}

// Configure 设置全局日志格式、级别与 caller 输出。level 为空或无法解析时使用 info。
func Configure(level string) {
	root := logrus.StandardLogger()
	root.SetReportCaller(true)
	root.SetFormatter(PlainFormatter{})
	root.SetLevel(ParseLevel(level))
}

// ParseLevel 容忍大小写与空白，未知值退回 info。
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// SetupFile 将全局日志输出重定向到 logPath（为空时 logs/chatline.log）。
// TUI 占用终端时必须调用，否则日志会破坏画面。
func SetupFile(logPath string) (io.Closer, string, error) {
	f, resolved, err := openLogFile(logPath)
	if err != nil {
		return nil, "", err
	}
	logrus.StandardLogger().SetOutput(f)
	return f, resolved, nil
}

// SetupComponentFile 创建独立的 logger 写入 logPath，级别跟随全局 logger。
func SetupComponentFile(component, logPath string) (*LogEntry, io.Closer, string, error) {
	f, resolved, err := openLogFile(logPath)
	if err != nil {
		return nil, nil, "", err
	}
	l := logrus.New()
	l.SetReportCaller(true)
	l.SetFormatter(PlainFormatter{})
	l.SetLevel(logrus.GetLevel())
	l.SetOutput(f)
	return withComponent(logrus.NewEntry(l), component), f, resolved, nil
}

// Named 为指定组件创建入口。
func Named(component string) *LogEntry {
	return withComponent(logrus.NewEntry(logrus.StandardLogger()), component)
}

func withComponent(entry *LogEntry, component string) *LogEntry {
	if component == "" {
		return entry
	}
	return entry.WithField("component", component)
}

// PlainFormatter 输出 caller [timestamp] [LEVEL] [component] [session=xxxxxxxx] [type=x] message k=v...
// session 只保留 id 前 8 位。
type PlainFormatter struct{}

// Format 实现 logrus Formatter。
func (PlainFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	if entry == nil {
		return []byte{}, nil
	}
	var sb strings.Builder
	if caller := formatCaller(entry); caller != "" {
		sb.WriteString(caller)
		sb.WriteByte(' ')
	}
	fmt.Fprintf(&sb, "[%s] [%s]", entry.Time.UTC().Format(time.RFC3339Nano), strings.ToUpper(entry.Level.String()))
	if val, ok := entry.Data["component"].(string); ok && val != "" {
		fmt.Fprintf(&sb, " [%s]", val)
	}
	if val, ok := entry.Data["session_id"]; ok && fmt.Sprint(val) != "" {
		fmt.Fprintf(&sb, " [session=%s]", shortID(fmt.Sprint(val)))
	}
	if val, ok := entry.Data["type"]; ok && fmt.Sprint(val) != "" {
		fmt.Fprintf(&sb, " [type=%v]", val)
	}
	sb.WriteByte(' ')
	sb.WriteString(entry.Message)
	for _, k := range fieldKeys(entry.Data) {
		fmt.Fprintf(&sb, " %s=%v", k, entry.Data[k])
	}
	sb.WriteByte('\n')
	return []byte(sb.String()), nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatCaller(entry *logrus.Entry) string {
	if entry.HasCaller() && entry.Caller != nil {
		return fmt.Sprintf("%s:%d", shortenFilePath(entry.Caller.File), entry.Caller.Line)
	}
	if caller, ok := entry.Data["caller"].(string); ok {
		return caller
	}
	return ""
}

func fieldKeys(fields logrus.Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !tagKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func shortenFilePath(file string) string {
	file = filepath.ToSlash(file)
	for _, marker := range []string{"/internal/", "/cmd/"} {
		if idx := strings.Index(file, marker); idx != -1 {
			return file[idx+1:]
		}
	}
	return filepath.Base(file)
}

func openLogFile(logPath string) (*os.File, string, error) {
	if logPath == "" {
		logPath = DefaultLogPath
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, "", err
	}
	if info, err := os.Stat(logPath); err == nil && info.Size() > maxLogBytes {
		if err := os.Rename(logPath, logPath+".1"); err != nil {
			return nil, "", fmt.Errorf("rotate %s: %w", logPath, err)
		}
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, "", err
	}
	return f, logPath, nil
}
