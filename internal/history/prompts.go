package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaxPrompts 限制输入框可回溯的提示条数。
const MaxPrompts = 500

type promptEntry struct {
	Text      string    `json:"text"`
	SessionID string    `json:"session_id,omitempty"`
	TS        time.Time `json:"ts"`
}

// PromptLog 以 JSONL 追加保存用户提交过的输入，供输入框上下键回溯。
type PromptLog struct {
	Path string
}

// DefaultPromptPath 返回 dataDir 下的 prompts.jsonl。
func DefaultPromptPath(dataDir string) string {
	return filepath.Join(dataDir, "prompts.jsonl")
}

func (p *PromptLog) ensureDir() error {
	if p == nil || strings.TrimSpace(p.Path) == "" {
		return errors.New("prompt log path is empty")
	}
	return os.MkdirAll(filepath.Dir(p.Path), 0o755)
}

// Append 追加一条提示；空白输入被忽略。
func (p *PromptLog) Append(sessionID, text string) error {
	if p == nil {
		return errors.New("prompt log is nil")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if err := p.ensureDir(); err != nil {
		return err
	}
	f, err := os.OpenFile(p.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(promptEntry{Text: text, SessionID: sessionID, TS: time.Now()})
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// Recent 返回最近的提示（旧到新），跳过损坏行与相邻重复。
func (p *PromptLog) Recent() ([]string, error) {
	if p == nil {
		return nil, errors.New("prompt log is nil")
	}
	if strings.TrimSpace(p.Path) == "" {
		return nil, errors.New("prompt log path is empty")
	}
	f, err := os.Open(p.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e promptEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		if strings.TrimSpace(e.Text) == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1] == e.Text {
			continue
		}
		out = append(out, e.Text)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(out) > MaxPrompts {
		out = out[len(out)-MaxPrompts:]
	}
	return out, nil
}
