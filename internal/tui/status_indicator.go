package tui

import (
	"fmt"
	"time"

	"chatline/internal/session"
	"chatline/internal/tui/render"
)

// statusIndicator 渲染状态行：spinner + 标题 + 计时/提示。
// 计时只在 Sending 期间累加，进入 AwaitingInput 时暂停，回到 Idle 时清零。
type statusIndicator struct {
	status  session.Status
	queued  int
	elapsed time.Duration
	resumed time.Time
	running bool
	clock   func() time.Time
}

func newStatusIndicator(clock func() time.Time) *statusIndicator {
	if clock == nil {
		clock = time.Now
	}
	return &statusIndicator{clock: clock}
}

// Sync 按会话状态更新计时器。
func (w *statusIndicator) Sync(status session.Status, queued int) {
	now := w.clock()
	w.queued = queued
	if status == w.status {
		return
	}
	switch status {
	case session.Sending:
		if w.status == session.Idle || w.status == session.Error {
			w.elapsed = 0
		}
		w.resumeAt(now)
	case session.AwaitingInput, session.Error:
		w.pauseAt(now)
	case session.Idle:
		w.pauseAt(now)
		w.elapsed = 0
	}
	w.status = status
}

func (w *statusIndicator) pauseAt(now time.Time) {
	if !w.running {
		return
	}
	w.elapsed += now.Sub(w.resumed)
	w.running = false
}

func (w *statusIndicator) resumeAt(now time.Time) {
	if w.running {
		return
	}
	w.resumed = now
	w.running = true
}

func (w *statusIndicator) elapsedAt(now time.Time) time.Duration {
	if !w.running {
		return w.elapsed
	}
	return w.elapsed + now.Sub(w.resumed)
}

// Visible reports whether the status line takes a row.
func (w *statusIndicator) Visible() bool {
	return w.status != session.Idle || w.queued > 0
}

// Render 绘制状态行。spinner 由调用方传入，保持与 bubbles spinner 同步。
func (w *statusIndicator) Render(spin string, width int) string {
	if !w.Visible() {
		return ""
	}
	pretty := fmtElapsedCompact(uint64(w.elapsedAt(w.clock()).Seconds()))
	var header, hint string
	switch w.status {
	case session.Sending:
		header = spin + " Working"
		hint = fmt.Sprintf("(%s • esc to interrupt)", pretty)
	case session.AwaitingInput:
		header = "|| Waiting for you"
		hint = fmt.Sprintf("(%s)", pretty)
	case session.Error:
		header = "! Error"
		hint = "(/retry • /clear-queue • /dismiss)"
	default:
		header = "•"
	}
	spans := []render.Span{{Text: header}, {Text: " "}, {Text: hint, Style: faintStyle}}
	if w.queued > 0 {
		spans = append(spans, render.Span{Text: fmt.Sprintf(" • %d queued", w.queued), Style: faintStyle})
	}
	return render.Line{Spans: clampSpans(spans, width)}.String()
}

// fmtElapsedCompact 将秒数格式化为友好字符串。
func fmtElapsedCompact(elapsedSecs uint64) string {
	switch {
	case elapsedSecs < 60:
		return fmt.Sprintf("%ds", elapsedSecs)
	case elapsedSecs < 3600:
		return fmt.Sprintf("%dm %02ds", elapsedSecs/60, elapsedSecs%60)
	default:
		hours := elapsedSecs / 3600
		minutes := (elapsedSecs % 3600) / 60
		return fmt.Sprintf("%dh %02dm %02ds", hours, minutes, elapsedSecs%60)
	}
}

func clampSpans(spans []render.Span, width int) []render.Span {
	if width <= 0 {
		return nil
	}
	remaining := width
	out := make([]render.Span, 0, len(spans))
	for _, sp := range spans {
		if remaining <= 0 {
			break
		}
		text := render.Truncate(sp.Text, remaining)
		if text == "" {
			break
		}
		sp.Text = text
		out = append(out, sp)
		remaining -= displayWidth(text)
	}
	return out
}
