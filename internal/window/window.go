// Package window 限制一次渲染的消息数量：只渲染历史末尾的一段，
// 滚动接近顶部时向前扩展，并保证扩展前后用户看到的内容不跳动。
//
// Window 不关心内容怎么画。调用方提供 Measurer 返回每条消息渲染后的高度（行数），
// Window 据此换算滚动偏移。
package window

import (
	"chatline/internal/logger"
)

var log = logger.Named("window")

const (
	DefaultSize      = 50
	DefaultStep      = 50
	DefaultThreshold = 200
	DefaultBuffer    = 5
)

// Align 决定 ScrollToIndex 把目标消息放在视口的什么位置。
type Align int

const (
	AlignStart Align = iota
	AlignCenter
	AlignEnd
)

func (a Align) String() string {
	switch a {
	case AlignCenter:
		return "center"
	case AlignEnd:
		return "end"
	default:
		return "start"
	}
}

// ParseAlign accepts start/center/end; anything else is start.
func ParseAlign(raw string) Align {
	switch raw {
	case "center":
		return AlignCenter
	case "end":
		return AlignEnd
	default:
		return AlignStart
	}
}

// Options 是窗口参数，零值字段取默认值。
type Options struct {
	// Size 是初始渲染的消息条数。
	Size int
	// Step 是每次向前扩展的条数。
	Step int
	// Threshold 是触发扩展的顶部距离（行）。
	Threshold int
	// Buffer 是 ScrollToIndex 扩展窗口时在目标之前额外保留的条数。
	Buffer int
}

func (o Options) withDefaults() Options {
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.Step <= 0 {
		o.Step = DefaultStep
	}
	if o.Threshold < 0 {
		o.Threshold = 0
	} else if o.Threshold == 0 {
		o.Threshold = DefaultThreshold
	}
	if o.Buffer < 0 {
		o.Buffer = 0
	}
	return o
}

// Measurer 返回绝对下标为 index 的消息渲染后的高度。
type Measurer func(index int) int

// Target 是一次等待执行的滚动请求。
type Target struct {
	Index int
	Align Align
}

// Window 跟踪当前会话的渲染窗口大小。只在 UI 事件循环里使用，不加锁。
type Window struct {
	opts    Options
	size    int
	key     string
	pending *Target
}

func New(opts Options) *Window {
	opts = opts.withDefaults()
	return &Window{opts: opts, size: opts.Size}
}

func (w *Window) Options() Options {
	return w.opts
}

// Size returns the current number of messages the window may render.
func (w *Window) Size() int {
	return w.size
}

// Reset 在会话切换时把窗口恢复到默认大小，并丢弃未执行的滚动请求。
// 返回值表示 key 是否发生了变化。
func (w *Window) Reset(key string) bool {
	if key == w.key {
		return false
	}
	w.key = key
	w.size = w.opts.Size
	w.pending = nil
	return true
}

// Range 返回应渲染的消息区间 [start, end)。
func (w *Window) Range(total int) (start, end int) {
	if total <= 0 {
		return 0, 0
	}
	start = total - w.size
	if start < 0 {
		start = 0
	}
	return start, total
}

// HasMore reports whether older messages exist before the window.
func (w *Window) HasMore(total int) bool {
	start, _ := w.Range(total)
	return start > 0
}

// OnScroll 在滚动后调用。offset 是视口顶部相对窗口内容顶部的行数。
// 距顶部不超过 Threshold 且还有更早的消息时，窗口向前扩展 Step 条，
// 返回的新 offset 加上了新渲染内容的高度，使原来可见的内容保持原位。
// 每次调用最多扩展一次。
func (w *Window) OnScroll(total, offset int, measure Measurer) (int, bool) {
	if offset > w.opts.Threshold {
		return offset, false
	}
	oldStart, _ := w.Range(total)
	if oldStart == 0 {
		return offset, false
	}
	w.size += w.opts.Step
	newStart, _ := w.Range(total)
	delta := height(newStart, oldStart, measure)
	log.WithField("size", w.size).Debugf("window expanded from %d to %d", oldStart, newStart)
	return offset + delta, true
}

// ScrollToIndex 请求把绝对下标 index 的消息滚入视口。目标在窗口之外时，
// 窗口先扩展到包含它（外加 Buffer 条），滚动本身在下一次渲染时执行。
func (w *Window) ScrollToIndex(total, index int, align Align) {
	if total <= 0 {
		return
	}
	if index < 0 {
		index = 0
	}
	if index >= total {
		index = total - 1
	}
	if start, _ := w.Range(total); index < start {
		want := total - index + w.opts.Buffer
		if want > total {
			want = total
		}
		w.size = want
		log.WithField("index", index).Debugf("window expanded to %d for scroll target", w.size)
	}
	w.pending = &Target{Index: index, Align: align}
}

// TakePending 取出等待执行的滚动请求，每个请求只返回一次。
func (w *Window) TakePending() (Target, bool) {
	if w.pending == nil {
		return Target{}, false
	}
	t := *w.pending
	w.pending = nil
	return t, true
}

// Offset 计算把 target 按对齐方式放进高度为 viewHeight 的视口所需的 offset。
// 目标不在当前窗口内时返回 false。
func (w *Window) Offset(total int, target Target, viewHeight int, measure Measurer) (int, bool) {
	start, end := w.Range(total)
	if target.Index < start || target.Index >= end {
		return 0, false
	}
	top := height(start, target.Index, measure)
	h := measure(target.Index)
	offset := top
	switch target.Align {
	case AlignCenter:
		offset = top - (viewHeight-h)/2
	case AlignEnd:
		offset = top + h - viewHeight
	}
	if offset < 0 {
		offset = 0
	}
	return offset, true
}

func height(from, to int, measure Measurer) int {
	sum := 0
	for i := from; i < to; i++ {
		sum += measure(i)
	}
	return sum
}
