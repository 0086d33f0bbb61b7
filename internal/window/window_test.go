package window

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// 每条消息高度不同，用来验证偏移补偿按实际高度计算。
func varied(index int) int {
	return 3 + index%4
}

func visualTop(w *Window, total, index, offset int, measure Measurer) int {
	start, _ := w.Range(total)
	return height(start, index, measure) - offset
}

func TestWindowTrailingRangeAndSingleExpansion(t *testing.T) {
	w := New(Options{})
	total := 120

	start, end := w.Range(total)
	require.Equal(t, 70, start)
	require.Equal(t, 120, end)
	require.True(t, w.HasMore(total))

	// 71 号消息（下标 70）在扩展前位于视口顶部
	before := visualTop(w, total, 70, 0, varied)

	offset, expanded := w.OnScroll(total, 0, varied)
	require.True(t, expanded)
	start, end = w.Range(total)
	require.Equal(t, 20, start)
	require.Equal(t, 120, end)
	require.Equal(t, before, visualTop(w, total, 70, offset, varied))

	// 补偿后的偏移已远离顶部，不会再次扩展
	again, expanded := w.OnScroll(total, offset, varied)
	require.False(t, expanded)
	require.Equal(t, offset, again)
	start, _ = w.Range(total)
	require.Equal(t, 20, start)
}

func TestWindowExpansionStopsAtFirstMessage(t *testing.T) {
	w := New(Options{Size: 10, Step: 50, Threshold: 5})
	total := 30
	offset, expanded := w.OnScroll(total, 3, func(int) int { return 1 })
	require.True(t, expanded)
	require.Equal(t, 3+20, offset)
	start, _ := w.Range(total)
	require.Equal(t, 0, start)
	require.False(t, w.HasMore(total))

	_, expanded = w.OnScroll(total, 0, func(int) int { return 1 })
	require.False(t, expanded)
}

func TestWindowNoExpansionBelowThreshold(t *testing.T) {
	w := New(Options{Size: 10, Threshold: 20})
	offset, expanded := w.OnScroll(100, 21, varied)
	require.False(t, expanded)
	require.Equal(t, 21, offset)
}

func TestWindowSmallHistoryRendersEverything(t *testing.T) {
	w := New(Options{})
	start, end := w.Range(12)
	require.Equal(t, 0, start)
	require.Equal(t, 12, end)
	start, end = w.Range(0)
	require.Zero(t, start)
	require.Zero(t, end)
}

func TestScrollToIndexExpandsAndDefersUntilRender(t *testing.T) {
	w := New(Options{})
	total := 120

	w.ScrollToIndex(total, 10, AlignStart)
	start, _ := w.Range(total)
	require.Equal(t, 5, start)

	target, ok := w.TakePending()
	require.True(t, ok)
	require.Equal(t, Target{Index: 10, Align: AlignStart}, target)
	_, ok = w.TakePending()
	require.False(t, ok)

	offset, ok := w.Offset(total, target, 20, func(int) int { return 4 })
	require.True(t, ok)
	require.Equal(t, 20, offset)
}

func TestScrollToIndexInsideWindowKeepsSize(t *testing.T) {
	w := New(Options{})
	w.ScrollToIndex(120, 100, AlignEnd)
	require.Equal(t, DefaultSize, w.Size())

	target, ok := w.TakePending()
	require.True(t, ok)
	unit := func(int) int { return 2 }
	offset, ok := w.Offset(120, target, 10, unit)
	require.True(t, ok)
	// 顶部 30 条共 60 行，目标高 2 行，底对齐到 10 行的视口
	require.Equal(t, 60+2-10, offset)

	offset, _ = w.Offset(120, Target{Index: 100, Align: AlignCenter}, 10, unit)
	require.Equal(t, 60-4, offset)

	offset, _ = w.Offset(120, Target{Index: 70, Align: AlignEnd}, 10, unit)
	require.Zero(t, offset)

	_, ok = w.Offset(120, Target{Index: 3}, 10, unit)
	require.False(t, ok)
}

func TestScrollToIndexClampsAndBuffersAtStart(t *testing.T) {
	w := New(Options{Size: 10, Buffer: 5})
	w.ScrollToIndex(40, -3, AlignStart)
	start, _ := w.Range(40)
	require.Equal(t, 0, start)
	target, _ := w.TakePending()
	require.Equal(t, 0, target.Index)

	w.ScrollToIndex(40, 99, AlignStart)
	target, _ = w.TakePending()
	require.Equal(t, 39, target.Index)
}

func TestResetOnSessionChange(t *testing.T) {
	w := New(Options{Size: 10})
	require.True(t, w.Reset("a"))
	w.OnScroll(100, 0, varied)
	w.ScrollToIndex(100, 85, AlignStart)
	require.Equal(t, 20, w.Size())

	require.False(t, w.Reset("a"))
	require.Equal(t, 20, w.Size())

	require.True(t, w.Reset("b"))
	require.Equal(t, 10, w.Size())
	_, ok := w.TakePending()
	require.False(t, ok)
}

func TestParseAlign(t *testing.T) {
	require.Equal(t, AlignCenter, ParseAlign("center"))
	require.Equal(t, AlignEnd, ParseAlign("end"))
	require.Equal(t, AlignStart, ParseAlign("top"))
	require.Equal(t, "end", AlignEnd.String())
}
