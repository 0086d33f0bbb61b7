package timeline

// Compact 将连续两个及以上的 reasoning/tool 条目折叠为一个 stack 条目，保持内部顺序。
// 长度为 1 的连续段原样保留；task/text/question/plan 总是打断连续段。
func Compact(items []Item) []Item {
	out := make([]Item, 0, len(items))
	run := make([]Item, 0, 4)

	flush := func() {
		switch len(run) {
		case 0:
		case 1:
			out = append(out, run[0])
		default:
			children := append([]Item(nil), run...)
			out = append(out, Item{
				Key:      children[0].Key + ":stack",
				Kind:     KindStack,
				Children: children,
			})
		}
		run = run[:0]
	}

	for _, it := range items {
		if it.Stackable() {
			run = append(run, it)
			continue
		}
		flush()
		out = append(out, it)
	}
	flush()
	return out
}
