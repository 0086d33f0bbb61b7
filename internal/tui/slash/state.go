package slash

import (
	"sort"
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"
)

const unknownCommand = "unknown command, type / to list commands"

// Options 控制弹窗显示。
type Options struct {
	MaxLines int
}

// Input 是输入框的当前文本与光标位置。
type Input struct {
	Value        string
	CursorLine   int
	CursorColumn int
}

// ActionKind 描述按键触发后的处理类型。
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionClose
	ActionInsert
	ActionSubmitCommand
	ActionError
)

// Action 是弹窗对一次按键或提交的处理结果。
type Action struct {
	Kind         ActionKind
	Command      Command
	NewValue     string
	CursorColumn int
	Args         string
	Message      string
}

// State 维护弹窗的候选列表与选中项。光标在命令名上时候选是命令；
// 光标越过命令名且命令有固定取值时，候选是参数。
type State struct {
	items    []Item
	matches  []match
	selected int
	open     bool
	query    query
	maxLines int
}

type match struct {
	item   Item
	choice string
	// highlights 是 label() 中被匹配的 rune 下标。
	highlights []int
	score      int
}

func (m match) label() string {
	if m.choice != "" {
		return m.choice
	}
	return m.item.DisplayName()
}

// value 是补全后写回输入框的第一行。
func (m match) value() string {
	return m.item.DisplayName() + " " + m.choice
}

// query 是第一行里解析出的斜杠命令。
type query struct {
	name   string
	args   string
	tail   string
	inArgs bool
}

// NewState 构造 slash 状态机。
func NewState(opts Options) *State {
	maxLines := opts.MaxLines
	if maxLines <= 0 {
		maxLines = 8
	}
	return &State{items: builtinItems(), maxLines: maxLines}
}

// Open 返回弹窗是否展示。
func (s *State) Open() bool {
	return s != nil && s.open
}

// Close hides the popup until the input changes again.
func (s *State) Close() {
	if s == nil {
		return
	}
	s.open = false
	s.matches = nil
	s.selected = 0
}

// SyncInput 根据最新文本重新计算候选。
func (s *State) SyncInput(in Input) {
	if s == nil {
		return
	}
	q, ok := parseQuery(in.Value, in.CursorColumn)
	s.query = q
	if !ok || in.CursorLine != 0 {
		s.Close()
		return
	}
	if !q.inArgs {
		s.matches = commandMatches(s.items, q.name)
	} else {
		item, found := s.lookup(q.name)
		if !found || len(item.Choices) == 0 {
			s.Close()
			return
		}
		// 不认识的取值交给提交时的校验报错
		if s.matches = choiceMatches(item, q.args); len(s.matches) == 0 {
			s.Close()
			return
		}
	}
	s.open = true
	if s.selected >= len(s.matches) {
		s.selected = 0
	}
}

// ResolveSubmit 解析整行输入，不依赖弹窗状态。
func (s *State) ResolveSubmit(value string) Action {
	first, _, _ := strings.Cut(value, "\n")
	q, ok := parseQuery(value, len([]rune(first)))
	if !ok || q.name == "" {
		return Action{Kind: ActionNone}
	}
	item, found := s.lookup(q.name)
	if !found {
		return Action{Kind: ActionError, Message: unknownCommand}
	}
	return Action{Kind: ActionSubmitCommand, Command: item.Command, Args: q.args}
}

// HandleKey 处理弹窗打开时的按键；第二个返回值表示按键是否被消费。
func (s *State) HandleKey(key string) (Action, bool) {
	if s == nil || !s.open {
		return Action{}, false
	}
	switch key {
	case "up", "ctrl+p":
		return s.move(-1), true
	case "down", "ctrl+n":
		return s.move(1), true
	case "esc":
		s.Close()
		return Action{Kind: ActionClose}, true
	case "tab":
		if len(s.matches) == 0 {
			return Action{Kind: ActionError, Message: unknownCommand}, true
		}
		m := s.matches[s.selected]
		head := m.value()
		if m.choice == "" && s.query.args != "" {
			head += s.query.args
		}
		return Action{
			Kind:         ActionInsert,
			Command:      m.item.Command,
			NewValue:     head + s.query.tail,
			CursorColumn: len([]rune(head)),
		}, true
	case "enter":
		if len(s.matches) == 0 {
			return Action{Kind: ActionError, Message: unknownCommand}, true
		}
		m := s.matches[s.selected]
		args := s.query.args
		switch {
		case m.choice != "":
			args = m.choice
		case !s.query.inArgs:
			// 已经完整输入的命令优先于模糊匹配的首项
			if item, ok := s.lookup(s.query.name); ok {
				m.item = item
			}
		}
		s.Close()
		return Action{Kind: ActionSubmitCommand, Command: m.item.Command, Args: args}, true
	}
	return Action{}, false
}

func (s *State) move(delta int) Action {
	n := len(s.matches)
	if n == 0 {
		return Action{Kind: ActionClose}
	}
	s.selected = (s.selected + delta + n) % n
	return Action{Kind: ActionNone}
}

func (s *State) lookup(name string) (Item, bool) {
	for _, item := range s.items {
		if strings.EqualFold(item.Token(), name) {
			return item, true
		}
	}
	return Item{}, false
}

func commandMatches(items []Item, name string) []match {
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = item.Token()
	}
	hits := rank(keys, name)
	out := make([]match, 0, len(hits))
	for _, h := range hits {
		// 下标相对 token，展示名多一个斜杠
		marks := make([]int, len(h.highlights))
		for j, idx := range h.highlights {
			marks[j] = idx + 1
		}
		out = append(out, match{item: items[h.index], highlights: marks, score: h.score})
	}
	if strings.TrimSpace(name) == "" {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score == out[j].score {
			return out[i].item.Token() < out[j].item.Token()
		}
		return out[i].score > out[j].score
	})
	return out
}

// choiceMatches 保持取值的声明顺序，只在有输入时按匹配度排序。
func choiceMatches(item Item, prefix string) []match {
	hits := rank(item.Choices, prefix)
	out := make([]match, 0, len(hits))
	for _, h := range hits {
		out = append(out, match{item: item, choice: item.Choices[h.index], highlights: h.highlights, score: h.score})
	}
	return out
}

type hit struct {
	index      int
	highlights []int
	score      int
}

// rank 对 keys 做大小写无关的模糊匹配；pattern 为空时全部返回。
func rank(keys []string, pattern string) []hit {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		out := make([]hit, len(keys))
		for i := range keys {
			out[i] = hit{index: i}
		}
		return out
	}
	lower := make([]string, len(keys))
	for i, k := range keys {
		lower[i] = strings.ToLower(k)
	}
	results := fuzzy.Find(pattern, lower)
	out := make([]hit, 0, len(results))
	for _, r := range results {
		out = append(out, hit{index: r.Index, highlights: r.MatchedIndexes, score: r.Score})
	}
	return out
}

// parseQuery 只看第一行。"/usr/bin" 这类路径不算命令。
func parseQuery(value string, cursor int) (query, bool) {
	first, tail, hasTail := strings.Cut(value, "\n")
	if hasTail {
		tail = "\n" + tail
	}
	runes := []rune(first)
	if len(runes) == 0 || runes[0] != '/' {
		return query{}, false
	}
	end := len(runes)
	for i := 1; i < len(runes); i++ {
		if unicode.IsSpace(runes[i]) {
			end = i
			break
		}
		if runes[i] == '/' {
			return query{}, false
		}
	}
	return query{
		name:   string(runes[1:end]),
		args:   strings.TrimSpace(string(runes[end:])),
		tail:   tail,
		inArgs: cursor > end,
	}, true
}
