package timeline

import "chatline/internal/chat"

// DefaultCacheLimit 超过后整体清空，避免长时间运行时无界增长。
const DefaultCacheLimit = 2048

type version struct {
	blocks    int
	calls     int
	outputs   int
	textLen   int
	approved  bool
	cancelled bool
	answered  int
}

func versionOf(msg chat.Message) version {
	v := version{
		blocks:    len(msg.ContentBlocks),
		calls:     len(msg.ToolCalls),
		outputs:   msg.CompletedToolCount(),
		textLen:   len(msg.Content),
		approved:  msg.PlanApproved,
		cancelled: msg.Cancelled,
		answered:  len(msg.Answered),
	}
	// 流式文本只追加到最后一个块，块数不变，需要长度参与版本。
	for _, b := range msg.ContentBlocks {
		v.textLen += len(b.Text)
	}
	return v
}

type entry struct {
	version version
	items   []Item
}

// Cache 以消息 id + 版本为键缓存 Build+Compact 结果，未变化的消息直接命中。
// 只在 UI 事件循环中使用，不做并发保护。
type Cache struct {
	limit   int
	entries map[string]entry
	hits    int
	misses  int
}

func NewCache(limit int) *Cache {
	if limit <= 0 {
		limit = DefaultCacheLimit
	}
	return &Cache{limit: limit, entries: make(map[string]entry)}
}

// Items 返回消息的紧凑时间线。
func (c *Cache) Items(msg chat.Message) []Item {
	v := versionOf(msg)
	if e, ok := c.entries[msg.ID]; ok && e.version == v {
		c.hits++
		return e.items
	}
	c.misses++
	items := Compact(BuildMessage(msg))
	if len(c.entries) >= c.limit {
		c.entries = make(map[string]entry)
	}
	c.entries[msg.ID] = entry{version: v, items: items}
	return items
}

// Forget drops a single message, e.g. when the live buffer is reconciled away.
func (c *Cache) Forget(id string) {
	delete(c.entries, id)
}

func (c *Cache) Reset() {
	c.entries = make(map[string]entry)
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() (hits, misses int) {
	return c.hits, c.misses
}
