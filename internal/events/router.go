package events

import (
	"context"
	"sync/atomic"
)

// Handler 处理一个事件。
type Handler func(Event)

// Handlers 是按事件类型分发的命令表；Default 处理表中没有的类型。
type Handlers struct {
	ByType  map[Type]Handler
	Default Handler
}

// Router 持有长期订阅，并在每次分发时读取"当前"的处理器表。
// 替换处理器表无需重新订阅：SetHandlers 在下一次分发前同步生效。
type Router struct {
	current atomic.Pointer[Handlers]
	routed  atomic.Int64
	dropped atomic.Int64
}

func NewRouter(h Handlers) *Router {
	r := &Router{}
	r.SetHandlers(h)
	return r
}

// SetHandlers 原子替换处理器表。调用方之后对 h.ByType 的修改不会影响已安装的表。
func (r *Router) SetHandlers(h Handlers) {
	table := Handlers{Default: h.Default, ByType: make(map[Type]Handler, len(h.ByType))}
	for k, v := range h.ByType {
		table.ByType[k] = v
	}
	r.current.Store(&table)
}

// Dispatch 把事件交给当前处理器；没有处理器时返回 false。
func (r *Router) Dispatch(ev Event) bool {
	table := r.current.Load()
	if table == nil {
		r.dropped.Add(1)
		return false
	}
	handler := table.ByType[ev.Type]
	if handler == nil {
		handler = table.Default
	}
	if handler == nil {
		r.dropped.Add(1)
		return false
	}
	handler(ev)
	r.routed.Add(1)
	return true
}

// Run 消费订阅通道直到通道关闭或 ctx 取消。
func (r *Router) Run(ctx context.Context, sub <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			if !r.Dispatch(ev) {
				log.WithField("type", ev.Type).Debug("no handler for event")
			}
		}
	}
}

// Stats returns how many events were routed and dropped.
func (r *Router) Stats() (routed, dropped int64) {
	return r.routed.Load(), r.dropped.Load()
}
