package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"chatline/internal/logger"
)

// ErrQueueClosed 表示事件队列已关闭。
var ErrQueueClosed = errors.New("event queue closed")

// Queue 把后端事件广播给订阅者。
//
// Publish 会阻塞到每个订阅者都收到事件，直到 ctx 取消或队列关闭；
// 同一会话内的事件因此不丢失、不乱序。
type Queue struct {
	// mu 的读锁由正在投递的 Publish 持有，Close 拿写锁后才关闭订阅通道。
	mu     sync.RWMutex
	subs   []chan Event
	buffer int
	closed bool

	done     chan struct{}
	doneOnce sync.Once
	log      atomic.Pointer[logger.LogEntry]
}

// NewQueue 创建事件队列，buffer 是每个订阅者的缓存大小。
func NewQueue(buffer int) *Queue {
	if buffer <= 0 {
		buffer = 128
	}
	q := &Queue{buffer: buffer, done: make(chan struct{})}
	q.log.Store(logger.Named("eq"))
	return q
}

// SetLogger 覆盖队列使用的 logger。
func (q *Queue) SetLogger(entry *logger.LogEntry) {
	if entry != nil {
		q.log.Store(entry)
	}
}

// Subscribe 订阅事件流。通道会在 Close 时关闭。
func (q *Queue) Subscribe() <-chan Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch := make(chan Event, q.buffer)
	if q.closed {
		close(ch)
		return ch
	}
	q.subs = append(q.subs, ch)
	return ch
}

// Publish 把事件依次投递给所有订阅者。
func (q *Queue) Publish(ctx context.Context, event Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	logEvent(q.log.Load(), event)
	for _, ch := range q.subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return ErrQueueClosed
		case ch <- event:
		}
	}
	return nil
}

// Close 释放阻塞中的 Publish，然后关闭所有订阅通道。已缓存的事件仍可读完。
func (q *Queue) Close() {
	q.doneOnce.Do(func() { close(q.done) })

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, ch := range q.subs {
		close(ch)
	}
	q.subs = nil
}

// SubscriberCount 返回当前订阅者数量。
func (q *Queue) SubscriberCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.subs)
}
