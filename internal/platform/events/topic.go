package events

import (
	"sync"

	"github.com/SlpAus/dialect-voice-backend/internal/platform/logger"
)

const subscriberBuffer = 16

// Topic 是一个进程内的类型化广播主题。
// 发布从不阻塞：订阅者的缓冲区满时丢弃该事件并记录警告。
type Topic[T any] struct {
	name   string
	log    *logger.Logger
	mu     sync.RWMutex
	subs   map[uint64]chan T
	nextID uint64
	closed bool
}

func NewTopic[T any](name string, log *logger.Logger) *Topic[T] {
	return &Topic[T]{
		name: name,
		log:  log,
		subs: make(map[uint64]chan T),
	}
}

// Subscribe 注册一个订阅者，返回事件通道和取消订阅函数。
// 主题关闭后通道会被关闭。
func (t *Topic[T]) Subscribe() (<-chan T, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan T, subscriberBuffer)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if c, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(c)
			}
		})
	}
}

// Publish 把事件投递给所有当前订阅者。
func (t *Topic[T]) Publish(ev T) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	for id, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			t.log.Warn("事件总线: 订阅者缓冲区已满，事件被丢弃", "topic", t.name, "subscriber", id)
		}
	}
}

// Subscribers 返回当前订阅者数量。
func (t *Topic[T]) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Close 关闭主题和所有订阅者通道。重复调用是安全的。
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}
