// Package eventbus 进程内事件总线实现
//
// 每个 Cluster 实例持有自己的 Bus，不使用任何全局注册表。
// 发布是同步的：同一主题的回调按订阅顺序依次执行。
package eventbus

import (
	"sync"
)

// subscriber 订阅记录
type subscriber struct {
	id int
	fn Handler
}

// Bus 按主题分发的事件总线
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[Topic][]subscriber
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{
		subs: make(map[Topic][]subscriber),
	}
}

// Subscribe 订阅主题，返回用于退订的订阅 id
func (b *Bus) Subscribe(topic Topic, fn Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[topic] = append(b.subs[topic], subscriber{id: b.nextID, fn: fn})
	return b.nextID
}

// Unsubscribe 退订
func (b *Bus) Unsubscribe(topic Topic, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[topic]
	for i, sub := range list {
		if sub.id == id {
			b.subs[topic] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish 同步分发事件，回调按订阅顺序执行
//
// 在锁外调用回调，允许回调中再次订阅/退订。
func (b *Bus) Publish(topic Topic, payload interface{}) {
	b.mu.Lock()
	list := make([]subscriber, len(b.subs[topic]))
	copy(list, b.subs[topic])
	b.mu.Unlock()

	for _, sub := range list {
		sub.fn(payload)
	}
}
