// Package eventbus 事件总线测试
package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPublish_SubscriptionOrder 同一主题按订阅顺序分发
func TestPublish_SubscriptionOrder(t *testing.T) {
	bus := NewBus()

	var order []int
	bus.Subscribe(TopicMemberJoin, func(interface{}) { order = append(order, 1) })
	bus.Subscribe(TopicMemberJoin, func(interface{}) { order = append(order, 2) })
	bus.Subscribe(TopicMemberJoin, func(interface{}) { order = append(order, 3) })

	bus.Publish(TopicMemberJoin, "payload")
	assert.Equal(t, []int{1, 2, 3}, order)
}

// TestPublish_TopicIsolation 主题之间互不串扰
func TestPublish_TopicIsolation(t *testing.T) {
	bus := NewBus()

	joins, removes := 0, 0
	bus.Subscribe(TopicMemberJoin, func(interface{}) { joins++ })
	bus.Subscribe(TopicMemberRemove, func(interface{}) { removes++ })

	bus.Publish(TopicMemberJoin, nil)
	bus.Publish(TopicMemberJoin, nil)
	bus.Publish(TopicMemberRemove, nil)

	assert.Equal(t, 2, joins)
	assert.Equal(t, 1, removes)
}

// TestUnsubscribe 退订后不再收到事件
func TestUnsubscribe(t *testing.T) {
	bus := NewBus()

	count := 0
	id := bus.Subscribe(TopicTaskJoin, func(interface{}) { count++ })
	bus.Publish(TopicTaskJoin, nil)
	bus.Unsubscribe(TopicTaskJoin, id)
	bus.Publish(TopicTaskJoin, nil)

	assert.Equal(t, 1, count)
}

// TestPublish_PayloadDelivered 载荷原样传递
func TestPublish_PayloadDelivered(t *testing.T) {
	bus := NewBus()

	type member struct{ ID string }
	var got interface{}
	bus.Subscribe(TopicMemberJoin, func(payload interface{}) { got = payload })

	m := &member{ID: "10.0.0.1"}
	bus.Publish(TopicMemberJoin, m)
	assert.Same(t, m, got)
}

// TestPublish_NoSubscribers 没有订阅者时发布是空操作
func TestPublish_NoSubscribers(t *testing.T) {
	bus := NewBus()
	bus.Publish(TopicJobRecordRemove, nil)
}

// TestSubscribe_InsideHandler 回调中可以再订阅（锁外分发）
func TestSubscribe_InsideHandler(t *testing.T) {
	bus := NewBus()

	late := 0
	bus.Subscribe(TopicJobConfigJoin, func(interface{}) {
		bus.Subscribe(TopicJobConfigJoin, func(interface{}) { late++ })
	})

	bus.Publish(TopicJobConfigJoin, nil) // 注册 late
	bus.Publish(TopicJobConfigJoin, nil) // late 收到
	assert.Equal(t, 1, late)
}

// TestBuses_Independent 每个 Bus 实例独立，无全局状态
func TestBuses_Independent(t *testing.T) {
	a, b := NewBus(), NewBus()

	got := 0
	a.Subscribe(TopicMemberJoin, func(interface{}) { got++ })
	b.Publish(TopicMemberJoin, nil)
	assert.Equal(t, 0, got)
}
