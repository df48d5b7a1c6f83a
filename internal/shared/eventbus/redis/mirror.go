// Package redis 集群事件 Redis Stream 镜像
//
// 把进程内总线上的每个事件追加到 Redis Stream，供外部观察者
// （监控面板、运维工具）消费。镜像只写不读：事件源头始终是
// 协调循环，Redis 不可用时仅记录日志，绝不影响 reconcile。
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"swift-cluster/internal/shared/eventbus"
)

// Mirror 事件镜像器
type Mirror struct {
	client  *redis.Client
	cluster string
}

// NewMirror 创建事件镜像器，redisURL 形如 redis://host:port/db
func NewMirror(redisURL, cluster string) (*Mirror, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("[Redis/Mirror] Connected: %s", opts.Addr)
	return &Mirror{client: client, cluster: cluster}, nil
}

// Attach 订阅总线的全部主题并开始镜像
func (m *Mirror) Attach(bus *eventbus.Bus) {
	for _, topic := range eventbus.Topics {
		t := topic
		bus.Subscribe(t, func(payload interface{}) {
			m.publish(t, payload)
		})
	}
}

// Close 关闭 Redis 连接
func (m *Mirror) Close() error {
	return m.client.Close()
}

func (m *Mirror) streamKey() string {
	return eventbus.KeyClusterEvents + m.cluster
}

func (m *Mirror) publish(topic eventbus.Topic, payload interface{}) {
	detail, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Redis/Mirror] Failed to marshal %s payload: %v", topic, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: m.streamKey(),
		MaxLen: eventbus.MaxStreamLength,
		Approx: true,
		Values: map[string]interface{}{
			"topic":     string(topic),
			"cluster":   m.cluster,
			"detail":    string(detail),
			"timestamp": time.Now().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		log.Printf("[Redis/Mirror] Failed to publish %s: %v", topic, err)
	}
}
